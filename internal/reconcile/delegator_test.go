package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rb "github.com/roach88/lightmode/internal/renderbatch"
)

// nestedButtons renders <div onclick=1><button onclick=2 ...extra>go</button></div>.
func nestedButtons(t *testing.T, extra ...rb.Frame) (*Reconciler, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	r, _ := newAttached(t, WithEventSink(sink))

	b := &rb.Batch{}
	frames := []rb.Frame{
		rb.Element("div", int32(5+len(extra))),
		rb.EventHandler("onclick", 1),
		rb.Element("button", int32(3+len(extra))),
		rb.EventHandler("onclick", 2),
	}
	frames = append(frames, extra...)
	frames = append(frames, rb.Text("go"))
	start := b.AppendFrames(frames...)
	b.AddDiff(0, rb.PrependFrame(0, start))
	apply(t, r, b)
	return r, sink
}

func TestDispatch_BubblesToAncestors(t *testing.T) {
	r, sink := nestedButtons(t)
	button := find(r.roots[0], "button")

	res, err := r.Delegator().Dispatch(context.Background(), NativeEvent{
		Name:   "click",
		Target: button,
		Args:   json.RawMessage(`{"detail":1}`),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Handled)
	assert.False(t, res.DefaultPrevented)
	assert.Equal(t, []uint64{2, 1}, sink.handlerIDs())
	assert.Equal(t, "click", sink.events[0].Descriptor.EventName)
	assert.JSONEq(t, `{"detail":1}`, string(sink.events[0].Args))
	assert.Nil(t, sink.events[0].Descriptor.EventFieldInfo)
}

func TestDispatch_StopPropagationAttribute(t *testing.T) {
	r, sink := nestedButtons(t, rb.Attribute("__internal_stopPropagation_click", ""))
	button := find(r.roots[0], "button")

	_, err := r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "click", Target: button})
	require.NoError(t, err)

	assert.Equal(t, []uint64{2}, sink.handlerIDs())
	assert.JSONEq(t, `{}`, string(sink.events[0].Args))
}

func TestDispatch_PreventDefaultAttribute(t *testing.T) {
	r, _ := nestedButtons(t, rb.Attribute("__internal_preventDefault_click", ""))
	button := find(r.roots[0], "button")

	res, err := r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "click", Target: button})
	require.NoError(t, err)
	assert.True(t, res.DefaultPrevented)
}

func TestDispatch_DisabledElementSkipsMouseEvents(t *testing.T) {
	r, sink := nestedButtons(t, rb.Attribute("disabled", ""))
	button := find(r.roots[0], "button")

	_, err := r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "click", Target: button})
	require.NoError(t, err)

	assert.Equal(t, []uint64{1}, sink.handlerIDs())
}

func TestDispatch_NonBubblingSubmitPreventsDefault(t *testing.T) {
	sink := &recordingSink{}
	r, root := newAttached(t, WithEventSink(sink))

	b := &rb.Batch{}
	form := b.AppendFrames(
		rb.Element("form", 4),
		rb.EventHandler("onsubmit", 3),
		rb.Element("button", 2),
		rb.EventHandler("onsubmit", 4),
	)
	b.AddDiff(0, rb.PrependFrame(0, form))
	apply(t, r, b)

	res, err := r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "submit", Target: find(root, "form")})
	require.NoError(t, err)
	assert.True(t, res.DefaultPrevented)
	assert.Equal(t, []uint64{3}, sink.handlerIDs())

	res, err = r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "submit", Target: find(root, "button")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Handled)
	assert.Equal(t, []uint64{3, 4}, sink.handlerIDs())
}

func TestDispatch_DisposedHandlerIsRemoved(t *testing.T) {
	r, sink := nestedButtons(t)
	button := find(r.roots[0], "button")
	require.Equal(t, 2, r.Delegator().ListenerCount("click"))

	b := &rb.Batch{}
	b.DisposedEventHandlerIDs = []uint64{2}
	apply(t, r, b)

	_, ok := r.Delegator().HandlerID(button, "click")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Delegator().ListenerCount("click"))

	_, err := r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "click", Target: button})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, sink.handlerIDs())
}

func TestDispatch_RebindReplacesHandlerID(t *testing.T) {
	r, _ := nestedButtons(t)
	button := find(r.roots[0], "button")

	b := &rb.Batch{}
	h := b.AppendFrames(rb.EventHandler("onclick", 20))
	b.AddDiff(0, rb.StepIn(0), rb.SetAttribute(0, h), rb.StepOut())
	apply(t, r, b)

	id, ok := r.Delegator().HandlerID(button, "click")
	require.True(t, ok)
	assert.Equal(t, uint64(20), id)
	assert.Equal(t, 2, r.Delegator().ListenerCount("click"))

	r.DisposeEventHandler(2)
	assert.Equal(t, 2, r.Delegator().ListenerCount("click"))
}

func TestDispatch_SinkErrorStopsDelivery(t *testing.T) {
	r, sink := nestedButtons(t)
	sink.err = errors.New("offline")

	_, err := r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "click", Target: find(r.roots[0], "button")})
	require.Error(t, err)
	assert.Len(t, sink.events, 1)
}

func TestDispatch_RequiresTarget(t *testing.T) {
	r, _ := nestedButtons(t)
	_, err := r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "click"})
	assert.Error(t, err)
}
