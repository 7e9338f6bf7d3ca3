package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lightmode/internal/protocol"
	rb "github.com/roach88/lightmode/internal/renderbatch"
)

func TestForms_SelectValueWaitsForOptions(t *testing.T) {
	r, root := newAttached(t)

	b := &rb.Batch{}
	sel := b.AppendFrames(
		rb.Element("select", 6),
		rb.Attribute("value", "b"),
		rb.Element("option", 2),
		rb.Attribute("value", "a"),
		rb.Element("option", 2),
		rb.Attribute("value", "b"),
	)
	b.AddDiff(0, rb.PrependFrame(0, sel))
	apply(t, r, b)

	s := find(root, "select")
	options := findAll(root, "option")
	require.Len(t, options, 2)
	assert.Equal(t, "b", r.Value(s))
	assert.False(t, r.Selected(options[0]))
	assert.True(t, r.Selected(options[1]))
	assert.Equal(t, `<div id="app"><select><option value="a"></option><option value="b"></option></select></div>`,
		renderString(t, r))

	// Renaming the selected option's value re-resolves the select.
	rename := &rb.Batch{}
	v := rename.AppendFrames(rb.Attribute("value", "c"))
	rename.AddDiff(0, rb.StepIn(0), rb.SetAttribute(1, v), rb.StepOut())
	apply(t, r, rename)
	assert.False(t, r.Selected(options[1]))
	assert.Equal(t, "", r.Value(s))
}

func TestForms_MultipleSelectTakesJSONArray(t *testing.T) {
	r, root := newAttached(t)

	b := &rb.Batch{}
	sel := b.AppendFrames(
		rb.Element("select", 9),
		rb.Attribute("multiple", ""),
		rb.Attribute("value", `["a","c"]`),
		rb.Element("option", 2),
		rb.Attribute("value", "a"),
		rb.Element("option", 2),
		rb.Attribute("value", "b"),
		rb.Element("option", 2),
		rb.Attribute("value", "c"),
	)
	b.AddDiff(0, rb.PrependFrame(0, sel))
	apply(t, r, b)

	options := findAll(root, "option")
	require.Len(t, options, 3)
	assert.True(t, r.Selected(options[0]))
	assert.False(t, r.Selected(options[1]))
	assert.True(t, r.Selected(options[2]))
}

func TestForms_SingleSelectDefaultsToFirstOption(t *testing.T) {
	r, root := newAttached(t)

	b := &rb.Batch{}
	sel := b.AppendFrames(
		rb.Element("select", 5),
		rb.Element("option", 2),
		rb.Text(" first  one "),
		rb.Element("option", 2),
		rb.Text("second"),
	)
	b.AddDiff(0, rb.PrependFrame(0, sel))
	apply(t, r, b)

	s := find(root, "select")
	assert.Equal(t, "first one", r.Value(s))

	r.SetValue(s, "second")
	assert.Equal(t, "second", r.Value(s))
}

func TestForms_InputValueAndFieldInfo(t *testing.T) {
	sink := &recordingSink{}
	r, root := newAttached(t, WithEventSink(sink))

	b := &rb.Batch{}
	input := b.AppendFrames(
		rb.Element("input", 3),
		rb.Attribute("value", "hello"),
		rb.EventHandler("onchange", 11),
	)
	b.AddDiff(0, rb.PrependFrame(0, input))
	apply(t, r, b)

	in := find(root, "input")
	assert.Equal(t, "hello", r.Value(in))
	assert.False(t, hasAttr(in, "value"))

	r.SetValue(in, "world")
	_, err := r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "change", Target: in})
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	assert.Equal(t, &protocol.EventFieldInfo{ComponentID: 0, FieldValue: "world"}, sink.events[0].Descriptor.EventFieldInfo)

	// A server-side value update overwrites what the user typed.
	update := &rb.Batch{}
	v := update.AppendFrames(rb.Attribute("value", "reset"))
	update.AddDiff(0, rb.SetAttribute(0, v))
	apply(t, r, update)
	assert.Equal(t, "reset", r.Value(in))

	cleared := &rb.Batch{}
	cleared.AddDiff(0, rb.RemoveAttribute(0, "value"))
	apply(t, r, cleared)
	assert.Equal(t, "", r.Value(in))
}

func TestForms_CheckboxFieldInfoIsBool(t *testing.T) {
	sink := &recordingSink{}
	r, root := newAttached(t, WithEventSink(sink))

	b := &rb.Batch{}
	box := b.AppendFrames(
		rb.Element("input", 4),
		rb.Attribute("type", "checkbox"),
		rb.BoolAttribute("checked", true),
		rb.EventHandler("onchange", 12),
	)
	b.AddDiff(0, rb.PrependFrame(0, box))
	apply(t, r, b)

	in := find(root, "input")
	assert.True(t, r.Checked(in))
	assert.False(t, hasAttr(in, "checked"))

	r.SetChecked(in, false)
	_, err := r.Delegator().Dispatch(context.Background(), NativeEvent{Name: "change", Target: in})
	require.NoError(t, err)
	assert.Equal(t, false, sink.events[0].Descriptor.EventFieldInfo.FieldValue)

	recheck := &rb.Batch{}
	c := recheck.AppendFrames(rb.BoolAttribute("checked", true))
	recheck.AddDiff(0, rb.SetAttribute(0, c))
	apply(t, r, recheck)
	assert.True(t, r.Checked(in))
}

func TestForms_TextareaFallsBackToContent(t *testing.T) {
	r, root := newAttached(t)

	b := &rb.Batch{}
	ta := b.AppendFrames(rb.Element("textarea", 2), rb.Text("notes"))
	b.AddDiff(0, rb.PrependFrame(0, ta))
	apply(t, r, b)

	assert.Equal(t, "notes", r.Value(find(root, "textarea")))
}

func TestForms_RemovedSubtreeIsForgotten(t *testing.T) {
	r, root := newAttached(t)

	b := &rb.Batch{}
	input := b.AppendFrames(rb.Element("input", 2), rb.Attribute("value", "x"))
	b.AddDiff(0, rb.PrependFrame(0, input))
	apply(t, r, b)
	in := find(root, "input")
	require.Contains(t, r.forms.values, in)

	remove := &rb.Batch{}
	remove.AddDiff(0, rb.RemoveFrame(0))
	apply(t, r, remove)

	assert.NotContains(t, r.forms.values, in)
}

func TestForms_RemovedComponentContentIsForgotten(t *testing.T) {
	r, root := newAttached(t)

	b := &rb.Batch{}
	comp := b.AppendFrames(rb.Component(2, 1))
	input := b.AppendFrames(rb.Element("input", 2), rb.Attribute("value", "x"))
	b.AddDiff(0, rb.PrependFrame(0, comp))
	b.AddDiff(2, rb.PrependFrame(0, input))
	apply(t, r, b)
	in := find(root, "input")
	require.NotNil(t, in)
	require.Contains(t, r.forms.values, in)

	remove := &rb.Batch{}
	remove.AddDiff(0, rb.RemoveFrame(0))
	apply(t, r, remove)

	assert.Nil(t, find(root, "input"))
	assert.NotContains(t, r.forms.values, in)
}
