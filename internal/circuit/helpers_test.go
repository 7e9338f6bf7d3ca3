package circuit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lightmode/internal/protocol"
	rb "github.com/roach88/lightmode/internal/renderbatch"
	"github.com/roach88/lightmode/internal/testutil"
	"github.com/roach88/lightmode/internal/wire"
)

// stubRenderer runs whatever the test plugs into onEvent.
type stubRenderer struct {
	mu          sync.Mutex
	onEvent     func(ctx context.Context, s Session, ev Event) error
	afterRender [][]int32
	locations   []string
	closed      bool
}

func (r *stubRenderer) RootComponents() []protocol.RootComponent {
	return []protocol.RootComponent{{ComponentID: 1, Selector: "app"}}
}

func (r *stubRenderer) Start(_ context.Context, s Session, _ string) error {
	return s.UpdateDisplay(textBatch(1, "start"))
}

func (r *stubRenderer) OnEvent(ctx context.Context, s Session, ev Event) error {
	if r.onEvent == nil {
		return nil
	}
	return r.onEvent(ctx, s, ev)
}

func (r *stubRenderer) OnLocationChanged(_ context.Context, _ Session, location string, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations = append(r.locations, location)
	return nil
}

func (r *stubRenderer) OnAfterRender(_ context.Context, _ Session, ids []int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterRender = append(r.afterRender, ids)
	return nil
}

func (r *stubRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *stubRenderer) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func textBatch(componentID int32, text string) *rb.Batch {
	b := &rb.Batch{}
	f := b.AppendFrames(rb.Text(text))
	b.AddDiff(componentID, rb.PrependFrame(0, f))
	return b
}

// batchText extracts the text of the first frame of an encoded textBatch.
func batchText(t *testing.T, encoded string) string {
	t.Helper()
	view, err := wire.DecodeBase64(encoded)
	require.NoError(t, err)
	return view.ReferenceFrame(0).Content
}

type memJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
	fail    bool
}

func (j *memJournal) Record(_ context.Context, e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return errors.New("disk full")
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) events() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, e := range j.entries {
		out = append(out, e.Event+":"+string(e.Reason))
	}
	return out
}

func newTestRegistry(t *testing.T, r *stubRenderer, opts ...RegistryOption) (*Registry, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(testutil.Epoch)
	base := []RegistryOption{
		WithClock(clock),
		WithIDGenerator(testutil.NewSequentialIDs("")),
	}
	reg := NewRegistry(func(SessionContext) (Renderer, error) { return r, nil }, append(base, opts...)...)
	t.Cleanup(func() { reg.Close(context.Background()) })
	return reg, clock
}

func newTestCircuit(t *testing.T, r *stubRenderer) *Circuit {
	t.Helper()
	reg, _ := newTestRegistry(t, r)
	c, err := reg.Create(context.Background(), SessionContext{Location: "http://localhost/"})
	require.NoError(t, err)
	return c
}

func eventFor(handler uint64) Event {
	return Event{
		Descriptor: protocol.EventDescriptor{EventHandlerID: handler, EventName: "click"},
		Args:       json.RawMessage(`{}`),
	}
}
