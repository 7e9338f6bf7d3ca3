package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/lightmode/internal/protocol"
	rb "github.com/roach88/lightmode/internal/renderbatch"
	"github.com/roach88/lightmode/internal/wire"
)

type recordedEvent struct {
	Descriptor protocol.EventDescriptor
	Args       json.RawMessage
}

type recordingSink struct {
	events []recordedEvent
	err    error
}

func (s *recordingSink) DispatchEvent(_ context.Context, d protocol.EventDescriptor, args json.RawMessage) error {
	s.events = append(s.events, recordedEvent{Descriptor: d, Args: args})
	return s.err
}

func (s *recordingSink) handlerIDs() []uint64 {
	ids := make([]uint64, len(s.events))
	for i, e := range s.events {
		ids[i] = e.Descriptor.EventHandlerID
	}
	return ids
}

func appDiv(children ...*html.Node) *html.Node {
	div := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr:     []html.Attribute{{Key: "id", Val: "app"}},
	}
	for _, c := range children {
		div.AppendChild(c)
	}
	return div
}

func prerendered() *html.Node {
	p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
	p.AppendChild(&html.Node{Type: html.TextNode, Data: "pre"})
	return p
}

func newAttached(t *testing.T, opts ...Option) (*Reconciler, *html.Node) {
	t.Helper()
	root := appDiv()
	r := New(opts...)
	require.NoError(t, r.AttachRoot(root, 0, false))
	return r, root
}

func decode(t *testing.T, b *rb.Batch) *wire.BatchView {
	t.Helper()
	data, err := wire.Encode(b)
	require.NoError(t, err)
	v, err := wire.Decode(data)
	require.NoError(t, err)
	return v
}

func apply(t *testing.T, r *Reconciler, b *rb.Batch) {
	t.Helper()
	require.NoError(t, r.ApplyBatch(decode(t, b)))
}

func renderString(t *testing.T, r *Reconciler) string {
	t.Helper()
	s, err := r.RenderString()
	require.NoError(t, err)
	return s
}

func find(root *html.Node, tag string) *html.Node {
	var found *html.Node
	walkNodes(root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && n.Data == tag {
			found = n
		}
	})
	return found
}

func findAll(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	walkNodes(root, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
	})
	return out
}
