package logical

import (
	"fmt"

	"golang.org/x/net/html"
)

// Permutation moves the logical child at From to To.
type Permutation struct {
	From int
	To   int
}

type move struct {
	Permutation
	start  *Element
	end    *html.Node
	marker *html.Node
}

// Permute applies a permutation list to parent's children.
//
// The phases must not interleave: every entry's indices refer to the sibling
// order before any move.
//
//  1. Record each moved range (start element, last DOM node).
//  2. Insert a marker comment where each range will land.
//  3. Move each range in front of its marker, then drop the marker.
//  4. Rewrite the logical sibling array.
func (t *Tree) Permute(parent *Element, list []Permutation) error {
	siblings := parent.children
	moves := make([]*move, len(list))
	for i, p := range list {
		if p.From < 0 || p.From >= len(siblings) || p.To < 0 || p.To >= len(siblings) {
			return fmt.Errorf("permute: entry %d->%d outside %d children", p.From, p.To, len(siblings))
		}
		start := siblings[p.From]
		moves[i] = &move{Permutation: p, start: start, end: lastDOMNodeInRange(start)}
	}

	for _, m := range moves {
		m.marker = &html.Node{Type: html.CommentNode, Data: "marker"}
		if m.To+1 < len(siblings) {
			before := siblings[m.To+1].node
			before.Parent.InsertBefore(m.marker, before)
		} else if err := t.appendDOM(m.marker, parent); err != nil {
			return err
		}
	}

	for _, m := range moves {
		dom := m.marker.Parent
		for n := m.start.node; n != nil; {
			next := n.NextSibling
			n.Parent.RemoveChild(n)
			dom.InsertBefore(n, m.marker)
			if n == m.end {
				break
			}
			n = next
		}
		dom.RemoveChild(m.marker)
	}

	for _, m := range moves {
		siblings[m.To] = m.start
	}
	return nil
}

// lastDOMNodeInRange returns the last DOM node belonging to e: e itself for
// ordinary nodes, or the node just before e's logical next sibling for
// containers.
func lastDOMNodeInRange(e *Element) *html.Node {
	if !e.IsContainer() {
		return e.node
	}
	if next := nextSibling(e); next != nil {
		return next.node.PrevSibling
	}
	parent := e.parent
	if parent == nil {
		return e.node
	}
	if parent.IsDOMParent() {
		return parent.node.LastChild
	}
	return lastDOMNodeInRange(parent)
}
