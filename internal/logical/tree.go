// Package logical overlays DOM nodes with an explicit parent/children index.
//
// Component boundaries and markup blocks have no element of their own. They
// are represented by comment nodes ("containers") whose logical children are
// DOM siblings that follow the comment. The logical tree is the only reliable
// way to address children by index; native DOM traversal sees a flattened
// view.
//
// DOM nodes are golang.org/x/net/html nodes. A DocumentNode plays the role of
// a document fragment root.
package logical

import (
	"fmt"

	"golang.org/x/net/html"
)

// Element is a DOM node plus its logical position.
type Element struct {
	node     *html.Node
	parent   *Element
	children []*Element
}

// Node returns the underlying DOM node.
func (e *Element) Node() *html.Node { return e.node }

// Parent returns the logical parent, or nil for a root.
func (e *Element) Parent() *Element { return e.parent }

// ChildCount returns the number of logical children.
func (e *Element) ChildCount() int { return len(e.children) }

// Child returns logical child i, or nil if i is out of range.
func (e *Element) Child(i int) *Element {
	if i < 0 || i >= len(e.children) {
		return nil
	}
	return e.children[i]
}

// Children returns a copy of the logical children.
func (e *Element) Children() []*Element {
	out := make([]*Element, len(e.children))
	copy(out, e.children)
	return out
}

// IsContainer reports whether e is a comment-backed logical container.
func (e *Element) IsContainer() bool { return e.node.Type == html.CommentNode }

// IsDOMParent reports whether e's node can hold DOM children directly.
func (e *Element) IsDOMParent() bool {
	return e.node.Type == html.ElementNode || e.node.Type == html.DocumentNode
}

// Tree indexes logical elements by DOM node.
type Tree struct {
	byNode map[*html.Node]*Element
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{byNode: make(map[*html.Node]*Element)}
}

// Lookup returns the logical element for n, if n has been adopted.
func (t *Tree) Lookup(n *html.Node) (*Element, bool) {
	e, ok := t.byNode[n]
	return e, ok
}

// ToLogical adopts n. With allowExisting, n's current DOM children (for
// example prerendered content) become its logical children, recursively.
func (t *Tree) ToLogical(n *html.Node, allowExisting bool) *Element {
	if e, ok := t.byNode[n]; ok {
		return e
	}
	e := &Element{node: n}
	t.byNode[n] = e
	if allowExisting {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			child := t.ToLogical(c, true)
			child.parent = e
			e.children = append(e.children, child)
		}
	}
	return e
}

// CreateContainer inserts an empty comment container at index.
func (t *Tree) CreateContainer(parent *Element, index int) (*Element, error) {
	marker := &html.Node{Type: html.CommentNode, Data: "!"}
	return t.InsertChild(marker, parent, index)
}

// InsertChild inserts a detached DOM node as logical child index of parent.
// An index at or past the end appends.
func (t *Tree) InsertChild(n *html.Node, parent *Element, index int) (*Element, error) {
	if n.Parent != nil {
		return nil, fmt.Errorf("insert: node is already attached")
	}
	if existing, ok := t.byNode[n]; ok && (existing.parent != nil || len(existing.children) > 0) {
		return nil, fmt.Errorf("insert: node already has a logical position")
	}
	if index < 0 {
		return nil, fmt.Errorf("insert: negative index %d", index)
	}

	child := t.ToLogical(n, false)
	if index < len(parent.children) {
		next := parent.children[index].node
		next.Parent.InsertBefore(n, next)
		parent.children = append(parent.children, nil)
		copy(parent.children[index+1:], parent.children[index:])
		parent.children[index] = child
	} else {
		if err := t.appendDOM(n, parent); err != nil {
			return nil, err
		}
		parent.children = append(parent.children, child)
	}
	child.parent = parent
	return child, nil
}

// appendDOM places n after all existing DOM content of parent.
func (t *Tree) appendDOM(n *html.Node, parent *Element) error {
	if parent.IsDOMParent() {
		parent.node.AppendChild(n)
		return nil
	}
	if !parent.IsContainer() {
		return fmt.Errorf("insert: %s node cannot hold children", nodeKind(parent.node))
	}
	if next := nextSibling(parent); next != nil {
		if next.node.Parent == nil {
			return fmt.Errorf("insert: logical sibling is detached")
		}
		next.node.Parent.InsertBefore(n, next.node)
		return nil
	}
	if parent.parent == nil {
		return fmt.Errorf("insert: container has no logical parent")
	}
	return t.appendDOM(n, parent.parent)
}

// RemoveChild removes logical child index of parent. Containers take their
// logical descendants with them.
func (t *Tree) RemoveChild(parent *Element, index int) error {
	if index < 0 || index >= len(parent.children) {
		return fmt.Errorf("remove: index %d outside %d children", index, len(parent.children))
	}
	child := parent.children[index]
	parent.children = append(parent.children[:index], parent.children[index+1:]...)
	t.detach(child)
	return nil
}

func (t *Tree) detach(e *Element) {
	if e.IsContainer() {
		for len(e.children) > 0 {
			last := e.children[len(e.children)-1]
			e.children = e.children[:len(e.children)-1]
			t.detach(last)
		}
	}
	if e.node.Parent != nil {
		e.node.Parent.RemoveChild(e.node)
	}
	e.parent = nil
	t.forget(e)
}

func (t *Tree) forget(e *Element) {
	delete(t.byNode, e.node)
	for _, c := range e.children {
		t.forget(c)
	}
}

// Empty removes every logical child of e.
func (t *Tree) Empty(e *Element) {
	for len(e.children) > 0 {
		_ = t.RemoveChild(e, 0)
	}
}

// ClosestDOMElement returns the nearest node that is a real DOM parent:
// e itself, or the first such logical ancestor.
func ClosestDOMElement(e *Element) *html.Node {
	for ; e != nil; e = e.parent {
		if e.IsDOMParent() {
			return e.node
		}
	}
	return nil
}

// IsSVG reports whether children of e belong in the SVG namespace.
func IsSVG(e *Element) bool {
	n := ClosestDOMElement(e)
	return n != nil && n.Type == html.ElementNode && n.Namespace == "svg" && n.Data != "foreignObject"
}

func nextSibling(e *Element) *Element {
	if e.parent == nil {
		return nil
	}
	siblings := e.parent.children
	for i, s := range siblings {
		if s == e {
			if i+1 < len(siblings) {
				return siblings[i+1]
			}
			return nil
		}
	}
	return nil
}

func nodeKind(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return "text"
	case html.ElementNode:
		return "element"
	case html.CommentNode:
		return "comment"
	case html.DocumentNode:
		return "document"
	default:
		return "unknown"
	}
}
