// Package reconcile applies encoded render batches to a DOM built from
// golang.org/x/net/html nodes and routes DOM events back to the server.
package reconcile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/template"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/lightmode/internal/logical"
	"github.com/roach88/lightmode/internal/renderbatch"
	"github.com/roach88/lightmode/internal/wire"
)

var (
	// ErrUnknownComponent is returned when a batch addresses a component that
	// has no container.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrInvalidEdit is returned when an edit does not fit the current DOM.
	ErrInvalidEdit = errors.New("invalid edit")
)

const internalAttributePrefix = "__internal_"

// Reconciler owns a logical tree and keeps it in step with server batches.
// It is not safe for concurrent use.
type Reconciler struct {
	tree         *logical.Tree
	forms        *forms
	delegator    *Delegator
	components   map[int32]*logical.Element
	pendingClear map[int32]struct{}
	roots        []*html.Node
	logger       *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithEventSink sets where delegated events are delivered.
func WithEventSink(sink EventSink) Option {
	return func(r *Reconciler) { r.delegator.sink = sink }
}

// New creates a reconciler with no roots attached.
func New(opts ...Option) *Reconciler {
	f := newForms()
	r := &Reconciler{
		tree:         logical.NewTree(),
		forms:        f,
		delegator:    newDelegator(nil, f),
		components:   make(map[int32]*logical.Element),
		pendingClear: make(map[int32]struct{}),
		logger:       slog.Default().With("component", "reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Delegator returns the event delegator fed by this reconciler.
func (r *Reconciler) Delegator() *Delegator { return r.delegator }

// AttachRoot binds a root component to container. Existing children of
// container become logical children. Unless appendMode is set they are
// removed when the component's first diff arrives; in append mode the
// component renders into a new container after them.
func (r *Reconciler) AttachRoot(container *html.Node, componentID int32, appendMode bool) error {
	if _, exists := r.components[componentID]; exists {
		return fmt.Errorf("attach root: component %d is already attached", componentID)
	}
	root := r.tree.ToLogical(container, true)
	target := root
	if appendMode {
		c, err := r.tree.CreateContainer(root, root.ChildCount())
		if err != nil {
			return fmt.Errorf("attach root: %w", err)
		}
		target = c
	} else {
		r.pendingClear[componentID] = struct{}{}
	}
	r.components[componentID] = target
	r.roots = append(r.roots, container)
	return nil
}

// ApplyBatch applies every component diff in order, then disposals.
func (r *Reconciler) ApplyBatch(v *wire.BatchView) error {
	for i := 0; i < v.UpdatedComponentCount(); i++ {
		if err := r.updateComponent(v, v.UpdatedComponent(i)); err != nil {
			return err
		}
	}
	for _, id := range v.DisposedComponentIDs() {
		r.DisposeComponent(id)
	}
	for _, id := range v.DisposedEventHandlerIDs() {
		r.DisposeEventHandler(id)
	}
	r.logger.Debug("applied batch",
		"components", v.UpdatedComponentCount(),
		"frames", v.ReferenceFrameCount())
	return nil
}

// DisposeComponent forgets a component's container. A root that never
// received a diff is emptied so it returns to its attached state.
func (r *Reconciler) DisposeComponent(componentID int32) {
	if _, root := r.pendingClear[componentID]; root {
		delete(r.pendingClear, componentID)
		if el := r.components[componentID]; el != nil {
			r.tree.Empty(el)
		}
	}
	delete(r.components, componentID)
}

// DisposeEventHandler unbinds a delegated handler.
func (r *Reconciler) DisposeEventHandler(handlerID uint64) {
	r.delegator.RemoveListener(handlerID)
}

// Value returns the live value property of a form element.
func (r *Reconciler) Value(n *html.Node) string { return r.forms.value(n) }

// Checked returns the checked property of an input.
func (r *Reconciler) Checked(n *html.Node) bool { return r.forms.isChecked(n) }

// Selected returns whether an option is selected.
func (r *Reconciler) Selected(n *html.Node) bool { return r.forms.isSelected(n) }

// SetValue changes a form element's value the way typing or picking would.
func (r *Reconciler) SetValue(n *html.Node, v string) { r.forms.setValue(n, v) }

// SetChecked toggles an input the way clicking would.
func (r *Reconciler) SetChecked(n *html.Node, on bool) { r.forms.checked[n] = on }

// Render writes every attached root in attach order.
func (r *Reconciler) Render(w io.Writer) error {
	for _, n := range r.roots {
		if err := html.Render(w, n); err != nil {
			return err
		}
	}
	return nil
}

// RenderString is Render into a string.
func (r *Reconciler) RenderString() (string, error) {
	var b strings.Builder
	if err := r.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// InnerHTML renders the children of n.
func InnerHTML(n *html.Node) (string, error) {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func (r *Reconciler) updateComponent(v *wire.BatchView, d wire.DiffView) error {
	id := d.ComponentID()
	el, ok := r.components[id]
	if !ok {
		return fmt.Errorf("component %d: %w", id, ErrUnknownComponent)
	}
	if _, clear := r.pendingClear[id]; clear {
		delete(r.pendingClear, id)
		r.tree.Empty(el)
	}
	if err := r.applyEdits(v, id, el, 0, d); err != nil {
		return fmt.Errorf("component %d: %w", id, err)
	}
	return nil
}

// forgetForms drops form state for e and its logical descendants. A
// container's content lives in DOM siblings of its comment, so it is reached
// through the logical children rather than the DOM.
func (r *Reconciler) forgetForms(e *logical.Element) {
	r.forms.forget(e.Node())
	if e.IsContainer() {
		for _, c := range e.Children() {
			r.forgetForms(c)
		}
	}
}

func (r *Reconciler) applyEdits(v *wire.BatchView, componentID int32, parent *logical.Element, childIndex int, d wire.DiffView) error {
	depth := 0
	offset := childIndex
	var perms []logical.Permutation

	for j := 0; j < d.EditCount(); j++ {
		e := d.Edit(j)
		at := offset + int(e.SiblingIndex)
		fail := func(format string, args ...any) error {
			return fmt.Errorf("edit %d (%s): %s: %w", j, e.Type, fmt.Sprintf(format, args...), ErrInvalidEdit)
		}

		switch e.Type {
		case renderbatch.EditPrependFrame:
			f, err := r.frame(v, int(e.ReferenceFrameIndex))
			if err != nil {
				return fail("%v", err)
			}
			if _, err := r.insertFrame(v, componentID, parent, at, f, int(e.ReferenceFrameIndex)); err != nil {
				return fmt.Errorf("edit %d (%s): %w", j, e.Type, err)
			}

		case renderbatch.EditRemoveFrame:
			child := parent.Child(at)
			if child == nil {
				return fail("no child at %d", at)
			}
			r.forgetForms(child)
			if err := r.tree.RemoveChild(parent, at); err != nil {
				return fail("%v", err)
			}

		case renderbatch.EditSetAttribute:
			node, err := r.elementAt(parent, at)
			if err != nil {
				return fail("%v", err)
			}
			f, err := r.frame(v, int(e.ReferenceFrameIndex))
			if err != nil {
				return fail("%v", err)
			}
			if err := r.applyAttribute(componentID, node, f); err != nil {
				return fmt.Errorf("edit %d (%s): %w", j, e.Type, err)
			}

		case renderbatch.EditRemoveAttribute:
			node, err := r.elementAt(parent, at)
			if err != nil {
				return fail("%v", err)
			}
			if err := r.setOrRemoveAttribute(node, e.RemovedAttributeName, nil); err != nil {
				return fmt.Errorf("edit %d (%s): %w", j, e.Type, err)
			}

		case renderbatch.EditUpdateText:
			child := parent.Child(at)
			if child == nil || child.Node().Type != html.TextNode {
				return fail("no text node at %d", at)
			}
			f, err := r.frame(v, int(e.ReferenceFrameIndex))
			if err != nil {
				return fail("%v", err)
			}
			child.Node().Data = textFor(parent, f.Content)

		case renderbatch.EditUpdateMarkup:
			f, err := r.frame(v, int(e.ReferenceFrameIndex))
			if err != nil {
				return fail("%v", err)
			}
			if err := r.tree.RemoveChild(parent, at); err != nil {
				return fail("%v", err)
			}
			if err := r.insertMarkup(parent, at, f.Content); err != nil {
				return fmt.Errorf("edit %d (%s): %w", j, e.Type, err)
			}

		case renderbatch.EditStepIn:
			child := parent.Child(at)
			if child == nil {
				return fail("no child at %d", at)
			}
			parent = child
			depth++
			offset = 0

		case renderbatch.EditStepOut:
			if depth == 0 || parent.Parent() == nil {
				return fail("step out above component root")
			}
			parent = parent.Parent()
			depth--
			if depth == 0 {
				offset = childIndex
			} else {
				offset = 0
			}

		case renderbatch.EditPermutationListEntry:
			perms = append(perms, logical.Permutation{From: at, To: offset + int(e.MoveToSiblingIndex())})

		case renderbatch.EditPermutationListEnd:
			if err := r.tree.Permute(parent, perms); err != nil {
				return fail("%v", err)
			}
			perms = nil

		default:
			return fail("unknown edit type")
		}
	}
	return nil
}

func (r *Reconciler) frame(v *wire.BatchView, n int) (renderbatch.Frame, error) {
	if n < 0 || n >= v.ReferenceFrameCount() {
		return renderbatch.Frame{}, fmt.Errorf("reference frame %d outside %d frames", n, v.ReferenceFrameCount())
	}
	return v.ReferenceFrame(n), nil
}

func (r *Reconciler) elementAt(parent *logical.Element, at int) (*html.Node, error) {
	child := parent.Child(at)
	if child == nil {
		return nil, fmt.Errorf("no child at %d", at)
	}
	if child.Node().Type != html.ElementNode {
		return nil, fmt.Errorf("child %d is not an element", at)
	}
	return child.Node(), nil
}

// insertFrame inserts frame f at index at and returns how many logical
// children it produced.
func (r *Reconciler) insertFrame(v *wire.BatchView, componentID int32, parent *logical.Element, at int, f renderbatch.Frame, frameIndex int) (int, error) {
	switch f.Type {
	case renderbatch.FrameElement:
		return 1, r.insertElement(v, componentID, parent, at, f, frameIndex)
	case renderbatch.FrameText:
		_, err := r.tree.InsertChild(&html.Node{Type: html.TextNode, Data: textFor(parent, f.Content)}, parent, at)
		return 1, err
	case renderbatch.FrameAttribute:
		return 0, fmt.Errorf("attribute frame %d outside an element: %w", frameIndex, ErrInvalidEdit)
	case renderbatch.FrameComponent:
		c, err := r.tree.CreateContainer(parent, at)
		if err != nil {
			return 0, err
		}
		r.components[f.ComponentID] = c
		return 1, nil
	case renderbatch.FrameRegion:
		return r.insertFrameRange(v, componentID, parent, at, frameIndex+1, frameIndex+subtreeLength(f))
	case renderbatch.FrameElementReferenceCapture:
		if parent.Node().Type != html.ElementNode {
			return 0, fmt.Errorf("reference capture %q outside an element: %w", f.Content, ErrInvalidEdit)
		}
		setAttr(parent.Node(), "_bl_"+f.Content, "")
		return 0, nil
	case renderbatch.FrameMarkup:
		return 1, r.insertMarkup(parent, at, f.Content)
	case renderbatch.FrameComponentReferenceCapture, renderbatch.FrameComponentRenderMode, renderbatch.FrameNamedEvent:
		return 0, nil
	}
	return 0, fmt.Errorf("frame %d has unknown type %d: %w", frameIndex, int32(f.Type), ErrInvalidEdit)
}

func (r *Reconciler) insertFrameRange(v *wire.BatchView, componentID int32, parent *logical.Element, at, start, end int) (int, error) {
	first := at
	for idx := start; idx < end; {
		f, err := r.frame(v, idx)
		if err != nil {
			return at - first, err
		}
		n, err := r.insertFrame(v, componentID, parent, at, f, idx)
		if err != nil {
			return at - first, err
		}
		at += n
		idx += subtreeLength(f)
	}
	return at - first, nil
}

func (r *Reconciler) insertElement(v *wire.BatchView, componentID int32, parent *logical.Element, at int, f renderbatch.Frame, frameIndex int) error {
	node := &html.Node{Type: html.ElementNode, Data: f.Name, DataAtom: atom.Lookup([]byte(f.Name))}
	if f.Name == "svg" || logical.IsSVG(parent) {
		node.Namespace = "svg"
	}

	end := frameIndex + subtreeLength(f)
	inserted := false
	for idx := frameIndex + 1; idx < end; idx++ {
		child, err := r.frame(v, idx)
		if err != nil {
			return err
		}
		if child.Type == renderbatch.FrameAttribute {
			if err := r.applyAttribute(componentID, node, child); err != nil {
				return err
			}
			continue
		}
		el, err := r.tree.InsertChild(node, parent, at)
		if err != nil {
			return err
		}
		inserted = true
		if _, err := r.insertFrameRange(v, componentID, el, 0, idx, end); err != nil {
			return err
		}
		break
	}
	if !inserted {
		if _, err := r.tree.InsertChild(node, parent, at); err != nil {
			return err
		}
	}

	r.forms.applyDeferred(node)
	if isElement(node, "option") {
		r.forms.optionInserted(node)
	}
	return nil
}

func (r *Reconciler) insertMarkup(parent *logical.Element, at int, markup string) error {
	container, err := r.tree.CreateContainer(parent, at)
	if err != nil {
		return err
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), fragmentContext(parent))
	if err != nil {
		return fmt.Errorf("parse markup: %w", err)
	}
	for i, n := range nodes {
		if _, err := r.tree.InsertChild(n, container, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) applyAttribute(componentID int32, node *html.Node, f renderbatch.Frame) error {
	if f.EventHandlerID != 0 {
		r.delegator.SetListener(node, strings.TrimPrefix(f.Name, "on"), f.EventHandlerID, componentID)
		return nil
	}
	return r.setOrRemoveAttribute(node, f.Name, f.Value)
}

func (r *Reconciler) setOrRemoveAttribute(node *html.Node, name string, value *string) error {
	if r.forms.tryApply(node, name, value) {
		return nil
	}
	if internal, ok := strings.CutPrefix(name, internalAttributePrefix); ok {
		return r.applyInternalAttribute(node, internal, value != nil)
	}
	if value == nil {
		removeAttr(node, name)
		return nil
	}
	setAttr(node, name, *value)
	return nil
}

func (r *Reconciler) applyInternalAttribute(node *html.Node, name string, on bool) error {
	if event, ok := strings.CutPrefix(name, "stopPropagation_"); ok {
		r.delegator.SetStopPropagation(node, event, on)
		return nil
	}
	if event, ok := strings.CutPrefix(name, "preventDefault_"); ok {
		r.delegator.SetPreventDefault(node, event, on)
		return nil
	}
	return fmt.Errorf("unsupported internal attribute %q: %w", name, ErrInvalidEdit)
}

// textFor encodes script bodies as JavaScript string content; the HTML
// serializer writes script text raw.
func textFor(parent *logical.Element, content string) string {
	if n := logical.ClosestDOMElement(parent); n != nil && isElement(n, "script") {
		return template.JSEscapeString(content)
	}
	return content
}

func fragmentContext(parent *logical.Element) *html.Node {
	if logical.IsSVG(parent) {
		return &html.Node{Type: html.ElementNode, Data: "svg", DataAtom: atom.Svg, Namespace: "svg"}
	}
	if n := logical.ClosestDOMElement(parent); n != nil && n.Type == html.ElementNode {
		return &html.Node{Type: html.ElementNode, Data: n.Data, DataAtom: n.DataAtom, Namespace: n.Namespace}
	}
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func subtreeLength(f renderbatch.Frame) int {
	switch f.Type {
	case renderbatch.FrameElement, renderbatch.FrameComponent, renderbatch.FrameRegion:
		if f.SubtreeLength > 1 {
			return int(f.SubtreeLength)
		}
	}
	return 1
}
