package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/net/html"

	"github.com/roach88/lightmode/internal/protocol"
)

// EventSink receives events routed to a server-side handler.
type EventSink interface {
	DispatchEvent(ctx context.Context, descriptor protocol.EventDescriptor, args json.RawMessage) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, descriptor protocol.EventDescriptor, args json.RawMessage) error

func (f EventSinkFunc) DispatchEvent(ctx context.Context, d protocol.EventDescriptor, args json.RawMessage) error {
	return f(ctx, d, args)
}

// NativeEvent is a DOM event raised on Target.
type NativeEvent struct {
	Name   string
	Target *html.Node
	Args   json.RawMessage
}

// DispatchResult reports what happened while an event bubbled.
type DispatchResult struct {
	Handled          int
	DefaultPrevented bool
}

// Events that are delivered only to their target.
var nonBubblingEvents = map[string]bool{
	"abort": true, "blur": true, "cancel": true, "canplay": true, "canplaythrough": true,
	"change": true, "close": true, "cuechange": true, "durationchange": true, "emptied": true,
	"ended": true, "error": true, "focus": true, "load": true, "loadeddata": true,
	"loadedmetadata": true, "loadend": true, "loadstart": true, "mouseenter": true,
	"mouseleave": true, "pointerenter": true, "pointerleave": true, "pause": true, "play": true,
	"playing": true, "progress": true, "ratechange": true, "reset": true, "scroll": true,
	"seeked": true, "seeking": true, "stalled": true, "submit": true, "suspend": true,
	"timeupdate": true, "toggle": true, "unload": true, "volumechange": true, "waiting": true,
}

// Mouse events that disabled form controls swallow.
var disableableEvents = map[string]bool{
	"click": true, "dblclick": true, "mousedown": true, "mousemove": true, "mouseup": true,
}

type listener struct {
	node        *html.Node
	eventName   string
	handlerID   uint64
	componentID int32
}

type elementListeners struct {
	handlers map[string]*listener
	stop     map[string]bool
	prevent  map[string]bool
}

// Delegator keeps one logical listener table for the whole document and
// simulates capture by walking from the event target up through DOM parents.
// It is not safe for concurrent use.
type Delegator struct {
	sink     EventSink
	forms    *forms
	elements map[*html.Node]*elementListeners
	byID     map[uint64]*listener
	counts   map[string]int
}

func newDelegator(sink EventSink, f *forms) *Delegator {
	return &Delegator{
		sink:     sink,
		forms:    f,
		elements: make(map[*html.Node]*elementListeners),
		byID:     make(map[uint64]*listener),
		counts:   make(map[string]int),
	}
}

func (d *Delegator) listenersFor(n *html.Node, create bool) *elementListeners {
	el := d.elements[n]
	if el == nil && create {
		el = &elementListeners{
			handlers: make(map[string]*listener),
			stop:     make(map[string]bool),
			prevent:  make(map[string]bool),
		}
		d.elements[n] = el
	}
	return el
}

// SetListener binds handlerID to eventName on n. Rebinding an event on the
// same element replaces the handler id in place.
func (d *Delegator) SetListener(n *html.Node, eventName string, handlerID uint64, componentID int32) {
	el := d.listenersFor(n, true)
	if existing := el.handlers[eventName]; existing != nil {
		delete(d.byID, existing.handlerID)
		existing.handlerID = handlerID
		existing.componentID = componentID
		d.byID[handlerID] = existing
		return
	}
	l := &listener{node: n, eventName: eventName, handlerID: handlerID, componentID: componentID}
	el.handlers[eventName] = l
	d.byID[handlerID] = l
	d.counts[eventName]++
}

// RemoveListener unbinds a handler id. Unknown ids are ignored.
func (d *Delegator) RemoveListener(handlerID uint64) {
	l, ok := d.byID[handlerID]
	if !ok {
		return
	}
	delete(d.byID, handlerID)
	d.counts[l.eventName]--
	if d.counts[l.eventName] <= 0 {
		delete(d.counts, l.eventName)
	}
	if el := d.elements[l.node]; el != nil {
		delete(el.handlers, l.eventName)
		d.prune(l.node, el)
	}
}

func (d *Delegator) prune(n *html.Node, el *elementListeners) {
	if len(el.handlers) == 0 && len(el.stop) == 0 && len(el.prevent) == 0 {
		delete(d.elements, n)
	}
}

// SetStopPropagation toggles whether eventName stops bubbling at n.
func (d *Delegator) SetStopPropagation(n *html.Node, eventName string, on bool) {
	el := d.listenersFor(n, on)
	if el == nil {
		return
	}
	if on {
		el.stop[eventName] = true
		return
	}
	delete(el.stop, eventName)
	d.prune(n, el)
}

// SetPreventDefault toggles whether eventName has its default action
// suppressed when it passes n.
func (d *Delegator) SetPreventDefault(n *html.Node, eventName string, on bool) {
	el := d.listenersFor(n, on)
	if el == nil {
		return
	}
	if on {
		el.prevent[eventName] = true
		return
	}
	delete(el.prevent, eventName)
	d.prune(n, el)
}

// HandlerID returns the handler bound to eventName on n.
func (d *Delegator) HandlerID(n *html.Node, eventName string) (uint64, bool) {
	if el := d.elements[n]; el != nil {
		if l := el.handlers[eventName]; l != nil {
			return l.handlerID, true
		}
	}
	return 0, false
}

// ListenerCount returns how many handlers are bound for eventName.
func (d *Delegator) ListenerCount(eventName string) int { return d.counts[eventName] }

// Dispatch delivers ev to every matching handler from the target upwards.
func (d *Delegator) Dispatch(ctx context.Context, ev NativeEvent) (DispatchResult, error) {
	var res DispatchResult
	if ev.Target == nil {
		return res, fmt.Errorf("dispatch %s: no target", ev.Name)
	}
	args := ev.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	bubbles := !nonBubblingEvents[ev.Name]
	stopped := false
	for n := ev.Target; n != nil; n = parentElement(n) {
		el := d.elements[n]
		if el != nil {
			if l := el.handlers[ev.Name]; l != nil && !disabledFor(n, ev.Name) {
				desc := protocol.EventDescriptor{
					EventHandlerID: l.handlerID,
					EventName:      ev.Name,
					EventFieldInfo: d.fieldInfo(l.componentID, ev.Target),
				}
				if d.sink == nil {
					return res, fmt.Errorf("dispatch %s: no event sink", ev.Name)
				}
				if err := d.sink.DispatchEvent(ctx, desc, args); err != nil {
					return res, fmt.Errorf("dispatch %s to handler %d: %w", ev.Name, l.handlerID, err)
				}
				res.Handled++
				if ev.Name == "submit" {
					res.DefaultPrevented = true
				}
			}
			if el.stop[ev.Name] {
				stopped = true
			}
			if el.prevent[ev.Name] {
				res.DefaultPrevented = true
			}
		}
		if !bubbles || stopped {
			break
		}
	}
	return res, nil
}

func (d *Delegator) fieldInfo(componentID int32, target *html.Node) *protocol.EventFieldInfo {
	switch {
	case isElement(target, "input"):
		if t, _ := attr(target, "type"); t == "checkbox" {
			return &protocol.EventFieldInfo{ComponentID: componentID, FieldValue: d.forms.isChecked(target)}
		}
		return &protocol.EventFieldInfo{ComponentID: componentID, FieldValue: d.forms.value(target)}
	case isElement(target, "select"), isElement(target, "textarea"):
		return &protocol.EventFieldInfo{ComponentID: componentID, FieldValue: d.forms.value(target)}
	}
	return nil
}

func disabledFor(n *html.Node, eventName string) bool {
	if !disableableEvents[eventName] || !hasAttr(n, "disabled") {
		return false
	}
	return isElement(n, "button") || isElement(n, "input") || isElement(n, "textarea") || isElement(n, "select")
}

func parentElement(n *html.Node) *html.Node {
	if p := n.Parent; p != nil && p.Type == html.ElementNode {
		return p
	}
	return nil
}
