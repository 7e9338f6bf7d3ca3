// Package demo provides a small counter application rendered over a circuit.
// It is served by the serve command and drives the integration tests.
package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/lightmode/internal/circuit"
	"github.com/roach88/lightmode/internal/protocol"
	rb "github.com/roach88/lightmode/internal/renderbatch"
)

// RootComponentID is the id of the counter's root component.
const RootComponentID int32 = 1

// Handler ids bound by the counter.
const (
	IncrementHandlerID uint64 = 1
	AskHandlerID       uint64 = 2
)

// PromptIdentifier is the client function the Ask button calls.
const PromptIdentifier = "lightmode.prompt"

// ResetMethod is a non-event method that zeroes the counter.
const ResetMethod = "Reset"

// Sibling positions of the children of the counter's root div.
const (
	countIndex    = 0
	greetingIndex = 3
	locationIndex = 4
)

// Counter renders:
//
//	<div class="counter">
//	  <p>Count: N</p>
//	  <button onclick>+1</button>
//	  <button onclick>Ask</button>
//	  <output>greeting</output>
//	  <small>location</small>
//	</div>
type Counter struct {
	selector    string
	count       int
	location    string
	afterRender int
	logger      *slog.Logger
}

// NewCounter is a circuit.RendererFactory.
func NewCounter(sc circuit.SessionContext) (circuit.Renderer, error) {
	return &Counter{
		selector: "app",
		location: sc.Location,
		logger:   slog.Default().With("component", "demo"),
	}, nil
}

func (c *Counter) RootComponents() []protocol.RootComponent {
	return []protocol.RootComponent{{ComponentID: RootComponentID, Selector: c.selector}}
}

func (c *Counter) Start(_ context.Context, s circuit.Session, location string) error {
	if location != "" {
		c.location = location
	}
	b := &rb.Batch{}
	root := b.AppendFrames(
		rb.Element("div", 14),
		rb.Attribute("class", "counter"),
		rb.Element("p", 2),
		rb.Text(countText(c.count)),
		rb.Element("button", 3),
		rb.EventHandler("onclick", IncrementHandlerID),
		rb.Text("+1"),
		rb.Element("button", 3),
		rb.EventHandler("onclick", AskHandlerID),
		rb.Text("Ask"),
		rb.Element("output", 2),
		rb.Text(""),
		rb.Element("small", 2),
		rb.Text(c.location),
	)
	b.AddDiff(RootComponentID, rb.PrependFrame(0, root))
	return s.UpdateDisplay(b)
}

func (c *Counter) OnEvent(ctx context.Context, s circuit.Session, ev circuit.Event) error {
	switch ev.Descriptor.EventHandlerID {
	case IncrementHandlerID:
		c.count++
		return c.updateText(s, countIndex, countText(c.count))
	case AskHandlerID:
		args, err := json.Marshal([]string{"What is your name?"})
		if err != nil {
			return err
		}
		result, err := s.InvokeClient(ctx, circuit.ClientCall{Identifier: PromptIdentifier, Args: args})
		if err != nil {
			return fmt.Errorf("prompt: %w", err)
		}
		var name string
		if err := json.Unmarshal(result, &name); err != nil {
			return fmt.Errorf("prompt result: %w", err)
		}
		return c.updateText(s, greetingIndex, "Hello, "+name)
	default:
		c.logger.Warn("event for unknown handler", "handler_id", ev.Descriptor.EventHandlerID)
		return nil
	}
}

func (c *Counter) OnLocationChanged(_ context.Context, s circuit.Session, location string, _ bool) error {
	c.location = location
	return c.updateText(s, locationIndex, location)
}

func (c *Counter) OnAfterRender(_ context.Context, _ circuit.Session, ids []int32) error {
	c.afterRender++
	c.logger.Debug("after render", "components", ids, "calls", c.afterRender)
	return nil
}

// InvokeMethod implements circuit.MethodInvoker.
func (c *Counter) InvokeMethod(_ context.Context, s circuit.Session, call circuit.MethodCall) error {
	if call.MethodIdentifier != ResetMethod {
		return fmt.Errorf("unknown method %q", call.MethodIdentifier)
	}
	c.count = 0
	return c.updateText(s, countIndex, countText(c.count))
}

func (c *Counter) Close() error { return nil }

func (c *Counter) updateText(s circuit.Session, childIndex int32, text string) error {
	b := &rb.Batch{}
	f := b.AppendFrames(rb.Text(text))
	b.AddDiff(RootComponentID,
		rb.StepIn(0),
		rb.StepIn(childIndex),
		rb.UpdateText(0, f),
		rb.StepOut(),
		rb.StepOut(),
	)
	return s.UpdateDisplay(b)
}

func countText(n int) string { return fmt.Sprintf("Count: %d", n) }
