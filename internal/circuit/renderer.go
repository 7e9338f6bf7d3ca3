package circuit

import (
	"context"
	"encoding/json"

	"github.com/roach88/lightmode/internal/protocol"
	"github.com/roach88/lightmode/internal/renderbatch"
)

// Renderer is the component framework behind a circuit. It owns the
// component tree and produces render batches through the Session.
//
// Every method runs inside a unit of work, so calls for one circuit never
// overlap. An error wrapping ErrRendererFatal faults the circuit; any other
// error is logged and the circuit carries on.
type Renderer interface {
	// RootComponents lists the components the client attaches on start.
	RootComponents() []protocol.RootComponent

	// Start renders the root components for the initial location.
	Start(ctx context.Context, s Session, location string) error

	// OnEvent dispatches a browser event to its handler.
	OnEvent(ctx context.Context, s Session, ev Event) error

	// OnLocationChanged reacts to client-side navigation.
	OnLocationChanged(ctx context.Context, s Session, location string, intercepted bool) error

	// OnAfterRender runs after-render callbacks for the given components.
	OnAfterRender(ctx context.Context, s Session, componentIDs []int32) error

	// Close releases renderer resources. Called once, on circuit disposal.
	Close() error
}

// MethodInvoker is implemented by renderers that expose methods other than
// event dispatch to the client.
type MethodInvoker interface {
	InvokeMethod(ctx context.Context, s Session, call MethodCall) error
}

// RendererFactory creates the renderer for a new circuit.
type RendererFactory func(sc SessionContext) (Renderer, error)

// SessionContext describes the request that opened a circuit.
type SessionContext struct {
	Location   string
	UserAgent  string
	RemoteAddr string
}

// Event is a browser event routed to a handler.
type Event struct {
	Descriptor protocol.EventDescriptor
	Args       json.RawMessage
}

// MethodCall is a non-event method invocation from the client.
type MethodCall struct {
	AssemblyName     string
	MethodIdentifier string
	ObjectReference  int64
	Arguments        []json.RawMessage
}

// ClientCall describes a call into the client.
type ClientCall struct {
	Identifier       string
	Args             json.RawMessage
	ResultKind       protocol.ResultKind
	TargetInstanceID int64
}

// Session is the renderer's handle on its circuit.
type Session interface {
	// CircuitID returns the id of the owning circuit.
	CircuitID() string

	// Scope returns the circuit's service scope.
	Scope() *Scope

	// UpdateDisplay encodes b and queues it for the next response.
	// Batches reach the client in the order UpdateDisplay is called.
	UpdateDisplay(b *renderbatch.Batch) error

	// InvokeClient queues a call into the client and blocks until the client
	// completes it. The unit of work yields its turn while waiting.
	InvokeClient(ctx context.Context, call ClientCall) (json.RawMessage, error)
}
