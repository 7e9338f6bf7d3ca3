// Package host implements the circuit operations behind the HTTP surface.
// Every operation except Start addresses an existing circuit by id; unknown
// or evicted ids fail with a NOT_FOUND circuit error and dispatch no work.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/lightmode/internal/circuit"
	"github.com/roach88/lightmode/internal/protocol"
)

// ErrInvalidArguments is returned when a request body is well-formed JSON
// but cannot describe a valid operation.
var ErrInvalidArguments = errors.New("invalid arguments")

// Host resolves circuit ids and forwards operations.
type Host struct {
	reg    *circuit.Registry
	logger *slog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// New creates a host over reg.
func New(reg *circuit.Registry, opts ...Option) *Host {
	h := &Host{reg: reg, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "host")
	return h
}

// Registry returns the underlying registry.
func (h *Host) Registry() *circuit.Registry { return h.reg }

func (h *Host) resolve(id string) (*circuit.Circuit, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing requestId", ErrInvalidArguments)
	}
	c, err := h.reg.Get(id)
	if err != nil {
		return nil, err
	}
	c.Touch()
	return c, nil
}

// Start creates a circuit and renders its root components.
func (h *Host) Start(ctx context.Context, sc circuit.SessionContext) (*protocol.StartResponse, error) {
	c, err := h.reg.Create(ctx, sc)
	if err != nil {
		return nil, err
	}
	resp, err := c.Start(ctx, sc.Location)
	if err != nil {
		if !circuit.IsFaulted(err) {
			h.reg.Evict(ctx, c.ID(), circuit.ReasonExplicit)
		}
		return nil, fmt.Errorf("start circuit %s: %w", c.ID(), err)
	}
	return &protocol.StartResponse{
		RequestID:      c.ID(),
		RootComponents: c.RootComponents(),
		Response:       *resp,
	}, nil
}

// InvokeMethod dispatches an event or a renderer method.
func (h *Host) InvokeMethod(ctx context.Context, args protocol.InvokeMethodArgs) (*protocol.Response, error) {
	c, err := h.resolve(args.RequestID)
	if err != nil {
		return nil, err
	}
	if args.MethodIdentifier == protocol.DispatchEventMethod && len(args.Arguments) == 2 {
		var d protocol.EventDescriptor
		if err := json.Unmarshal(args.Arguments[0], &d); err != nil {
			return nil, fmt.Errorf("%w: event descriptor: %v", ErrInvalidArguments, err)
		}
		return c.DispatchEvent(ctx, circuit.Event{Descriptor: d, Args: args.Arguments[1]})
	}
	call := circuit.MethodCall{
		MethodIdentifier: args.MethodIdentifier,
		ObjectReference:  args.ObjectReference,
		Arguments:        args.Arguments,
	}
	if args.AssemblyName != nil {
		call.AssemblyName = *args.AssemblyName
	}
	return c.InvokeMethod(ctx, call)
}

// LocationChanged reports client-side navigation.
func (h *Host) LocationChanged(ctx context.Context, args protocol.LocationChangedArgs) (*protocol.Response, error) {
	c, err := h.resolve(args.RequestID)
	if err != nil {
		return nil, err
	}
	return c.LocationChanged(ctx, args.Location, args.Intercepted)
}

// AfterRender runs after-render callbacks.
func (h *Host) AfterRender(ctx context.Context, args protocol.AfterRenderArgs) (*protocol.Response, error) {
	c, err := h.resolve(args.RequestID)
	if err != nil {
		return nil, err
	}
	return c.AfterRender(ctx)
}

// EndInvoke completes an outbound call.
func (h *Host) EndInvoke(ctx context.Context, args protocol.EndInvokeArgs) (*protocol.Response, error) {
	c, err := h.resolve(args.RequestID)
	if err != nil {
		return nil, err
	}
	if args.AsyncHandle == nil {
		return nil, fmt.Errorf("%w: missing asyncHandle", ErrInvalidArguments)
	}
	return c.EndInvoke(ctx, *args.AsyncHandle, args.Success, args.Result)
}

// WaitForRender holds the request until there is something to send.
func (h *Host) WaitForRender(ctx context.Context, args protocol.WaitForRenderArgs) (*protocol.Response, error) {
	c, err := h.resolve(args.RequestID)
	if err != nil {
		return nil, err
	}
	return c.WaitForRender(ctx)
}
