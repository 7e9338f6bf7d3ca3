package circuit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/lightmode/internal/coordinator"
	"github.com/roach88/lightmode/internal/protocol"
	"github.com/roach88/lightmode/internal/renderbatch"
	"github.com/roach88/lightmode/internal/wire"
)

// Circuit is one live UI session.
type Circuit struct {
	id        string
	createdAt time.Time
	clock     Clock
	logger    *slog.Logger

	lastActivity atomic.Int64 // unix nanoseconds

	renderer Renderer
	scope    *Scope
	exec     *executor
	coord    *coordinator.Coordinator

	batches *queue[string]
	calls   *queue[protocol.OutboundCall]

	nextTask  atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan callResult

	renderedMu sync.Mutex
	rendered   map[int32]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error

	faultMu sync.Mutex
	fault   error
	onFault func(c *Circuit, err error)
}

type callResult struct {
	success bool
	result  json.RawMessage
}

func newCircuit(id string, r Renderer, clock Clock, logger *slog.Logger, onFault func(*Circuit, error)) *Circuit {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With("circuit_id", id)
	c := &Circuit{
		id:        id,
		createdAt: clock.Now(),
		clock:     clock,
		logger:    logger,
		renderer:  r,
		scope:     newScope(),
		exec:      newExecutor(),
		coord:     coordinator.New(logger),
		batches:   newQueue[string](),
		calls:     newQueue[protocol.OutboundCall](),
		pending:   make(map[int64]chan callResult),
		rendered:  make(map[int32]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		onFault:   onFault,
	}
	c.lastActivity.Store(c.createdAt.UnixNano())
	c.scope.OnClose(r.Close)
	return c
}

// ID returns the circuit id.
func (c *Circuit) ID() string { return c.id }

// CreatedAt returns when the circuit was created.
func (c *Circuit) CreatedAt() time.Time { return c.createdAt }

// LastActivity returns the time of the most recent inbound request.
func (c *Circuit) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Touch records activity now.
func (c *Circuit) Touch() {
	c.lastActivity.Store(c.clock.Now().UnixNano())
}

// Coordinator exposes the circuit's work tracker.
func (c *Circuit) Coordinator() *coordinator.Coordinator { return c.coord }

// Scope returns the circuit's service scope.
func (c *Circuit) Scope() *Scope { return c.scope }

// RootComponents lists the components the client attaches on start.
func (c *Circuit) RootComponents() []protocol.RootComponent {
	return c.renderer.RootComponents()
}

// Closed reports whether the circuit has been disposed.
func (c *Circuit) Closed() bool { return c.ctx.Err() != nil }

// Fault returns the fatal renderer error, if one occurred.
func (c *Circuit) Fault() error {
	c.faultMu.Lock()
	defer c.faultMu.Unlock()
	return c.fault
}

// WorkFunc is a unit of work. It runs holding the circuit's turn.
type WorkFunc func(ctx context.Context, s Session) error

// Dispatch runs fn as a unit of work and returns a response as soon as the
// unit completes or a render batch or outbound call is queued, whichever
// happens first. A nil fn is an empty unit.
//
// The unit keeps running after an early return; its later batches go out
// with a subsequent response. Cancelling ctx abandons the wait, not the work.
func (c *Circuit) Dispatch(ctx context.Context, name string, fn WorkFunc) (*protocol.Response, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	c.Touch()

	id := c.coord.NextWorkID()
	c.coord.PushWork(id)
	progress := c.coord.WaitFor(coordinator.BatchReceived | coordinator.OutboundCallQueued)
	finished := make(chan struct{})
	go c.runUnit(id, name, fn, finished)

	select {
	case <-finished:
	case <-progress.Done():
	case <-c.ctx.Done():
	case <-ctx.Done():
		c.coord.Forget(progress)
		return nil, ctx.Err()
	}
	c.coord.Forget(progress)

	// A request still queued when the circuit is evicted must not report
	// success from the disposed circuit.
	if err := c.usable(); err != nil {
		return nil, err
	}
	return c.respond(), nil
}

// runUnit executes fn on the circuit's turn. Errors and panics stop at this
// boundary; the work id is always popped.
func (c *Circuit) runUnit(id coordinator.WorkID, name string, fn WorkFunc, finished chan<- struct{}) {
	defer close(finished)
	defer c.coord.PopWork(id)

	u := &unit{c: c}
	if err := c.exec.acquire(c.ctx); err != nil {
		c.logger.Debug("work dropped, circuit closed", "work", name)
		return
	}
	u.held = true
	defer func() {
		if u.held {
			c.exec.release()
		}
	}()

	if fn == nil || c.Closed() {
		return
	}
	err := u.run(name, fn)
	switch {
	case err == nil:
	case errors.Is(err, ErrRendererFatal):
		c.markFaulted(err)
	case IsUnknownCall(err):
		c.logger.Warn("completion for an outbound call that is not pending", "work", name, "error", err)
	default:
		c.logger.Error("unhandled error in work unit", "work", name, "error", err)
	}
}

func (c *Circuit) markFaulted(err error) {
	c.faultMu.Lock()
	first := c.fault == nil
	if first {
		c.fault = err
	}
	c.faultMu.Unlock()
	if !first {
		return
	}
	c.logger.Error("circuit faulted", "error", err)
	if c.onFault != nil {
		go c.onFault(c, err)
	}
}

// respond builds a response from everything queued so far.
//
// The active count is read before draining: any unit that had already
// finished has its batches in the queues, so renderCompleted never hides a
// batch that is not in this response.
func (c *Circuit) respond() *protocol.Response {
	completed := c.coord.ActiveWorkCount() == 0
	batches := c.batches.DrainAll()
	calls := c.calls.DrainAll()
	return &protocol.Response{
		SerializedRenderBatches: batches,
		OutboundCalls:           calls,
		RenderCompleted:         completed,
		NeedsAfterRender:        len(batches) > 0,
	}
}

func (c *Circuit) usable() error {
	if err := c.Fault(); err != nil {
		return &Error{Code: ErrCodeFaulted, CircuitID: c.id, Message: "renderer failed", Err: err}
	}
	if c.Closed() {
		return newError(ErrCodeClosed, c.id, "circuit is closed")
	}
	return nil
}

// Start renders the root components.
func (c *Circuit) Start(ctx context.Context, location string) (*protocol.Response, error) {
	return c.Dispatch(ctx, "start", func(ctx context.Context, s Session) error {
		return c.renderer.Start(ctx, s, location)
	})
}

// DispatchEvent delivers a browser event.
func (c *Circuit) DispatchEvent(ctx context.Context, ev Event) (*protocol.Response, error) {
	return c.Dispatch(ctx, "event", func(ctx context.Context, s Session) error {
		c.logger.Debug("dispatching event",
			"event", ev.Descriptor.EventName, "handler_id", ev.Descriptor.EventHandlerID)
		return c.renderer.OnEvent(ctx, s, ev)
	})
}

// InvokeMethod runs a non-event method. Renderers that do not implement
// MethodInvoker just get the current response.
func (c *Circuit) InvokeMethod(ctx context.Context, call MethodCall) (*protocol.Response, error) {
	inv, ok := c.renderer.(MethodInvoker)
	if !ok {
		c.logger.Debug("method ignored", "method", call.MethodIdentifier)
		return c.Dispatch(ctx, "invokeMethod", nil)
	}
	return c.Dispatch(ctx, "invokeMethod", func(ctx context.Context, s Session) error {
		return inv.InvokeMethod(ctx, s, call)
	})
}

// LocationChanged notifies the renderer of client-side navigation.
func (c *Circuit) LocationChanged(ctx context.Context, location string, intercepted bool) (*protocol.Response, error) {
	return c.Dispatch(ctx, "locationChanged", func(ctx context.Context, s Session) error {
		c.logger.Debug("location changed", "location", location)
		return c.renderer.OnLocationChanged(ctx, s, location, intercepted)
	})
}

// AfterRender runs after-render callbacks for every component rendered since
// the previous call.
func (c *Circuit) AfterRender(ctx context.Context) (*protocol.Response, error) {
	return c.Dispatch(ctx, "afterRender", func(ctx context.Context, s Session) error {
		ids := c.takeRendered()
		if len(ids) == 0 {
			return nil
		}
		return c.renderer.OnAfterRender(ctx, s, ids)
	})
}

// EndInvoke completes the outbound call identified by taskID.
func (c *Circuit) EndInvoke(ctx context.Context, taskID int64, success bool, result json.RawMessage) (*protocol.Response, error) {
	return c.Dispatch(ctx, "endInvoke", func(context.Context, Session) error {
		return c.completeCall(taskID, success, result)
	})
}

// WaitForRender holds the request until a batch or outbound call is queued or
// a unit of work finishes, then responds. With no active work it responds at
// once.
func (c *Circuit) WaitForRender(ctx context.Context) (*protocol.Response, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	c.Touch()

	a := c.coord.WaitFor(coordinator.Progress)
	if c.batches.Len() > 0 || c.calls.Len() > 0 {
		c.coord.Forget(a)
		return c.respond(), nil
	}
	select {
	case <-a.Done():
	case <-ctx.Done():
		c.coord.Forget(a)
		return nil, ctx.Err()
	case <-c.ctx.Done():
		c.coord.Forget(a)
		return nil, newError(ErrCodeClosed, c.id, "circuit closed while waiting")
	}
	if err := c.usable(); err != nil {
		return nil, err
	}
	return c.respond(), nil
}

func (c *Circuit) completeCall(taskID int64, success bool, result json.RawMessage) error {
	c.pendingMu.Lock()
	ch, ok := c.pending[taskID]
	delete(c.pending, taskID)
	c.pendingMu.Unlock()
	if !ok {
		return newError(ErrCodeUnknownCall, c.id, "no pending call with task id %d", taskID)
	}
	ch <- callResult{success: success, result: result}
	return nil
}

func (c *Circuit) takeRendered() []int32 {
	c.renderedMu.Lock()
	defer c.renderedMu.Unlock()
	ids := make([]int32, 0, len(c.rendered))
	for id := range c.rendered {
		ids = append(ids, id)
	}
	clear(c.rendered)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PendingCalls returns the number of outbound calls awaiting completion.
func (c *Circuit) PendingCalls() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// Close disposes the circuit: queued work is dropped, waiting outbound calls
// fail, and the scope (including the renderer) is released. Safe to call more
// than once.
func (c *Circuit) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.exec.close()
		c.batches.Close()
		c.calls.Close()
		c.closeErr = c.scope.Close()
		c.logger.Debug("circuit closed")
	})
	return c.closeErr
}

// unit is the Session handed to the renderer for one unit of work.
type unit struct {
	c    *Circuit
	held bool
}

func (u *unit) run(name string, fn WorkFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			u.c.logger.Error("panic in work unit", "work", name, "panic", r)
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn(u.c.ctx, u)
}

func (u *unit) CircuitID() string { return u.c.id }

func (u *unit) Scope() *Scope { return u.c.scope }

func (u *unit) UpdateDisplay(b *renderbatch.Batch) error {
	encoded, err := wire.EncodeBase64(b)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRendererFatal, err)
	}

	u.c.renderedMu.Lock()
	for _, d := range b.UpdatedComponents {
		u.c.rendered[d.ComponentID] = struct{}{}
	}
	u.c.renderedMu.Unlock()

	if !u.c.batches.Enqueue(encoded) {
		return newError(ErrCodeClosed, u.c.id, "render batch after close")
	}
	u.c.coord.NotifyBatchReceived()
	return nil
}

func (u *unit) InvokeClient(ctx context.Context, call ClientCall) (json.RawMessage, error) {
	c := u.c
	taskID := c.nextTask.Add(1)
	ch := make(chan callResult, 1)

	c.pendingMu.Lock()
	c.pending[taskID] = ch
	c.pendingMu.Unlock()
	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, taskID)
		c.pendingMu.Unlock()
	}

	args := call.Args
	if len(args) == 0 {
		args = json.RawMessage("[]")
	}
	ok := c.calls.Enqueue(protocol.OutboundCall{
		TaskID:           taskID,
		Identifier:       call.Identifier,
		ArgsJSON:         args,
		ResultKind:       call.ResultKind,
		TargetInstanceID: call.TargetInstanceID,
	})
	if !ok {
		forget()
		return nil, newError(ErrCodeClosed, c.id, "outbound call after close")
	}
	c.coord.NotifyOutboundCallQueued()

	// Yield the turn so the completion request can run.
	c.exec.release()
	u.held = false

	var res callResult
	var waitErr error
	select {
	case res = <-ch:
	case <-ctx.Done():
		forget()
		waitErr = ctx.Err()
	}

	if err := c.exec.acquire(c.ctx); err != nil {
		return nil, newError(ErrCodeClosed, c.id, "circuit closed during outbound call %q", call.Identifier)
	}
	u.held = true

	if waitErr != nil {
		return nil, waitErr
	}
	if !res.success {
		return nil, &Error{
			Code:      ErrCodeClientCall,
			CircuitID: c.id,
			Message:   fmt.Sprintf("client call %q failed: %s", call.Identifier, string(res.result)),
		}
	}
	return res.result, nil
}
