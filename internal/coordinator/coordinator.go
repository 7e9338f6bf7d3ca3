// Package coordinator tracks in-flight work for one circuit and lets request
// handlers wait until something worth reporting to the client happens.
//
// A handler that dispatches work races the work against
// WaitFor(BatchReceived|OutboundCallQueued). Whichever finishes first decides
// when the long-poll response is flushed. The response reports
// "render completed" exactly when ActiveWorkCount is zero.
package coordinator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// EventKind is a bit set of coordinator events.
type EventKind uint8

const (
	BatchReceived EventKind = 1 << iota
	OutboundCallQueued
	WorkPushed
	WorkPopped
)

// Progress is the mask used by follow-up polls: anything that changes what the
// client would see.
const Progress = BatchReceived | OutboundCallQueued | WorkPopped

func (k EventKind) String() string {
	if k == 0 {
		return "none"
	}
	var parts []string
	for _, e := range []struct {
		kind EventKind
		name string
	}{
		{BatchReceived, "batchReceived"},
		{OutboundCallQueued, "outboundCallQueued"},
		{WorkPushed, "workPushed"},
		{WorkPopped, "workPopped"},
	} {
		if k&e.kind != 0 {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "|")
}

// WorkID identifies one dispatched unit of work.
type WorkID uint64

// Awaiter is a one-shot wait registered with WaitFor.
type Awaiter struct {
	id    uint64
	mask  EventKind
	done  chan struct{}
	fired EventKind
}

// Done is closed once the awaiter resolves.
func (a *Awaiter) Done() <-chan struct{} { return a.done }

// Fired returns the event that resolved the awaiter. It is zero while pending
// and for awaiters that resolved immediately because no work was active.
// Only valid after Done is closed.
func (a *Awaiter) Fired() EventKind { return a.fired }

// Coordinator is safe for concurrent use.
type Coordinator struct {
	mu       sync.Mutex
	awaiters map[uint64]*Awaiter
	active   map[WorkID]struct{}
	nextID   uint64

	nextWork atomic.Uint64
	logger   *slog.Logger
}

// New creates a coordinator with no active work.
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		awaiters: make(map[uint64]*Awaiter),
		active:   make(map[WorkID]struct{}),
		logger:   logger,
	}
}

// NextWorkID returns a fresh id for PushWork.
func (c *Coordinator) NextWorkID() WorkID {
	return WorkID(c.nextWork.Add(1))
}

// WaitFor registers a one-shot awaiter for any event in mask.
//
// With no active work there is nothing to wait for, so the returned awaiter is
// already resolved and nothing is registered.
func (c *Coordinator) WaitFor(mask EventKind) *Awaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := &Awaiter{mask: mask, done: make(chan struct{})}
	if len(c.active) == 0 {
		close(a.done)
		return a
	}
	c.nextID++
	a.id = c.nextID
	c.awaiters[a.id] = a
	return a
}

// Wait blocks until an event in mask fires, no work is active, or ctx ends.
// A cancelled wait is unregistered.
func (c *Coordinator) Wait(ctx context.Context, mask EventKind) (EventKind, error) {
	a := c.WaitFor(mask)
	select {
	case <-a.Done():
		return a.Fired(), nil
	case <-ctx.Done():
		c.Forget(a)
		return 0, ctx.Err()
	}
}

// Forget unregisters a pending awaiter without resolving it.
func (c *Coordinator) Forget(a *Awaiter) {
	c.mu.Lock()
	delete(c.awaiters, a.id)
	c.mu.Unlock()
}

// PushWork marks id as active and notifies WorkPushed.
// Returns false if id is already active.
func (c *Coordinator) PushWork(id WorkID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.active[id]; dup {
		c.logger.Warn("work already active", "work_id", id)
		return false
	}
	c.active[id] = struct{}{}
	c.notifyLocked(WorkPushed)
	return true
}

// PopWork marks id as finished and notifies WorkPopped.
//
// Popping an id that is not active is ignored and returns false, so the
// active count can never go negative.
func (c *Coordinator) PopWork(id WorkID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[id]; !ok {
		c.logger.Warn("pop of inactive work ignored", "work_id", id)
		return false
	}
	delete(c.active, id)
	c.notifyLocked(WorkPopped)
	return true
}

// NotifyBatchReceived signals that a render batch was queued.
func (c *Coordinator) NotifyBatchReceived() { c.notify(BatchReceived) }

// NotifyOutboundCallQueued signals that a call into the client was queued.
func (c *Coordinator) NotifyOutboundCallQueued() { c.notify(OutboundCallQueued) }

// ActiveWorkCount returns the number of pushed but not yet popped work units.
func (c *Coordinator) ActiveWorkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// PendingAwaiters returns the number of registered, unresolved awaiters.
func (c *Coordinator) PendingAwaiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.awaiters)
}

func (c *Coordinator) notify(kind EventKind) {
	c.mu.Lock()
	c.notifyLocked(kind)
	c.mu.Unlock()
}

func (c *Coordinator) notifyLocked(kind EventKind) {
	for id, a := range c.awaiters {
		if a.mask&kind == 0 {
			continue
		}
		a.fired = kind
		close(a.done)
		delete(c.awaiters, id)
	}
}
