package circuit

import "context"

// turn is one grant of the circuit's single logical thread.
type turn struct {
	granted  chan struct{}
	released chan struct{}
}

// executor hands out turns one at a time, in request order.
//
// CRITICAL: the run loop is the only goroutine that decides who runs next.
// Holders call release exactly once per acquire.
type executor struct {
	requests *queue[*turn]
	current  *turn
	stopped  chan struct{}
}

func newExecutor() *executor {
	e := &executor{
		requests: newQueue[*turn](),
		stopped:  make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *executor) run() {
	defer close(e.stopped)
	for {
		t, ok := e.requests.TryDequeue()
		if ok {
			e.current = t
			close(t.granted)
			<-t.released
			continue
		}
		if _, open := <-e.requests.Wait(); !open && e.requests.Len() == 0 {
			return
		}
	}
}

// acquire blocks until the caller holds the turn.
//
// If ctx ends first the request stays queued; the grant is released on
// arrival so later requests are not blocked.
func (e *executor) acquire(ctx context.Context) error {
	t := &turn{granted: make(chan struct{}), released: make(chan struct{})}
	if !e.requests.Enqueue(t) {
		return context.Canceled
	}
	select {
	case <-t.granted:
		return nil
	case <-ctx.Done():
		go func() {
			<-t.granted
			close(t.released)
		}()
		return ctx.Err()
	case <-e.stopped:
		return context.Canceled
	}
}

// release gives up the turn held by the caller.
func (e *executor) release() {
	close(e.current.released)
}

// close stops granting turns once queued requests have been served.
func (e *executor) close() {
	e.requests.Close()
}
