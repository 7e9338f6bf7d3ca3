package circuit

import (
	"errors"
	"sync"
)

// Scope holds resources whose lifetime is the circuit's lifetime.
// Close runs registered closers in reverse registration order, once.
type Scope struct {
	mu      sync.Mutex
	closers []func() error
	closed  bool
}

func newScope() *Scope {
	return &Scope{}
}

// OnClose registers fn to run when the scope closes. If the scope is already
// closed, fn runs immediately.
func (s *Scope) OnClose(fn func() error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = fn()
		return
	}
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
}

// Closed reports whether Close has run.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases every registered resource and joins their errors.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
