package readiness

import (
	"context"
	"sync"
	"sync/atomic"
)

// State tracks whether the inference engine has finished loading its model.
//
// The state starts as loading and transitions to ready exactly once; it never
// reverts. A crashed engine ends the process rather than downgrading state.
type State struct {
	once  sync.Once
	ready atomic.Bool
	ch    chan struct{}
}

// NewState returns a State in the loading phase.
func NewState() *State {
	return &State{ch: make(chan struct{})}
}

// MarkReady transitions the state to ready. Calling it again is a no-op.
func (s *State) MarkReady() {
	s.once.Do(func() {
		s.ready.Store(true)
		close(s.ch)
	})
}

// Ready reports whether the model has finished loading.
func (s *State) Ready() bool {
	return s.ready.Load()
}

// AwaitReady blocks until the state becomes ready or the context ends.
func (s *State) AwaitReady(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
