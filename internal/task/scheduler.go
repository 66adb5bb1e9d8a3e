// Package task runs background work off the UI goroutine and hands any
// resulting state change back to the owner as a continuation.
//
// Work never touches state.ChatState directly. It returns a Continuation that
// the owner applies later, one at a time, between its own mutations. Each
// submission gets its own goroutine; results wait in per-priority queues so a
// worker never blocks on a slow consumer.
package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/atomicstack/chatterm/internal/feed"
	"github.com/atomicstack/chatterm/internal/logging/events"
	"github.com/atomicstack/chatterm/internal/state"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("task scheduler closed")

// Priority orders ready results; it has no effect on mutual exclusion.
type Priority int

const (
	Normal Priority = iota
	Preempt
)

func (p Priority) String() string {
	if p == Preempt {
		return "preempt"
	}
	return "normal"
}

// Continuation is a state transform applied on the owner goroutine.
type Continuation func(*state.ChatState) error

// Work is deferred background computation. It may return nil when there is no
// state to change.
type Work func() (Continuation, error)

// Result is a finished submission awaiting the owner.
type Result struct {
	Name         string
	Priority     Priority
	Continuation Continuation
	Err          error
}

// Apply runs the continuation against st. A failed result returns its error
// without touching st.
func (r Result) Apply(st *state.ChatState) error {
	if r.Err != nil {
		return r.Err
	}
	if r.Continuation == nil {
		return nil
	}
	events.Task.Apply(r.Name)
	if err := r.Continuation(st); err != nil {
		return fmt.Errorf("%s: %w", r.Name, err)
	}
	return nil
}

// Scheduler dispatches work and queues results for the owner.
type Scheduler struct {
	preempt *feed.Feed[Result]
	normal  *feed.Feed[Result]
	wg      sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		preempt: feed.New[Result](),
		normal:  feed.New[Result](),
		done:    make(chan struct{}),
	}
}

// Submit starts w on its own goroutine. It never blocks.
func (s *Scheduler) Submit(p Priority, name string, w Work) {
	events.Task.Submit(name, p.String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cont, err := run(w)
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			events.Task.Fail(name, err)
		} else {
			events.Task.Done(name, cont != nil)
		}
		if err == nil && cont == nil {
			return
		}
		res := Result{Name: name, Priority: p, Continuation: cont, Err: err}
		if p == Preempt {
			s.preempt.Publish(res)
			return
		}
		s.normal.Publish(res)
	}()
}

func run(w Work) (cont Continuation, err error) {
	defer func() {
		if r := recover(); r != nil {
			cont = nil
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	if w == nil {
		return nil, nil
	}
	return w()
}

// TryNext returns a ready result without blocking, preempt results first.
func (s *Scheduler) TryNext() (Result, bool) {
	if r, ok := s.preempt.TryNext(); ok {
		return r, true
	}
	return s.normal.TryNext()
}

// Next blocks until a result is ready. Only the owner should call it.
func (s *Scheduler) Next(ctx context.Context) (Result, error) {
	for {
		if r, ok := s.TryNext(); ok {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-s.done:
			if r, ok := s.TryNext(); ok {
				return r, nil
			}
			return Result{}, ErrClosed
		case <-s.preempt.Ready():
		case <-s.normal.Ready():
		}
	}
}

// Wait blocks until every submitted work function has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Pending reports queued results not yet taken by the owner.
func (s *Scheduler) Pending() int {
	return s.preempt.Len() + s.normal.Len()
}

// Close wakes the owner; Next returns ErrClosed once the queues are empty.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// ApplyReady drains every queued result into st and returns the errors
// encountered. It is meant for owners that are not driven by Next.
func (s *Scheduler) ApplyReady(st *state.ChatState) []error {
	var errs []error
	for {
		r, ok := s.TryNext()
		if !ok {
			return errs
		}
		if err := r.Apply(st); err != nil {
			errs = append(errs, err)
		}
	}
}

// Settle waits for in-flight work and applies results until no work remains,
// including work submitted by the continuations themselves.
func (s *Scheduler) Settle(st *state.ChatState) []error {
	var errs []error
	for {
		s.Wait()
		if s.Pending() == 0 {
			return errs
		}
		errs = append(errs, s.ApplyReady(st)...)
	}
}
