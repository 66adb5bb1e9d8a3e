package proc

import (
	"context"
	"sync"

	"github.com/atomicstack/chatterm/internal/chat"
)

// ResultSlot is a single-assignment future for a program's output. The first
// Put wins; any number of readers may wait on it.
type ResultSlot struct {
	once sync.Once
	done chan struct{}
	out  chat.ProgramOutput
}

func NewResultSlot() *ResultSlot {
	return &ResultSlot{done: make(chan struct{})}
}

// Put stores out and reports whether this call filled the slot.
func (s *ResultSlot) Put(out chat.ProgramOutput) bool {
	filled := false
	s.once.Do(func() {
		s.out = out
		filled = true
		close(s.done)
	})
	return filled
}

// Wait blocks until the slot is filled.
func (s *ResultSlot) Wait() chat.ProgramOutput {
	<-s.done
	return s.out
}

// WaitContext blocks until the slot is filled or ctx ends.
func (s *ResultSlot) WaitContext(ctx context.Context) (chat.ProgramOutput, error) {
	select {
	case <-s.done:
		return s.out, nil
	case <-ctx.Done():
		return chat.ProgramOutput{}, ctx.Err()
	}
}

// Filled reports whether a value has been stored.
func (s *ResultSlot) Filled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
