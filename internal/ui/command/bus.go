package command

import (
	"fmt"

	"github.com/atomicstack/chatterm/internal/logging/events"
	"github.com/atomicstack/chatterm/internal/state"
	tea "github.com/charmbracelet/bubbletea"
)

// Action mutates chat state on the owner goroutine and may hand back a
// command for the Bubble Tea runtime.
type Action func(st *state.ChatState) (tea.Cmd, error)

// Request encapsulates an action invocation.
type Request struct {
	ID      string
	Label   string
	Handler Action
}

// Bus coordinates the execution of user actions.
type Bus struct{}

// New initialises a command bus instance.
func New() *Bus {
	return &Bus{}
}

// Execute runs the action immediately against st while emitting trace logs.
// Any command it returns is wrapped so its result message is traced too.
func (b *Bus) Execute(st *state.ChatState, req Request) (tea.Cmd, error) {
	events.Command.Queue(req.ID, req.Label)
	if req.Handler == nil {
		events.Command.Skip(req.ID, req.Label)
		return nil, nil
	}
	cmd, err := req.Handler(st)
	if err != nil {
		events.Action.Error(err)
		return nil, err
	}
	if cmd == nil {
		events.Command.NoOp(req.ID, req.Label)
		return nil, nil
	}
	return func() tea.Msg {
		msg := cmd()
		events.Command.Result(req.ID, req.Label, fmt.Sprintf("%T", msg))
		return msg
	}, nil
}
