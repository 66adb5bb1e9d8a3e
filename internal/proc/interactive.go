package proc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/atomicstack/chatterm/internal/logging"
	"github.com/atomicstack/chatterm/internal/logging/events"
	"github.com/atomicstack/chatterm/internal/state"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// ErrInteractiveBusy is returned when a foreground program already owns the
// terminal.
var ErrInteractiveBusy = errors.New("another program is already running in the foreground")

// set while a child process owns the terminal
var interactiveActive atomic.Bool

// InteractiveDoneMsg is delivered to the owner once the child exits and the
// UI has the terminal back.
type InteractiveDoneMsg struct {
	Command string
	Args    []string
	Err     error

	resumeMode state.Mode
}

// InteractiveRun suspends the UI and runs the program in the foreground. If
// the current channel has no new-messages marker, one is installed so posts
// arriving meanwhile show as new. The owner must pass the resulting
// InteractiveDoneMsg to FinishInteractive.
func (r *Runner) InteractiveRun(st *state.ChatState, command string, args []string) (tea.Cmd, error) {
	if !interactiveActive.CompareAndSwap(false, true) {
		return nil, ErrInteractiveBusy
	}
	installed := false
	if ch, ok := st.CurrentChannel(); ok {
		installed = ch.InstallNewMessagesMarker(st.Now())
	}
	events.Proc.Suspend(st.CurrentChannelID(), installed)

	resume := st.Mode
	st.Mode = state.ModeSuspended
	argv := append([]string(nil), args...)
	c := &interactiveCommand{name: command, args: argv}
	return tea.Exec(c, func(err error) tea.Msg {
		return InteractiveDoneMsg{Command: command, Args: argv, Err: err, resumeMode: resume}
	}), nil
}

// FinishInteractive restores the UI mode and releases the terminal switch.
func (r *Runner) FinishInteractive(st *state.ChatState, msg InteractiveDoneMsg) {
	st.Mode = msg.resumeMode
	interactiveActive.Store(false)
	events.Proc.Resume(msg.Command)
	if msg.Err != nil {
		logging.Error(msg.Err)
	}
}

// interactiveCommand implements tea.ExecCommand. On failure it keeps the
// terminal until the user acknowledges the message with a keypress.
type interactiveCommand struct {
	name   string
	args   []string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (c *interactiveCommand) SetStdin(r io.Reader)  { c.stdin = r }
func (c *interactiveCommand) SetStdout(w io.Writer) { c.stdout = w }
func (c *interactiveCommand) SetStderr(w io.Writer) { c.stderr = w }

func (c *interactiveCommand) Run() error {
	if c.stdin == nil {
		c.stdin = os.Stdin
	}
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.stderr == nil {
		c.stderr = os.Stderr
	}
	events.Proc.Start(c.name, c.args, true)

	cmd := execCommand(c.name, c.args...)
	cmd.Stdin = c.stdin
	cmd.Stdout = c.stdout
	cmd.Stderr = c.stderr

	var failure error
	if err := cmd.Start(); err != nil {
		events.Proc.SpawnFailed(c.name, err)
		failure = fmt.Errorf("could not start %s: %w", c.name, err)
	} else if err := cmd.Wait(); err != nil {
		code := exitCode(err)
		events.Proc.Exit(c.name, code)
		failure = fmt.Errorf("%s exited with status %d", c.name, code)
	} else {
		events.Proc.Exit(c.name, 0)
		return nil
	}

	fmt.Fprintf(c.stdout, "\r\n%v\r\nPress any key to return.\r\n", failure)
	waitForKey(c.stdin)
	return failure
}

// waitForKey reads a single key, switching a terminal to raw mode so the
// user does not have to press enter.
func waitForKey(r io.Reader) {
	if f, ok := r.(*os.File); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			if prev, err := term.MakeRaw(fd); err == nil {
				defer term.Restore(fd, prev) //nolint:errcheck
			}
		}
	}
	buf := make([]byte, 1)
	_, _ = r.Read(buf)
}
