// Package proc runs external programs, either in the background with their
// output captured to the program log or in the foreground with the terminal
// handed over to the child.
package proc

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/feed"
	"github.com/atomicstack/chatterm/internal/logging/events"
	"github.com/atomicstack/chatterm/internal/task"
)

// failureExitCode is reported when a program could not be run at all.
const failureExitCode = 1

var execCommand = exec.Command

// Runner executes programs and publishes every ProgramOutput to its log.
type Runner struct {
	log   *feed.Feed[chat.ProgramOutput]
	sched *task.Scheduler
}

// NewRunner returns a runner that backgrounds logged runs on sched.
func NewRunner(sched *task.Scheduler) *Runner {
	return &Runner{log: feed.New[chat.ProgramOutput](), sched: sched}
}

// Log is the program output feed. Publishing never blocks; the single
// consumer is expected to drain it.
func (r *Runner) Log() *feed.Feed[chat.ProgramOutput] {
	return r.log
}

// LoggedRun runs the program off the owner goroutine. The output goes to the
// log and, when slot is non-nil, into slot. Spawn failures are reported as
// output, never as errors.
func (r *Runner) LoggedRun(command string, args []string, stdin *string, slot *ResultSlot) {
	argv := append([]string(nil), args...)
	work := func() (task.Continuation, error) {
		out := r.Run(command, argv, stdin)
		if slot != nil {
			slot.Put(out)
		}
		return nil, nil
	}
	if r.sched == nil {
		go work()
		return
	}
	r.sched.Submit(task.Normal, "run "+command, work)
}

// Run executes the program synchronously, feeding stdin when given, and
// returns once both output streams are drained.
func (r *Runner) Run(command string, args []string, stdin *string) chat.ProgramOutput {
	events.Proc.Start(command, args, false)
	out := chat.ProgramOutput{Command: command, Args: append([]string(nil), args...)}

	cmd := execCommand(command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = strings.NewReader(*stdin)
	}

	if err := cmd.Start(); err != nil {
		events.Proc.SpawnFailed(command, err)
		out.Stderr = err.Error()
		out.ExitCode = failureExitCode
		r.log.Publish(out)
		return out
	}
	err := cmd.Wait()
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	out.ExitCode = exitCode(err)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		if out.Stderr != "" && !strings.HasSuffix(out.Stderr, "\n") {
			out.Stderr += "\n"
		}
		out.Stderr += err.Error()
	}
	events.Proc.Exit(command, out.ExitCode)
	r.log.Publish(out)
	return out
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
	}
	return failureExitCode
}
