package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/proc"
	"github.com/atomicstack/chatterm/internal/task"
	"github.com/atomicstack/chatterm/internal/users"
	tea "github.com/charmbracelet/bubbletea"
)

type taskResultMsg struct {
	result task.Result
}

type programOutputMsg struct {
	output chat.ProgramOutput
}

type statusUpdateMsg struct {
	update users.StatusUpdate
}

// waitStoppedMsg reports that one of the owner-side waits has ended, either
// because the model shut down or because its source closed.
type waitStoppedMsg struct {
	source string
	err    error
}

func waitForTaskResult(ctx context.Context, sched *task.Scheduler) tea.Cmd {
	return func() tea.Msg {
		res, err := sched.Next(ctx)
		if err != nil {
			return waitStoppedMsg{source: "tasks", err: err}
		}
		return taskResultMsg{result: res}
	}
}

func waitForProgramOutput(ctx context.Context, runner *proc.Runner) tea.Cmd {
	return func() tea.Msg {
		out, err := runner.Log().Next(ctx)
		if err != nil {
			return waitStoppedMsg{source: "programs", err: err}
		}
		return programOutputMsg{output: out}
	}
}

func waitForStatus(ctx context.Context, b *users.Batcher) tea.Cmd {
	return func() tea.Msg {
		upd, err := b.Statuses().Next(ctx)
		if err != nil {
			return waitStoppedMsg{source: "statuses", err: err}
		}
		return statusUpdateMsg{update: upd}
	}
}

func (m *Model) handleTaskResultMsg(msg tea.Msg) tea.Cmd {
	res, ok := msg.(taskResultMsg)
	if !ok {
		return nil
	}
	if err := res.result.Apply(m.st); err != nil {
		m.reportError(err)
	}
	cmds := []tea.Cmd{m.runQueuedInteractive()}
	if m.autoWait {
		cmds = append(cmds, waitForTaskResult(m.ctx, m.sched))
	}
	return batch(cmds)
}

// runQueuedInteractive starts foreground runs requested by continuations.
// Only one program can own the terminal, so later requests in the same batch
// are reported as busy.
func (m *Model) runQueuedInteractive() tea.Cmd {
	var cmds []tea.Cmd
	for _, req := range m.st.TakeInteractive() {
		cmd, err := m.runner.InteractiveRun(m.st, req.Command, req.Args)
		if err != nil {
			m.reportError(fmt.Errorf("%s: %w", req.Command, err))
			continue
		}
		cmds = append(cmds, cmd)
	}
	return batch(cmds)
}

func (m *Model) handleProgramOutputMsg(msg tea.Msg) tea.Cmd {
	out, ok := msg.(programOutputMsg)
	if !ok {
		return nil
	}
	m.st.RecordProgramOutput(out.output)
	if !out.output.Success() {
		text := fmt.Sprintf("%s exited with status %d", out.output.Command, out.output.ExitCode)
		if detail := firstLine(out.output.Stderr); detail != "" {
			text += ": " + detail
		}
		m.st.PostError(text)
	}
	if m.autoWait {
		return waitForProgramOutput(m.ctx, m.runner)
	}
	return nil
}

func (m *Model) handleStatusUpdateMsg(msg tea.Msg) tea.Cmd {
	upd, ok := msg.(statusUpdateMsg)
	if !ok {
		return nil
	}
	m.st.Users.SetStatus(upd.update.UserID, upd.update.Status)
	if m.autoWait && m.batcher != nil {
		return waitForStatus(m.ctx, m.batcher)
	}
	return nil
}

func (m *Model) handleWaitStoppedMsg(msg tea.Msg) tea.Cmd {
	stopped, ok := msg.(waitStoppedMsg)
	if !ok {
		return nil
	}
	if stopped.err != nil && m.ctx.Err() == nil {
		m.errMsg = fmt.Sprintf("%s: %v", stopped.source, stopped.err)
	}
	return nil
}

func (m *Model) handleInteractiveDoneMsg(msg tea.Msg) tea.Cmd {
	done, ok := msg.(proc.InteractiveDoneMsg)
	if !ok {
		return nil
	}
	// failures were already shown on the terminal before resume
	m.runner.FinishInteractive(m.st, done)
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
