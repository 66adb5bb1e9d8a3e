package proc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/atomicstack/chatterm/internal/task"
)

func withStubExec(t *testing.T, fn func(name string, args ...string) *exec.Cmd) {
	t.Helper()
	prev := execCommand
	execCommand = fn
	t.Cleanup(func() { execCommand = prev })
}

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestRunEchoCapturesStdout(t *testing.T) {
	requireBinary(t, "echo")
	r := NewRunner(nil)
	out := r.Run("echo", []string{"hello"}, nil)
	want := chat.ProgramOutput{Command: "echo", Args: []string{"hello"}, Stdout: "hello\n", Stderr: "", ExitCode: 0}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("expected %#v, got %#v", want, out)
	}
	logged := r.Log().Drain()
	if len(logged) != 1 || !reflect.DeepEqual(logged[0], want) {
		t.Fatalf("expected output published to log, got %#v", logged)
	}
}

func TestRunWritesStdin(t *testing.T) {
	requireBinary(t, "cat")
	r := NewRunner(nil)
	input := "line one\nline two\n"
	out := r.Run("cat", nil, &input)
	if out.Stdout != input || !out.Success() {
		t.Fatalf("expected stdin echoed back, got %#v", out)
	}
}

func TestRunReportsExitStatusAndStderr(t *testing.T) {
	requireBinary(t, "sh")
	r := NewRunner(nil)
	out := r.Run("sh", []string{"-c", "echo oops >&2; exit 3"}, nil)
	if out.ExitCode != 3 || out.Stderr != "oops\n" || out.Success() {
		t.Fatalf("unexpected output %#v", out)
	}
}

func TestRunSpawnFailureIsSynthesised(t *testing.T) {
	r := NewRunner(nil)
	out := r.Run("chatterm-definitely-missing-binary", []string{"x"}, nil)
	if out.ExitCode != failureExitCode || out.Stdout != "" {
		t.Fatalf("unexpected output %#v", out)
	}
	if !strings.Contains(out.Stderr, "chatterm-definitely-missing-binary") {
		t.Fatalf("expected failure description in stderr, got %q", out.Stderr)
	}
	if r.Log().Len() != 1 {
		t.Fatalf("expected spawn failure to be logged")
	}
}

func TestLoggedRunFillsSlotOnce(t *testing.T) {
	requireBinary(t, "echo")
	sched := task.NewScheduler()
	r := NewRunner(sched)
	slot := NewResultSlot()
	r.LoggedRun("echo", []string{"hi"}, nil, slot)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := slot.WaitContext(ctx)
	if err != nil {
		t.Fatalf("slot wait: %v", err)
	}
	if out.Stdout != "hi\n" {
		t.Fatalf("unexpected slot output %#v", out)
	}
	sched.Wait()
	if sched.Pending() != 0 {
		t.Fatalf("logged runs must not queue continuations")
	}
	if slot.Put(chat.ProgramOutput{Command: "other"}) {
		t.Fatalf("expected second Put to be rejected")
	}
	if got := slot.Wait(); got.Command != "echo" {
		t.Fatalf("slot value changed to %#v", got)
	}
	if r.Log().Len() != 1 {
		t.Fatalf("expected one log entry, got %d", r.Log().Len())
	}
}

func TestLoggedRunSpawnFailureReachesSlotAndLog(t *testing.T) {
	withStubExec(t, func(name string, args ...string) *exec.Cmd {
		return exec.Command("/nonexistent/chatterm/" + name)
	})
	r := NewRunner(task.NewScheduler())
	slot := NewResultSlot()
	r.LoggedRun("opener", []string{"https://example.com"}, nil, slot)
	out := slot.Wait()
	if out.ExitCode != failureExitCode || out.Stderr == "" {
		t.Fatalf("expected synthetic failure, got %#v", out)
	}
	if out.Command != "opener" || !reflect.DeepEqual(out.Args, []string{"https://example.com"}) {
		t.Fatalf("expected original command recorded, got %#v", out)
	}
	logged, err := r.Log().Next(context.Background())
	if err != nil || logged.ExitCode != failureExitCode {
		t.Fatalf("expected failure in log, got %#v (%v)", logged, err)
	}
}

func TestResultSlotConcurrentReaders(t *testing.T) {
	slot := NewResultSlot()
	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = slot.Wait().Stdout
		}(i)
	}
	slot.Put(chat.ProgramOutput{Stdout: "ready"})
	wg.Wait()
	for i, got := range results {
		if got != "ready" {
			t.Fatalf("reader %d saw %q", i, got)
		}
	}
	if !slot.Filled() {
		t.Fatalf("expected slot filled")
	}
}

func TestInteractiveCommandSpawnFailureWaitsForKey(t *testing.T) {
	c := &interactiveCommand{name: "nonexistent-binary"}
	stdin := strings.NewReader("q")
	var stdout bytes.Buffer
	c.SetStdin(stdin)
	c.SetStdout(&stdout)
	c.SetStderr(&stdout)
	err := c.Run()
	if err == nil {
		t.Fatalf("expected startup failure")
	}
	if !strings.Contains(stdout.String(), "nonexistent-binary") || !strings.Contains(stdout.String(), "Press any key") {
		t.Fatalf("expected failure message naming the command, got %q", stdout.String())
	}
	if stdin.Len() != 0 {
		t.Fatalf("expected a keypress to be consumed")
	}
}

func TestInteractiveCommandReportsExitStatus(t *testing.T) {
	requireBinary(t, "sh")
	c := &interactiveCommand{name: "sh", args: []string{"-c", "exit 4"}}
	var stdout bytes.Buffer
	c.SetStdin(strings.NewReader("\n"))
	c.SetStdout(&stdout)
	c.SetStderr(&stdout)
	err := c.Run()
	if err == nil || !strings.Contains(err.Error(), "status 4") {
		t.Fatalf("expected exit status in error, got %v", err)
	}
}

func TestInteractiveCommandSuccessIsSilent(t *testing.T) {
	requireBinary(t, "true")
	// an *os.File is handed to the child as-is, so nothing copies it behind
	// the command's back
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	if _, err := w.WriteString("unread"); err != nil {
		t.Fatalf("write pipe: %v", err)
	}
	w.Close()

	c := &interactiveCommand{name: "true"}
	var stdout bytes.Buffer
	c.SetStdin(r)
	c.SetStdout(&stdout)
	if err := c.Run(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if stdout.Len() != 0 {
		t.Fatalf("expected no output, got %q", stdout.String())
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read pipe: %v", err)
	}
	if string(rest) != "unread" {
		t.Fatalf("expected no keypress to be consumed on success, left %q", rest)
	}
}

func TestInteractiveRunLeavesStateAndReleasesSwitch(t *testing.T) {
	st := state.NewChatState()
	st.AddChannel("c1", "town-square")
	st.AddChannel("c2", "off-topic")
	base := time.Unix(2000, 0)
	st.AddMessages("c1", []chat.Message{chat.MessageFromPost(chat.Post{ID: "p1", ChannelID: "c1", CreateAt: base}, nil)})
	before, _ := st.CurrentChannel()
	beforeMsgs := before.Messages()

	r := NewRunner(nil)
	cmd, err := r.InteractiveRun(st, "nonexistent-binary", nil)
	if err != nil || cmd == nil {
		t.Fatalf("expected exec command, got %v %v", cmd, err)
	}
	if st.Mode != state.ModeSuspended {
		t.Fatalf("expected suspended mode while the child owns the terminal")
	}
	if _, err := r.InteractiveRun(st, "other", nil); !errors.Is(err, ErrInteractiveBusy) {
		t.Fatalf("expected ErrInteractiveBusy, got %v", err)
	}
	ch, _ := st.CurrentChannel()
	if ch.NewMessagesAfter == nil || !ch.NewMessagesAfter.Equal(base) {
		t.Fatalf("expected marker at latest seen post, got %v", ch.NewMessagesAfter)
	}

	r.FinishInteractive(st, InteractiveDoneMsg{Command: "nonexistent-binary", Err: errors.New("could not start"), resumeMode: state.ModeMain})
	if st.Mode != state.ModeMain {
		t.Fatalf("expected main mode restored, got %v", st.Mode)
	}
	if st.CurrentChannelID() != "c1" {
		t.Fatalf("current channel changed to %q", st.CurrentChannelID())
	}
	if !reflect.DeepEqual(ch.Messages(), beforeMsgs) {
		t.Fatalf("messages changed across the suspension")
	}
	next, err := r.InteractiveRun(st, "again", nil)
	if err != nil || next == nil {
		t.Fatalf("expected switch released, got %v", err)
	}
	r.FinishInteractive(st, InteractiveDoneMsg{Command: "again", resumeMode: state.ModeMain})
}

func TestInteractiveRunKeepsExistingMarker(t *testing.T) {
	st := state.NewChatState()
	ch := st.AddChannel("c1", "")
	existing := time.Unix(10, 0)
	ch.NewMessagesAfter = &existing
	st.AddMessages("c1", []chat.Message{chat.MessageFromPost(chat.Post{ID: "p", CreateAt: time.Unix(99, 0)}, nil)})
	r := NewRunner(nil)
	if _, err := r.InteractiveRun(st, "x", nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	defer r.FinishInteractive(st, InteractiveDoneMsg{Command: "x"})
	if !ch.NewMessagesAfter.Equal(existing) {
		t.Fatalf("expected existing marker untouched, got %v", ch.NewMessagesAfter)
	}
}
