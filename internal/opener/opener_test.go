package opener

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/proc"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/atomicstack/chatterm/internal/task"
)

func withCacheDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := userCacheDir
	userCacheDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { userCacheDir = prev })
	return dir
}

type fakeFiles struct {
	info    chat.FileInfo
	infoErr error
	data    []byte
	dataErr error
}

func (f fakeFiles) FetchFileInfo(context.Context, string) (chat.FileInfo, error) {
	return f.info, f.infoErr
}

func (f fakeFiles) FetchFile(context.Context, string) ([]byte, error) {
	return f.data, f.dataErr
}

func newState() *state.ChatState {
	st := state.NewChatState()
	st.AddChannel("c1", "town-square")
	return st
}

func notices(st *state.ChatState) []chat.Message {
	ch, _ := st.CurrentChannel()
	return ch.Messages()
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModeLogged, "logged": ModeLogged, " Interactive ": ModeInteractive}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("detached"); err == nil {
		t.Fatalf("expected unknown mode rejected")
	}
}

func TestOpenURLWithoutCommandReportsUnconfigured(t *testing.T) {
	o := New("  ", ModeLogged, proc.NewRunner(nil), task.NewScheduler(), fakeFiles{})
	cmd, ok, err := o.OpenURL(newState(), "https://example.com")
	if ok || err != nil || cmd != nil {
		t.Fatalf("expected unconfigured outcome, got %v %v %v", cmd, ok, err)
	}
	if o.OpenAttachment("f1") {
		t.Fatalf("expected attachment open to report unconfigured")
	}
}

func TestOpenURLLoggedRunsInBackground(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	sched := task.NewScheduler()
	runner := proc.NewRunner(sched)
	o := New("echo", ModeLogged, runner, sched, fakeFiles{})
	cmd, ok, err := o.OpenURL(newState(), "https://example.com/a")
	if !ok || err != nil || cmd != nil {
		t.Fatalf("expected background run, got %v %v %v", cmd, ok, err)
	}
	out, err := runner.Log().Next(context.Background())
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if out.Command != "echo" || out.Stdout != "https://example.com/a\n" {
		t.Fatalf("unexpected output %#v", out)
	}
}

func TestOpenURLInteractiveSuspends(t *testing.T) {
	runner := proc.NewRunner(nil)
	o := New("viewer", ModeInteractive, runner, task.NewScheduler(), fakeFiles{})
	st := newState()
	cmd, ok, err := o.OpenURL(st, "https://example.com")
	if !ok || err != nil || cmd == nil {
		t.Fatalf("expected exec command, got %v %v %v", cmd, ok, err)
	}
	defer runner.FinishInteractive(st, proc.InteractiveDoneMsg{Command: "viewer"})
	if st.Mode != state.ModeSuspended {
		t.Fatalf("expected suspended mode")
	}
}

func TestOpenAttachmentSavesAndOpens(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	dir := withCacheDir(t)
	sched := task.NewScheduler()
	runner := proc.NewRunner(sched)
	files := fakeFiles{info: chat.FileInfo{ID: "f1", Name: "report.pdf"}, data: []byte("pdf-bytes")}
	o := New("echo", ModeLogged, runner, sched, files)
	st := newState()
	if !o.OpenAttachment("f1") {
		t.Fatalf("expected attachment open to start")
	}
	if errs := sched.Settle(st); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := filepath.Join(dir, "chatterm", "files", "f1", "report.pdf")
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "pdf-bytes" {
		t.Fatalf("expected attachment at %s, got %q (%v)", want, data, err)
	}
	msgs := notices(st)
	if len(msgs) != 1 || msgs[0].Kind != chat.KindInfo || !strings.Contains(msgs[0].Text, "9 B") {
		t.Fatalf("expected size notice, got %#v", msgs)
	}
	out := runner.Log().Drain()
	if len(out) != 1 || strings.TrimSpace(out[0].Stdout) != want {
		t.Fatalf("expected opener run on cached path, got %#v", out)
	}
}

func TestOpenAttachmentReusesExistingDirectory(t *testing.T) {
	dir := withCacheDir(t)
	if err := os.MkdirAll(filepath.Join(dir, "chatterm", "files", "f1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	sched := task.NewScheduler()
	o := New("viewer", ModeInteractive, proc.NewRunner(sched), sched, fakeFiles{info: chat.FileInfo{Name: "a.txt"}, data: []byte("x")})
	st := newState()
	o.OpenAttachment("f1")
	if errs := sched.Settle(st); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	reqs := st.TakeInteractive()
	if len(reqs) != 1 || reqs[0].Command != "viewer" || reqs[0].Args[0] != filepath.Join(dir, "chatterm", "files", "f1", "a.txt") {
		t.Fatalf("expected interactive request for cached file, got %#v", reqs)
	}
}

func TestOpenAttachmentInfoFailureStillSavesContents(t *testing.T) {
	dir := withCacheDir(t)
	sched := task.NewScheduler()
	o := New("viewer", ModeInteractive, proc.NewRunner(sched), sched, fakeFiles{infoErr: errors.New("info unavailable"), data: []byte("x")})
	st := newState()
	o.OpenAttachment("f9")
	if errs := sched.Settle(st); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, err := os.Stat(filepath.Join(dir, "chatterm", "files", "f9", "f9")); err != nil {
		t.Fatalf("expected contents saved under the file id: %v", err)
	}
	msgs := notices(st)
	if len(msgs) != 2 || msgs[0].Kind != chat.KindError {
		t.Fatalf("expected error notice for the metadata failure, got %#v", msgs)
	}
}

func TestOpenAttachmentContentFailureIsReported(t *testing.T) {
	withCacheDir(t)
	sched := task.NewScheduler()
	boom := errors.New("download failed")
	o := New("viewer", ModeLogged, proc.NewRunner(sched), sched, fakeFiles{info: chat.FileInfo{Name: "a"}, dataErr: boom})
	st := newState()
	o.OpenAttachment("f1")
	errs := sched.Settle(st)
	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Fatalf("expected download failure, got %v", errs)
	}
}

func TestCachePathStripsDirectories(t *testing.T) {
	dir := withCacheDir(t)
	got, err := CachePath("f1", "../../etc/passwd")
	if err != nil {
		t.Fatalf("CachePath: %v", err)
	}
	if want := filepath.Join(dir, "chatterm", "files", "f1", "passwd"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
