// Package opener hands links and attachments to the user's configured
// program.
package opener

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/logging"
	"github.com/atomicstack/chatterm/internal/logging/events"
	"github.com/atomicstack/chatterm/internal/proc"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/atomicstack/chatterm/internal/task"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// Mode selects how the opener program runs.
type Mode string

const (
	ModeLogged      Mode = "logged"
	ModeInteractive Mode = "interactive"
)

// ParseMode accepts the configured mode name; empty means logged.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLogged:
		return ModeLogged, nil
	case ModeInteractive:
		return ModeInteractive, nil
	default:
		return "", fmt.Errorf("unknown opener mode %q", s)
	}
}

const appNamespace = "chatterm"

var userCacheDir = os.UserCacheDir

// FileClient downloads attachments.
type FileClient interface {
	FetchFileInfo(ctx context.Context, fileID string) (chat.FileInfo, error)
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}

type Opener struct {
	command string
	mode    Mode
	runner  *proc.Runner
	sched   *task.Scheduler
	files   FileClient
}

func New(command string, mode Mode, runner *proc.Runner, sched *task.Scheduler, files FileClient) *Opener {
	return &Opener{command: strings.TrimSpace(command), mode: mode, runner: runner, sched: sched, files: files}
}

// Configured reports whether an opener command is set.
func (o *Opener) Configured() bool {
	return o.command != ""
}

// OpenURL opens target with the configured command. It reports false when no
// opener is configured. In interactive mode the returned command suspends the
// UI and must be handed to the Bubble Tea runtime.
func (o *Opener) OpenURL(st *state.ChatState, target string) (tea.Cmd, bool, error) {
	if !o.Configured() {
		return nil, false, nil
	}
	if o.mode == ModeInteractive {
		cmd, err := o.runner.InteractiveRun(st, o.command, []string{target})
		return cmd, true, err
	}
	o.runner.LoggedRun(o.command, []string{target}, nil, nil)
	return nil, true, nil
}

// OpenAttachment downloads the file into the attachment cache and opens it.
// Metadata and contents are fetched concurrently. It reports false when no
// opener is configured.
func (o *Opener) OpenAttachment(fileID string) bool {
	if !o.Configured() {
		return false
	}
	o.sched.Submit(task.Normal, "attachment "+fileID, func() (task.Continuation, error) {
		dl, err := o.fetch(fileID)
		if err != nil {
			return nil, err
		}
		name := fileID
		if dl.infoErr == nil && dl.info.Name != "" {
			name = dl.info.Name
		}
		path, err := CachePath(fileID, name)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create attachment dir: %w", err)
		}
		if err := os.WriteFile(path, dl.data, 0o644); err != nil {
			return nil, fmt.Errorf("write attachment: %w", err)
		}
		events.Fetch.Attachment(fileID, path)

		return func(st *state.ChatState) error {
			if dl.infoErr != nil {
				st.PostError(fmt.Sprintf("attachment %s: %v", fileID, dl.infoErr))
			}
			st.PostInfo(fmt.Sprintf("Saved %s (%s) to %s", name, humanize.Bytes(uint64(len(dl.data))), path))
			if o.mode == ModeInteractive {
				st.RequestInteractive(o.command, path)
				return nil
			}
			o.runner.LoggedRun(o.command, []string{path}, nil, nil)
			return nil
		}, nil
	})
	return true
}

type download struct {
	info    chat.FileInfo
	infoErr error
	data    []byte
}

// fetch loads metadata and contents in parallel. A metadata failure is kept
// in the download so the contents can still be saved.
func (o *Opener) fetch(fileID string) (download, error) {
	var dl download
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		dl.info, dl.infoErr = o.files.FetchFileInfo(ctx, fileID)
		if dl.infoErr != nil {
			logging.Error(dl.infoErr)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		dl.data, err = o.files.FetchFile(ctx, fileID)
		return err
	})
	if err := g.Wait(); err != nil {
		return download{}, err
	}
	return dl, nil
}

// CachePath returns where an attachment is stored locally.
func CachePath(fileID, name string) (string, error) {
	root, err := userCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache dir: %w", err)
	}
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		base = fileID
	}
	return filepath.Join(root, appNamespace, "files", fileID, base), nil
}
