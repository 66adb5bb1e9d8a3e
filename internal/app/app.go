package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/atomicstack/chatterm/internal/api"
	"github.com/atomicstack/chatterm/internal/backend"
	"github.com/atomicstack/chatterm/internal/ingest"
	"github.com/atomicstack/chatterm/internal/opener"
	"github.com/atomicstack/chatterm/internal/proc"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/atomicstack/chatterm/internal/task"
	"github.com/atomicstack/chatterm/internal/ui"
	"github.com/atomicstack/chatterm/internal/users"
	tea "github.com/charmbracelet/bubbletea"
)

// Config describes user-provided application options.
type Config struct {
	ServerURL         string
	Token             string
	Channels          []string
	OpenerCommand     string
	OpenerMode        string
	RefreshInterval   time.Duration
	RequestsPerSecond float64
}

// Components is the wired object graph behind the UI.
type Components struct {
	Client    *api.Client
	Scheduler *task.Scheduler
	Runner    *proc.Runner
	State     *state.ChatState
	Batcher   *users.Batcher
	Pipeline  *ingest.Pipeline
	Opener    *opener.Opener
	Watcher   *backend.Watcher
}

// Build wires the client, scheduler and state for cfg. The caller owns the
// returned watcher and scheduler and must Close them.
func Build(cfg Config) (*Components, error) {
	mode, err := opener.ParseMode(cfg.OpenerMode)
	if err != nil {
		return nil, err
	}
	client, err := api.New(api.Options{
		BaseURL:           cfg.ServerURL,
		Token:             cfg.Token,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}
	sched := task.NewScheduler()
	runner := proc.NewRunner(sched)
	st := state.NewChatState()
	for _, id := range cfg.Channels {
		st.AddChannel(id, "")
	}
	batcher := users.NewBatcher(sched, client, st.Users)
	watcher := backend.NewWatcher(client, cfg.RefreshInterval)
	watcher.Follow(st.CurrentChannelID())
	return &Components{
		Client:    client,
		Scheduler: sched,
		Runner:    runner,
		State:     st,
		Batcher:   batcher,
		Pipeline:  ingest.New(batcher),
		Opener:    opener.New(cfg.OpenerCommand, mode, runner, sched, client),
		Watcher:   watcher,
	}, nil
}

// Close stops background polling and wakes any owner-side waits.
func (c *Components) Close() {
	c.Watcher.Stop()
	c.Scheduler.Close()
}

// Run bootstraps and executes the Bubble Tea program.
func Run(cfg Config) error {
	comps, err := Build(cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	model := ui.NewModel(ui.Deps{
		State:      comps.State,
		Scheduler:  comps.Scheduler,
		Runner:     comps.Runner,
		Batcher:    comps.Batcher,
		Pipeline:   comps.Pipeline,
		Posts:      comps.Client,
		Channels:   comps.Client,
		Opener:     comps.Opener,
		Watcher:    comps.Watcher,
		ShowFooter: true,
	})
	defer model.Shutdown()

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
