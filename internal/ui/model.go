package ui

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/atomicstack/chatterm/internal/backend"
	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/data/dispatcher"
	"github.com/atomicstack/chatterm/internal/ingest"
	"github.com/atomicstack/chatterm/internal/logging"
	"github.com/atomicstack/chatterm/internal/opener"
	"github.com/atomicstack/chatterm/internal/proc"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/atomicstack/chatterm/internal/task"
	"github.com/atomicstack/chatterm/internal/theme"
	"github.com/atomicstack/chatterm/internal/ui/command"
	uistate "github.com/atomicstack/chatterm/internal/ui/state"
	"github.com/atomicstack/chatterm/internal/users"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

var styles = theme.Default()

type msgHandler func(tea.Msg) tea.Cmd

// ChannelClient resolves channel names for the header.
type ChannelClient interface {
	FetchChannel(ctx context.Context, channelID string) (chat.Channel, error)
}

// Deps wires the model to the background machinery. Only State and
// Scheduler are required.
type Deps struct {
	State     *state.ChatState
	Scheduler *task.Scheduler
	Runner    *proc.Runner
	Batcher   *users.Batcher
	Pipeline  *ingest.Pipeline
	Posts     ingest.Client
	Channels  ChannelClient
	Opener    *opener.Opener
	Watcher   *backend.Watcher

	Width      int
	Height     int
	ShowFooter bool
}

// Model implements the Bubble Tea model for the chat client. It is the only
// goroutine that touches ChatState.
type Model struct {
	st         *state.ChatState
	sched      *task.Scheduler
	runner     *proc.Runner
	batcher    *users.Batcher
	pipeline   *ingest.Pipeline
	posts      ingest.Client
	channels   ChannelClient
	opener     *opener.Opener
	backend    *backend.Watcher
	dispatcher *dispatcher.Dispatcher
	bus        *command.Bus

	ctx      context.Context
	cancel   context.CancelFunc
	autoWait bool

	picker *uistate.Picker
	filter textinput.Model

	// selected indexes the current timeline; -1 follows the newest message.
	selected int
	showLog  bool

	errMsg     string
	infoMsg    string
	infoExpire time.Time
	backendErr string

	width       int
	height      int
	fixedWidth  bool
	fixedHeight bool
	showFooter  bool

	handlers map[reflect.Type]msgHandler
}

// NewModel builds the UI around an already populated chat state.
func NewModel(deps Deps) *Model {
	ctx, cancel := context.WithCancel(context.Background())
	runner := deps.Runner
	if runner == nil {
		runner = proc.NewRunner(deps.Scheduler)
	}
	var (
		resolver ingest.Resolver
		presence dispatcher.PresenceResolver
	)
	if deps.Batcher != nil {
		resolver, presence = deps.Batcher, deps.Batcher
	}
	pipeline := deps.Pipeline
	if pipeline == nil {
		pipeline = ingest.New(resolver)
	}
	m := &Model{
		st:         deps.State,
		sched:      deps.Scheduler,
		runner:     runner,
		batcher:    deps.Batcher,
		pipeline:   pipeline,
		posts:      deps.Posts,
		channels:   deps.Channels,
		opener:     deps.Opener,
		backend:    deps.Watcher,
		dispatcher: dispatcher.New(pipeline, presence),
		bus:        command.New(),
		ctx:        ctx,
		cancel:     cancel,
		autoWait:   true,
		picker:     uistate.NewPicker(nil),
		selected:   -1,
		showFooter: deps.ShowFooter,
	}
	if deps.Width > 0 {
		m.width = deps.Width
		m.fixedWidth = true
	}
	if deps.Height > 0 {
		m.height = deps.Height
		m.fixedHeight = true
	}
	m.filter = newFilterInput()
	m.registerHandlers()
	return m
}

func newFilterInput() textinput.Model {
	ti := textinput.New()
	ti.Prompt = "channel> "
	ti.Placeholder = "type to filter"
	if styles.FilterPrompt != nil {
		ti.PromptStyle = styles.FilterPrompt.Copy()
	}
	if styles.Filter != nil {
		ti.TextStyle = styles.Filter.Copy()
	}
	if styles.FilterPlaceholder != nil {
		ti.PlaceholderStyle = styles.FilterPlaceholder.Copy()
	}
	if styles.Cursor != nil {
		ti.Cursor.Style = styles.Cursor.Copy()
	}
	ti.Cursor.SetMode(cursor.CursorStatic)
	return ti
}

// Init starts the owner-side consumers and the initial channel fetches.
func (m *Model) Init() tea.Cmd {
	m.fetchChannels()
	cmds := []tea.Cmd{
		waitForTaskResult(m.ctx, m.sched),
		waitForProgramOutput(m.ctx, m.runner),
	}
	if m.batcher != nil {
		cmds = append(cmds, waitForStatus(m.ctx, m.batcher))
	}
	if m.backend != nil {
		cmds = append(cmds, waitForBackendEvent(m.backend))
	}
	return tea.Batch(cmds...)
}

// Update responds to Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if handler := m.handlerFor(msg); handler != nil {
		return m, handler(msg)
	}
	return m, nil
}

func (m *Model) registerHandlers() {
	m.handlers = map[reflect.Type]msgHandler{
		reflect.TypeOf(tea.KeyMsg{}):              m.handleKeyMsg,
		reflect.TypeOf(tea.WindowSizeMsg{}):       m.handleWindowSizeMsg,
		reflect.TypeOf(taskResultMsg{}):           m.handleTaskResultMsg,
		reflect.TypeOf(programOutputMsg{}):        m.handleProgramOutputMsg,
		reflect.TypeOf(statusUpdateMsg{}):         m.handleStatusUpdateMsg,
		reflect.TypeOf(waitStoppedMsg{}):          m.handleWaitStoppedMsg,
		reflect.TypeOf(backendEventMsg{}):         m.handleBackendEventMsg,
		reflect.TypeOf(backendDoneMsg{}):          m.handleBackendDoneMsg,
		reflect.TypeOf(proc.InteractiveDoneMsg{}): m.handleInteractiveDoneMsg,
	}
}

func (m *Model) handlerFor(msg tea.Msg) msgHandler {
	if msg == nil || m.handlers == nil {
		return nil
	}
	t := reflect.TypeOf(msg)
	if handler, ok := m.handlers[t]; ok {
		return handler
	}
	if t.Kind() == reflect.Ptr {
		if handler, ok := m.handlers[t.Elem()]; ok {
			return handler
		}
	}
	return nil
}

// State exposes the chat state owned by the model.
func (m *Model) State() *state.ChatState {
	return m.st
}

// Shutdown stops the owner-side waits.
func (m *Model) Shutdown() {
	m.cancel()
}

// fetchChannels loads every channel's name and newest page once. The
// followed channel's page is left to the watcher, which polls it immediately.
func (m *Model) fetchChannels() {
	followed := ""
	if m.backend != nil {
		followed = m.backend.Following()
	}
	for _, ch := range m.st.Channels() {
		if ch.ID == "" {
			continue
		}
		if m.channels != nil {
			m.fetchChannelName(ch.ID)
		}
		if m.posts != nil && ch.ID != followed {
			m.pipeline.FetchChannelPosts(m.sched, m.posts, ch.ID)
		}
	}
}

func (m *Model) fetchChannelName(id string) {
	m.sched.Submit(task.Preempt, "channel "+id, func() (task.Continuation, error) {
		info, err := m.channels.FetchChannel(m.ctx, id)
		if err != nil {
			return nil, err
		}
		return func(st *state.ChatState) error {
			st.AddChannel(id, info.Label())
			return nil
		}, nil
	})
}

// reportError surfaces a failure as a notice in the current channel and in
// the log file.
func (m *Model) reportError(err error) {
	if err == nil {
		return
	}
	logging.Error(err)
	m.st.PostError(err.Error())
}

func (m *Model) setInfo(message string) {
	m.infoMsg = message
	m.infoExpire = time.Now().Add(5 * time.Second)
}

func (m *Model) currentInfo() string {
	if m.infoMsg != "" && !m.infoExpire.IsZero() && time.Now().After(m.infoExpire) {
		m.infoMsg = ""
		m.infoExpire = time.Time{}
	}
	return m.infoMsg
}

func (m *Model) handleWindowSizeMsg(msg tea.Msg) tea.Cmd {
	resize, ok := msg.(tea.WindowSizeMsg)
	if !ok {
		return nil
	}
	if !m.fixedWidth {
		m.width = resize.Width
	}
	if !m.fixedHeight {
		m.height = resize.Height
	}
	m.filter.Width = m.width - len(m.filter.Prompt) - 1
	return nil
}

func batch(cmds []tea.Cmd) tea.Cmd {
	live := cmds[:0]
	for _, cmd := range cmds {
		if cmd != nil {
			live = append(live, cmd)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	default:
		return tea.Batch(live...)
	}
}

func modeName(mode state.Mode) string {
	switch mode {
	case state.ModeChannelSelect:
		return "channel-select"
	case state.ModeSuspended:
		return "suspended"
	default:
		return "main"
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
