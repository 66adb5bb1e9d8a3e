package ui

import (
	"errors"
	"fmt"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/logging/events"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/atomicstack/chatterm/internal/ui/command"
	uistate "github.com/atomicstack/chatterm/internal/ui/state"
	tea "github.com/charmbracelet/bubbletea"
)

var (
	errNoSelection  = errors.New("no message selected")
	errNoLink       = errors.New("selected message has no link")
	errNoAttachment = errors.New("selected message has no attachment")
	errNotAPost     = errors.New("only server posts can be flagged")
)

const noOpenerNotice = "No opener configured; set opener.command or -opener"

func (m *Model) handleKeyMsg(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch m.st.Mode {
	case state.ModeSuspended:
		return nil
	case state.ModeChannelSelect:
		return m.handlePickerKey(key)
	}

	m.errMsg = ""
	switch key.String() {
	case "ctrl+c", "q":
		m.cancel()
		return tea.Quit
	case "up", "k":
		m.moveSelection(-1)
	case "down", "j":
		m.moveSelection(1)
	case "home", "g":
		m.selected = 0
	case "end", "G":
		m.selected = -1
	case "tab":
		return m.execute("channel:next", "next channel", m.cycleChannel(1))
	case "shift+tab":
		return m.execute("channel:prev", "previous channel", m.cycleChannel(-1))
	case "c":
		return m.openPicker()
	case "r":
		return m.execute("channel:refresh", "refresh", m.refreshCurrent)
	case "o":
		return m.execute("message:open-link", "open link", m.openLink)
	case "a":
		return m.execute("message:open-attachment", "open attachment", m.openAttachment)
	case "f":
		return m.execute("message:flag", "toggle flag", m.toggleFlag)
	case "l":
		m.showLog = !m.showLog
	case "?":
		m.showFooter = !m.showFooter
	}
	return nil
}

// execute runs an action through the command bus. Action errors are shown in
// the status line; they are user mistakes, not failures worth logging.
func (m *Model) execute(id, label string, action command.Action) tea.Cmd {
	cmd, err := m.bus.Execute(m.st, command.Request{ID: id, Label: label, Handler: action})
	if err != nil {
		m.errMsg = err.Error()
		return nil
	}
	return cmd
}

func (m *Model) timeline() []chat.Message {
	ch, ok := m.st.CurrentChannel()
	if !ok {
		return nil
	}
	return ch.Messages()
}

// selectedIndex resolves the selection against the current timeline.
func (m *Model) selectedIndex(n int) int {
	if n == 0 {
		return -1
	}
	if m.selected < 0 || m.selected >= n {
		return n - 1
	}
	return m.selected
}

func (m *Model) selectedMessage() (chat.Message, bool) {
	msgs := m.timeline()
	idx := m.selectedIndex(len(msgs))
	if idx < 0 {
		return chat.Message{}, false
	}
	return msgs[idx], true
}

func (m *Model) moveSelection(delta int) {
	n := len(m.timeline())
	idx := m.selectedIndex(n)
	if idx < 0 {
		return
	}
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= n-1 {
		m.selected = -1
		return
	}
	m.selected = idx
}

func (m *Model) cycleChannel(step int) command.Action {
	return func(st *state.ChatState) (tea.Cmd, error) {
		chs := st.Channels()
		if len(chs) < 2 {
			return nil, nil
		}
		current := 0
		for i, ch := range chs {
			if ch.ID == st.CurrentChannelID() {
				current = i
				break
			}
		}
		next := (current + step + len(chs)) % len(chs)
		m.switchChannel(chs[next].ID)
		return nil, nil
	}
}

func (m *Model) switchChannel(id string) {
	from := m.st.CurrentChannelID()
	if from == id || !m.st.SetCurrentChannel(id) {
		return
	}
	events.UI.ChannelSwitch(from, id)
	m.selected = -1
	if m.backend != nil {
		m.backend.Follow(id)
		return
	}
	if m.posts != nil {
		m.pipeline.FetchChannelPosts(m.sched, m.posts, id)
	}
}

func (m *Model) refreshCurrent(st *state.ChatState) (tea.Cmd, error) {
	id := st.CurrentChannelID()
	if id == "" || m.posts == nil {
		return nil, nil
	}
	m.pipeline.FetchChannelPosts(m.sched, m.posts, id)
	m.setInfo("Refreshing")
	return nil, nil
}

func (m *Model) openLink(st *state.ChatState) (tea.Cmd, error) {
	msg, ok := m.selectedMessage()
	if !ok {
		return nil, errNoSelection
	}
	urls := chat.ExtractURLs(msg.Text)
	if len(urls) == 0 {
		return nil, errNoLink
	}
	if m.opener == nil {
		st.PostInfo(noOpenerNotice)
		return nil, nil
	}
	cmd, ok, err := m.opener.OpenURL(st, urls[0])
	if err != nil {
		return nil, err
	}
	if !ok {
		st.PostInfo(noOpenerNotice)
		return nil, nil
	}
	events.Action.Success("open " + urls[0])
	return cmd, nil
}

func (m *Model) openAttachment(st *state.ChatState) (tea.Cmd, error) {
	msg, ok := m.selectedMessage()
	if !ok {
		return nil, errNoSelection
	}
	if msg.Post == nil || len(msg.Post.FileIDs) == 0 {
		return nil, errNoAttachment
	}
	if m.opener == nil || !m.opener.Configured() {
		st.PostInfo(noOpenerNotice)
		return nil, nil
	}
	for _, id := range msg.Post.FileIDs {
		m.opener.OpenAttachment(id)
	}
	m.setInfo(fmt.Sprintf("Downloading %s", plural(len(msg.Post.FileIDs), "attachment")))
	return nil, nil
}

// toggleFlag records the new flag and refetches the channel. Messages already
// on screen keep their flag until that page is installed.
func (m *Model) toggleFlag(st *state.ChatState) (tea.Cmd, error) {
	msg, ok := m.selectedMessage()
	if !ok {
		return nil, errNoSelection
	}
	postID, ok := msg.ID.PostID()
	if !ok {
		return nil, errNotAPost
	}
	flagged := !st.IsFlagged(postID)
	st.SetFlagged(postID, flagged)
	if flagged {
		m.setInfo("Flagged")
	} else {
		m.setInfo("Unflagged")
	}
	if m.posts != nil {
		m.pipeline.FetchChannelPosts(m.sched, m.posts, st.CurrentChannelID())
	}
	return nil, nil
}

func (m *Model) channelItems() []uistate.Item {
	chs := m.st.Channels()
	items := make([]uistate.Item, 0, len(chs))
	for _, ch := range chs {
		label := ch.Name
		if label == "" {
			label = ch.ID
		}
		items = append(items, uistate.Item{ID: ch.ID, Label: label})
	}
	return items
}

func (m *Model) openPicker() tea.Cmd {
	m.st.Mode = state.ModeChannelSelect
	events.UI.Mode(modeName(m.st.Mode))
	m.filter.SetValue("")
	m.picker.Filter = ""
	m.picker.UpdateItems(m.channelItems())
	m.picker.Focus(m.st.CurrentChannelID())
	return m.filter.Focus()
}

func (m *Model) closePicker() {
	m.filter.Blur()
	m.st.Mode = state.ModeMain
	events.UI.Mode(modeName(m.st.Mode))
}

func (m *Model) handlePickerKey(key tea.KeyMsg) tea.Cmd {
	switch key.String() {
	case "ctrl+c":
		m.cancel()
		return tea.Quit
	case "esc":
		m.closePicker()
		return nil
	case "enter":
		item, ok := m.picker.Selected()
		m.closePicker()
		if !ok {
			return nil
		}
		return m.execute("channel:select", "select channel", func(*state.ChatState) (tea.Cmd, error) {
			m.switchChannel(item.ID)
			return nil, nil
		})
	case "up", "ctrl+p":
		m.picker.MoveCursor(-1)
		return nil
	case "down", "ctrl+n":
		m.picker.MoveCursor(1)
		return nil
	case "pgup":
		m.picker.MoveCursorHome()
		return nil
	case "pgdown":
		m.picker.MoveCursorEnd()
		return nil
	}
	before := m.filter.Value()
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(key)
	if value := m.filter.Value(); value != before {
		m.picker.SetFilter(value)
		events.UI.Filter(value, len(m.picker.Items))
	}
	return cmd
}
