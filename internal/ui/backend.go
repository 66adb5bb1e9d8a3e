package ui

import (
	"fmt"

	"github.com/atomicstack/chatterm/internal/backend"
	"github.com/atomicstack/chatterm/internal/logging"
	tea "github.com/charmbracelet/bubbletea"
)

func waitForBackendEvent(w *backend.Watcher) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-w.Events()
		if !ok {
			return backendDoneMsg{}
		}
		return backendEventMsg{event: evt}
	}
}

type backendEventMsg struct {
	event backend.Event
}

type backendDoneMsg struct{}

func (m *Model) handleBackendEventMsg(msg tea.Msg) tea.Cmd {
	eventMsg, ok := msg.(backendEventMsg)
	if !ok {
		return nil
	}
	m.applyBackendEvent(eventMsg.event)
	if m.backend != nil && m.autoWait {
		return waitForBackendEvent(m.backend)
	}
	return nil
}

func (m *Model) handleBackendDoneMsg(msg tea.Msg) tea.Cmd {
	m.backend = nil
	return nil
}

// applyBackendEvent installs a polled page. Poll failures stay in the status
// line instead of filling the timeline with repeated notices.
func (m *Model) applyBackendEvent(evt backend.Event) {
	res, err := m.dispatcher.Handle(m.st, evt)
	if err != nil {
		if evt.Err == nil {
			m.reportError(err)
			return
		}
		logging.Error(err)
		m.backendErr = fmt.Sprintf("refresh failed: %v", err)
		return
	}
	m.backendErr = ""
	if res.PostsUpdated && res.Added > 0 && res.ChannelID != m.st.CurrentChannelID() {
		name := res.ChannelID
		if ch, ok := m.st.Channel(res.ChannelID); ok && ch.Name != "" {
			name = ch.Name
		}
		m.setInfo(fmt.Sprintf("%s in %s", plural(res.Added, "new message"), name))
	}
}
