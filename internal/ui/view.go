package ui

import (
	"fmt"
	"strings"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/format/table"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

const (
	timeLayout      = "15:04"
	newMarkerText   = "──── new messages ────"
	programLogTitle = "program log"
	footerText      = "↑/↓ select  tab channel  c pick  r refresh  o link  a attachment  f flag  l log  q quit"
)

type styledLine struct {
	text          string
	style         *lipgloss.Style
	prefixStyle   *lipgloss.Style
	highlightFrom int
	raw           bool // text is already styled
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.st.Mode == state.ModeSuspended {
		return ""
	}
	header := styledLine{text: m.channelTabs(), raw: true}

	var body []styledLine
	switch {
	case m.st.Mode == state.ModeChannelSelect:
		body = m.pickerLines()
	case m.showLog:
		body = m.programLogLines()
	default:
		body = m.timelineLines()
	}

	bottom := m.bottomLines()
	if rows := m.bodyRows(len(bottom)); rows > 0 && len(body) > rows {
		body = body[len(body)-rows:]
	}

	lines := make([]styledLine, 0, len(body)+len(bottom)+1)
	lines = append(lines, header)
	lines = append(lines, body...)
	lines = append(lines, bottom...)
	lines = applyWidth(lines, m.width)
	return renderLines(lines)
}

// bodyRows is the height left for the timeline after the header and the
// bottom lines. A non-positive result means no limit.
func (m *Model) bodyRows(bottom int) int {
	if m.height <= 0 {
		return 0
	}
	rows := m.height - 1 - bottom
	if rows < 1 {
		return 1
	}
	return rows
}

func (m *Model) channelTabs() string {
	chs := m.st.Channels()
	tabs := make([]string, 0, len(chs))
	for _, ch := range chs {
		label := ch.Name
		if label == "" {
			label = ch.ID
		}
		if ch.ID == "" {
			continue
		}
		if ch.ID == m.st.CurrentChannelID() {
			tabs = append(tabs, styles.ActiveChannel.Render(" "+label+" "))
			continue
		}
		tabs = append(tabs, styles.Channel.Render(" "+label+" "))
	}
	if len(tabs) == 0 {
		return styles.Header.Render("(no channels)")
	}
	return strings.Join(tabs, styles.Header.Render("│"))
}

// timelineLines renders the current channel. The window is chosen so the
// selected message is the last visible one; with no explicit selection the
// view follows the newest message.
func (m *Model) timelineLines() []styledLine {
	ch, ok := m.st.CurrentChannel()
	if !ok {
		return nil
	}
	msgs := ch.Messages()
	if len(msgs) == 0 {
		return []styledLine{{text: "(no messages yet)", style: styles.Info}}
	}
	selected := m.selectedIndex(len(msgs))
	lines := make([]styledLine, 0, len(msgs)+2)
	markerShown := false
	for i, msg := range msgs {
		if !markerShown && ch.NewMessagesAfter != nil && msg.Post != nil && msg.CreateAt.After(*ch.NewMessagesAfter) {
			lines = append(lines, styledLine{text: newMarkerText, style: styles.NewMarker})
			markerShown = true
		}
		lines = append(lines, m.messageLines(msg, i == selected && m.selected >= 0)...)
		if i == selected {
			break
		}
	}
	return lines
}

func (m *Model) messageLines(msg chat.Message, highlighted bool) []styledLine {
	stamp := msg.CreateAt.Local().Format(timeLayout)
	text := strings.Join(strings.Fields(strings.ReplaceAll(msg.Text, "\n", " ⏎ ")), " ")

	switch msg.Kind {
	case chat.KindInfo:
		return []styledLine{{text: fmt.Sprintf("%s * %s", stamp, text), style: styles.Info}}
	case chat.KindError:
		return []styledLine{{text: fmt.Sprintf("%s ! %s", stamp, text), style: styles.Error}}
	}

	var out []styledLine
	if msg.ReplyTo != nil {
		parent := strings.Join(strings.Fields(msg.ReplyTo.Message), " ")
		out = append(out, styledLine{
			text:  fmt.Sprintf("      ↳ %s: %s", m.authorName(msg.ReplyTo.UserID), parent),
			style: styles.Reply,
		})
	}

	flag := "  "
	if msg.Flagged {
		flag = "★ "
	}
	prefix := fmt.Sprintf("%s %s%s: ", stamp, flag, m.authorLabel(msg.UserID))
	if msg.Post != nil && len(msg.Post.FileIDs) > 0 {
		text += fmt.Sprintf(" [%s]", plural(len(msg.Post.FileIDs), "file"))
	}
	bodyStyle := styles.Body
	prefixStyle := styles.Author
	if highlighted {
		bodyStyle = styles.SelectedMessage
		prefixStyle = styles.SelectedMessage
	} else if msg.Flagged {
		prefixStyle = styles.Flag
	}
	out = append(out, styledLine{
		text:          prefix + text,
		style:         bodyStyle,
		prefixStyle:   prefixStyle,
		highlightFrom: len([]rune(prefix)),
	})
	return out
}

func (m *Model) authorName(userID string) string {
	if u, ok := m.st.Users.ByID(userID); ok {
		if name := u.DisplayName(); name != "" {
			return name
		}
	}
	if len(userID) > 8 {
		return userID[:8]
	}
	return userID
}

// authorLabel adds presence when the author is known to be away.
func (m *Model) authorLabel(userID string) string {
	name := m.authorName(userID)
	if status, ok := m.st.Users.Status(userID); ok && status != "" && status != "online" {
		return fmt.Sprintf("%s (%s)", name, status)
	}
	return name
}

func (m *Model) pickerLines() []styledLine {
	lines := []styledLine{{text: m.filter.View(), raw: true}}
	if len(m.picker.Items) == 0 {
		msg := "(no channels)"
		if m.picker.Filter != "" {
			msg = fmt.Sprintf("No matches for %q", m.picker.Filter)
		}
		return append(lines, styledLine{text: msg, style: styles.Info})
	}
	maxVisible := 0
	if m.height > 0 {
		maxVisible = m.height - 4
	}
	visible, offset := m.picker.Visible(maxVisible)
	for i, item := range visible {
		if offset+i == m.picker.Cursor {
			lines = append(lines, styledLine{text: "▸ " + item.Label, style: styles.SelectedItem})
			continue
		}
		lines = append(lines, styledLine{text: "  " + item.Label, style: styles.Item})
	}
	return lines
}

func (m *Model) programLogLines() []styledLine {
	lines := []styledLine{{text: programLogTitle, style: styles.Header}}
	if len(m.st.ProgramLog) == 0 {
		return append(lines, styledLine{text: "(no programs run yet)", style: styles.Info})
	}
	rows := make([][]string, 0, len(m.st.ProgramLog))
	for _, out := range m.st.ProgramLog {
		detail := firstLine(out.Stdout)
		if !out.Success() {
			detail = firstLine(out.Stderr)
		}
		cmdline := strings.TrimSpace(out.Command + " " + strings.Join(out.Args, " "))
		rows = append(rows, []string{fmt.Sprintf("[%d]", out.ExitCode), cmdline, detail})
	}
	formatted := table.Format(rows, []table.Alignment{table.AlignRight, table.AlignLeft, table.AlignLeft})
	for i, text := range formatted {
		style := styles.ProgramOK
		if !m.st.ProgramLog[i].Success() {
			style = styles.ProgramFailed
		}
		lines = append(lines, styledLine{text: text, style: style})
	}
	return lines
}

func (m *Model) bottomLines() []styledLine {
	var lines []styledLine
	switch {
	case m.errMsg != "":
		lines = append(lines, styledLine{text: "Error: " + m.errMsg, style: styles.Error})
	case m.backendErr != "":
		lines = append(lines, styledLine{text: m.backendErr, style: styles.Error})
	case m.currentInfo() != "":
		lines = append(lines, styledLine{text: m.infoMsg, style: styles.Info})
	default:
		lines = append(lines, styledLine{})
	}
	if m.showFooter {
		lines = append(lines, styledLine{text: footerText, style: styles.Footer})
	}
	return lines
}

func applyWidth(lines []styledLine, width int) []styledLine {
	if width <= 0 {
		return lines
	}
	result := make([]styledLine, len(lines))
	for i, line := range lines {
		line.text = truncateText(line.text, width)
		result[i] = line
	}
	return result
}

func renderLines(lines []styledLine) string {
	out := make([]string, len(lines))
	for i, line := range lines {
		text := line.text
		if line.raw {
			out[i] = text
			continue
		}
		runes := []rune(text)
		if line.highlightFrom > 0 && line.highlightFrom < len(runes) {
			head := string(runes[:line.highlightFrom])
			tail := string(runes[line.highlightFrom:])
			if line.prefixStyle != nil {
				head = line.prefixStyle.Render(head)
			}
			if line.style != nil {
				tail = line.style.Render(tail)
			}
			text = head + tail
		} else if line.style != nil {
			text = line.style.Render(text)
		}
		out[i] = text
	}
	return strings.Join(out, "\n")
}

// truncateText cuts text to width terminal cells, ANSI sequences and wide
// runes included.
func truncateText(text string, width int) string {
	if width <= 0 || lipgloss.Width(text) <= width {
		return text
	}
	return truncate.StringWithTail(text, uint(width), "…")
}
