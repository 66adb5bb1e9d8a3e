// Package state holds the chat state owned by the UI goroutine. Nothing in
// this package is safe for concurrent use except UserCache; background work
// must hand continuations to the owner instead of touching ChatState.
package state

import (
	"sort"
	"time"

	"github.com/atomicstack/chatterm/internal/chat"
)

// Mode is the UI mode recorded in state.
type Mode int

const (
	ModeMain Mode = iota
	ModeChannelSelect
	ModeSuspended
)

const programLogLimit = 100

// Channel is a conversation timeline.
type Channel struct {
	ID           string
	Name         string
	LastViewedAt time.Time
	// NewMessagesAfter marks the boundary after which messages render as new.
	NewMessagesAfter *time.Time

	messages []chat.Message
	index    map[chat.MessageID]int
}

// Messages returns a copy of the timeline, oldest first.
func (c *Channel) Messages() []chat.Message {
	if len(c.messages) == 0 {
		return nil
	}
	dup := make([]chat.Message, len(c.messages))
	copy(dup, c.messages)
	return dup
}

func (c *Channel) Len() int {
	return len(c.messages)
}

// add inserts or replaces messages by identity and keeps the timeline
// chronological.
func (c *Channel) add(msgs []chat.Message) {
	if c.index == nil {
		c.index = make(map[chat.MessageID]int)
	}
	dirty := false
	for _, m := range msgs {
		if i, ok := c.index[m.ID]; ok {
			c.messages[i] = m
			continue
		}
		if n := len(c.messages); n > 0 && m.CreateAt.Before(c.messages[n-1].CreateAt) {
			dirty = true
		}
		c.index[m.ID] = len(c.messages)
		c.messages = append(c.messages, m)
	}
	if !dirty {
		return
	}
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].CreateAt.Before(c.messages[j].CreateAt)
	})
	for i, m := range c.messages {
		c.index[m.ID] = i
	}
}

// LatestSeen returns the creation time of the newest server message in the
// timeline.
func (c *Channel) LatestSeen() (time.Time, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Post != nil {
			return c.messages[i].CreateAt, true
		}
	}
	return time.Time{}, false
}

// InstallNewMessagesMarker sets the new-messages boundary when none is set,
// using the newest message already shown. It reports whether a marker was
// installed.
func (c *Channel) InstallNewMessagesMarker(fallback time.Time) bool {
	if c.NewMessagesAfter != nil {
		return false
	}
	at, ok := c.LatestSeen()
	if !ok {
		at = c.LastViewedAt
	}
	if at.IsZero() {
		at = fallback
	}
	c.NewMessagesAfter = &at
	return true
}

// InteractiveRequest asks the owner to run a program in the foreground.
type InteractiveRequest struct {
	Command string
	Args    []string
}

// ChatState is the single-owner mutable state of the client.
type ChatState struct {
	// Posts maps post ID to message for every post seen this session.
	Posts   map[string]chat.Message
	Users   *UserCache
	Flagged map[string]struct{}
	Mode    Mode

	ProgramLog []chat.ProgramOutput

	channels map[string]*Channel
	order    []string
	current  string
	pending  []InteractiveRequest
	now      func() time.Time
}

func NewChatState() *ChatState {
	return &ChatState{
		Posts:    make(map[string]chat.Message),
		Users:    NewUserCache(),
		Flagged:  make(map[string]struct{}),
		channels: make(map[string]*Channel),
		now:      time.Now,
	}
}

// Now returns the state clock.
func (s *ChatState) Now() time.Time {
	return s.now()
}

// SetClock overrides the clock used for notices and markers.
func (s *ChatState) SetClock(now func() time.Time) {
	s.now = now
}

// AddChannel registers a channel; the first channel added becomes current.
func (s *ChatState) AddChannel(id, name string) *Channel {
	if ch, ok := s.channels[id]; ok {
		if name != "" {
			ch.Name = name
		}
		return ch
	}
	ch := &Channel{ID: id, Name: name}
	s.channels[id] = ch
	s.order = append(s.order, id)
	if s.current == "" {
		s.current = id
	}
	return ch
}

func (s *ChatState) Channel(id string) (*Channel, bool) {
	ch, ok := s.channels[id]
	return ch, ok
}

// Channels returns channels in registration order.
func (s *ChatState) Channels() []*Channel {
	out := make([]*Channel, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.channels[id])
	}
	return out
}

func (s *ChatState) CurrentChannelID() string {
	return s.current
}

func (s *ChatState) CurrentChannel() (*Channel, bool) {
	return s.Channel(s.current)
}

// SetCurrentChannel switches the viewed channel. The channel being left is
// stamped as viewed and its new-messages marker cleared.
func (s *ChatState) SetCurrentChannel(id string) bool {
	if _, ok := s.channels[id]; !ok {
		return false
	}
	if prev, ok := s.channels[s.current]; ok && prev.ID != id {
		prev.LastViewedAt = s.now()
		prev.NewMessagesAfter = nil
	}
	s.current = id
	return true
}

// MergePosts unions messages into the post map keyed by post ID.
func (s *ChatState) MergePosts(msgs ...chat.Message) {
	for _, m := range msgs {
		if id, ok := m.ID.PostID(); ok {
			s.Posts[id] = m
		}
	}
}

// AddMessages inserts messages into a channel timeline, creating the channel
// when unknown.
func (s *ChatState) AddMessages(channelID string, msgs []chat.Message) {
	ch, ok := s.channels[channelID]
	if !ok {
		ch = s.AddChannel(channelID, "")
	}
	ch.add(msgs)
}

// PostInfo appends an informational notice to the current channel.
func (s *ChatState) PostInfo(text string) {
	s.postNotice(chat.NewInfo(s.current, text, s.now()))
}

// PostError appends an error notice to the current channel.
func (s *ChatState) PostError(text string) {
	s.postNotice(chat.NewError(s.current, text, s.now()))
}

func (s *ChatState) postNotice(msg chat.Message) {
	if s.current == "" {
		s.AddChannel("", "")
	}
	s.channels[s.current].add([]chat.Message{msg})
}

func (s *ChatState) IsFlagged(postID string) bool {
	_, ok := s.Flagged[postID]
	return ok
}

// SetFlagged records the flag for a post. Already-built messages keep their
// flag value until they are installed again.
func (s *ChatState) SetFlagged(postID string, flagged bool) {
	if flagged {
		s.Flagged[postID] = struct{}{}
		return
	}
	delete(s.Flagged, postID)
}

// FlaggedSnapshot copies the flagged set.
func (s *ChatState) FlaggedSnapshot() map[string]struct{} {
	dup := make(map[string]struct{}, len(s.Flagged))
	for id := range s.Flagged {
		dup[id] = struct{}{}
	}
	return dup
}

// RecordProgramOutput appends to the program log, keeping the newest entries.
func (s *ChatState) RecordProgramOutput(out chat.ProgramOutput) {
	s.ProgramLog = append(s.ProgramLog, out)
	if over := len(s.ProgramLog) - programLogLimit; over > 0 {
		s.ProgramLog = append([]chat.ProgramOutput(nil), s.ProgramLog[over:]...)
	}
}

// RequestInteractive queues a foreground program run for the owner.
func (s *ChatState) RequestInteractive(command string, args ...string) {
	s.pending = append(s.pending, InteractiveRequest{Command: command, Args: append([]string(nil), args...)})
}

// TakeInteractive drains queued foreground runs.
func (s *ChatState) TakeInteractive() []InteractiveRequest {
	out := s.pending
	s.pending = nil
	return out
}
