package dispatcher

import (
	"github.com/atomicstack/chatterm/internal/backend"
	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/state"
)

type Result struct {
	PostsUpdated bool
	ChannelID    string
	Added        int
}

// Installer merges a page of posts into a channel timeline.
type Installer interface {
	AddChannelPosts(st *state.ChatState, channelID string, list chat.PostList) error
}

// PresenceResolver queues presence lookups for post authors.
type PresenceResolver interface {
	EnqueueStatus(set chat.MentionSet)
	FlushStatus()
}

// Dispatcher applies backend events to chat state. Handle must run on the
// goroutine that owns st.
type Dispatcher struct {
	posts    Installer
	presence PresenceResolver
}

func New(posts Installer, presence PresenceResolver) *Dispatcher {
	return &Dispatcher{posts: posts, presence: presence}
}

func (d *Dispatcher) Handle(st *state.ChatState, evt backend.Event) (Result, error) {
	var res Result
	if evt.Err != nil {
		return res, evt.Err
	}
	switch evt.Kind {
	case backend.KindPosts:
		page, ok := evt.Data.(backend.PostPage)
		if !ok {
			return res, nil
		}
		before := 0
		if ch, ok := st.Channel(page.ChannelID); ok {
			before = ch.Len()
		}
		if err := d.posts.AddChannelPosts(st, page.ChannelID, page.List); err != nil {
			return res, err
		}
		ch, _ := st.Channel(page.ChannelID)
		res.PostsUpdated = true
		res.ChannelID = page.ChannelID
		res.Added = ch.Len() - before
		if d.presence != nil {
			authors := make(chat.MentionSet)
			for _, p := range page.List.Posts {
				authors.Add(chat.ByUserID(p.UserID))
			}
			if len(authors) > 0 {
				d.presence.EnqueueStatus(authors)
				d.presence.FlushStatus()
			}
		}
	}
	return res, nil
}
