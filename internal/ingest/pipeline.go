// Package ingest turns pages of server posts into ordered timeline messages.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/logging/events"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/atomicstack/chatterm/internal/task"
)

// ErrMissingPost reports an ordered post ID absent from the page's detail map.
var ErrMissingPost = errors.New("post listed in order but missing from page")

const defaultPageSize = 60

// Resolver receives the users mentioned by installed posts.
type Resolver interface {
	Enqueue(set chat.MentionSet)
	Flush()
}

// Client fetches a page of channel posts.
type Client interface {
	FetchPosts(ctx context.Context, channelID string, page, perPage int) (chat.PostList, error)
}

type Pipeline struct {
	resolver Resolver
	perPage  int
}

// New returns a pipeline that hands mentions to resolver. A nil resolver
// discards them.
func New(resolver Resolver) *Pipeline {
	return &Pipeline{resolver: resolver, perPage: defaultPageSize}
}

// InstallPosts merges every post of list into the post map and returns the
// listed posts as messages, oldest first. Flags are read once, when the call
// starts. The call fails without installing the ordered messages when the
// order references an unknown post.
func (p *Pipeline) InstallPosts(st *state.ChatState, list chat.PostList) ([]chat.Message, error) {
	msgs, _, err := p.install(st, list)
	return msgs, err
}

func (p *Pipeline) install(st *state.ChatState, list chat.PostList) ([]chat.Message, int, error) {
	flagged := st.FlaggedSnapshot()

	for _, post := range list.Posts {
		st.MergePosts(withFlag(chat.MessageFromPost(post, nil), flagged))
	}

	mentions := make(chat.MentionSet)
	out := make([]chat.Message, 0, len(list.Order))
	for i := len(list.Order) - 1; i >= 0; i-- {
		id := list.Order[i]
		post, ok := list.Posts[id]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrMissingPost, id)
		}
		var parent *chat.Post
		if post.RootID != "" {
			if root, ok := list.Posts[post.RootID]; ok {
				parent = &root
			}
		}
		out = append(out, withFlag(chat.MessageFromPost(post, parent), flagged))
		mentions.Union(chat.ScanMentions(post))
	}

	if p.resolver != nil && len(mentions) > 0 {
		p.resolver.Enqueue(mentions)
		p.resolver.Flush()
	}
	return out, len(mentions), nil
}

// AddChannelPosts installs list and merges the result into the channel's
// timeline.
func (p *Pipeline) AddChannelPosts(st *state.ChatState, channelID string, list chat.PostList) error {
	msgs, mentions, err := p.install(st, list)
	if err != nil {
		return err
	}
	st.AddMessages(channelID, msgs)
	events.Ingest.Install(channelID, len(msgs), len(list.Posts), mentions)
	return nil
}

// FetchChannelPosts loads the newest page of a channel in the background and
// installs it on the owner.
func (p *Pipeline) FetchChannelPosts(sched *task.Scheduler, client Client, channelID string) {
	sched.Submit(task.Normal, "posts "+channelID, func() (task.Continuation, error) {
		list, err := client.FetchPosts(context.Background(), channelID, 0, p.perPage)
		if err != nil {
			return nil, err
		}
		return func(st *state.ChatState) error {
			return p.AddChannelPosts(st, channelID, list)
		}, nil
	})
}

func withFlag(m chat.Message, flagged map[string]struct{}) chat.Message {
	if id, ok := m.ID.PostID(); ok {
		_, m.Flagged = flagged[id]
	}
	return m
}
