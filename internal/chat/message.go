package chat

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags the origin of a message.
type Kind int

const (
	KindNormal Kind = iota
	KindInfo
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindError:
		return "error"
	default:
		return "normal"
	}
}

type idKind int

const (
	idPost idKind = iota + 1
	idLocal
)

// MessageID identifies a message either by the persisted post ID or by a
// locally generated ID for client-only notices. The zero value is invalid.
type MessageID struct {
	kind  idKind
	value string
}

// PostMessageID returns the identity of a message backed by a server post.
func PostMessageID(postID string) MessageID {
	return MessageID{kind: idPost, value: postID}
}

// LocalMessageID returns a fresh identity for a client-only notice.
func LocalMessageID() MessageID {
	return MessageID{kind: idLocal, value: uuid.NewString()}
}

// PostID returns the post ID when the message is backed by a post.
func (id MessageID) PostID() (string, bool) {
	if id.kind != idPost {
		return "", false
	}
	return id.value, true
}

// IsLocal reports whether the identity was generated on the client.
func (id MessageID) IsLocal() bool {
	return id.kind == idLocal
}

func (id MessageID) String() string {
	switch id.kind {
	case idPost:
		return "post:" + id.value
	case idLocal:
		return "local:" + id.value
	default:
		return ""
	}
}

// Message is the client-normalised unit of conversation.
type Message struct {
	ID        MessageID
	Kind      Kind
	Text      string
	UserID    string
	ChannelID string
	CreateAt  time.Time
	Flagged   bool
	Post      *Post
	ReplyTo   *Post
}

// MessageFromPost converts a post into a message. parent is attached as the
// reply reference when non-nil.
func MessageFromPost(p Post, parent *Post) Message {
	post := p
	msg := Message{
		ID:        PostMessageID(p.ID),
		Kind:      KindNormal,
		Text:      p.Message,
		UserID:    p.UserID,
		ChannelID: p.ChannelID,
		CreateAt:  p.CreateAt,
		Post:      &post,
	}
	if parent != nil {
		ref := *parent
		msg.ReplyTo = &ref
	}
	return msg
}

// NewInfo builds a client-only informational notice.
func NewInfo(channelID, text string, at time.Time) Message {
	return Message{ID: LocalMessageID(), Kind: KindInfo, Text: text, ChannelID: channelID, CreateAt: at}
}

// NewError builds a client-only error notice.
func NewError(channelID, text string, at time.Time) Message {
	return Message{ID: LocalMessageID(), Kind: KindError, Text: text, ChannelID: channelID, CreateAt: at}
}
