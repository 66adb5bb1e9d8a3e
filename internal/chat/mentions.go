package chat

import (
	"regexp"
	"sort"
	"strings"
)

type mentionKind int

const (
	mentionUsername mentionKind = iota + 1
	mentionUserID
)

// MentionedUser is a user reference found in message text, either by username
// or by user ID. Values are comparable and can key a map.
type MentionedUser struct {
	kind  mentionKind
	value string
}

// ByUsername references a user by username.
func ByUsername(name string) MentionedUser {
	return MentionedUser{kind: mentionUsername, value: strings.ToLower(name)}
}

// ByUserID references a user by ID.
func ByUserID(id string) MentionedUser {
	return MentionedUser{kind: mentionUserID, value: id}
}

// Username returns the username when the mention is by username.
func (m MentionedUser) Username() (string, bool) {
	return m.value, m.kind == mentionUsername
}

// UserID returns the ID when the mention is by user ID.
func (m MentionedUser) UserID() (string, bool) {
	return m.value, m.kind == mentionUserID
}

func (m MentionedUser) String() string {
	if m.kind == mentionUsername {
		return "@" + m.value
	}
	return "id:" + m.value
}

// MentionSet is a set of mentioned users.
type MentionSet map[MentionedUser]struct{}

// NewMentionSet builds a set from the given mentions.
func NewMentionSet(mentions ...MentionedUser) MentionSet {
	set := make(MentionSet, len(mentions))
	for _, m := range mentions {
		set.Add(m)
	}
	return set
}

// Add inserts a mention.
func (s MentionSet) Add(m MentionedUser) {
	if m.value == "" {
		return
	}
	s[m] = struct{}{}
}

// Union adds every member of other to s.
func (s MentionSet) Union(other MentionSet) {
	for m := range other {
		s[m] = struct{}{}
	}
}

// Usernames returns the sorted usernames in the set.
func (s MentionSet) Usernames() []string {
	var out []string
	for m := range s {
		if name, ok := m.Username(); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// UserIDs returns the sorted user IDs in the set.
func (s MentionSet) UserIDs() []string {
	var out []string
	for m := range s {
		if id, ok := m.UserID(); ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

var (
	usernamePattern = regexp.MustCompile(`(?:^|[^\w@])@([a-zA-Z0-9][a-zA-Z0-9._-]*)`)
	urlPattern      = regexp.MustCompile(`https?://[^\s<>()"']+`)
)

// channel-wide keywords that look like mentions but name no user
var specialMentions = map[string]bool{
	"all":     true,
	"channel": true,
	"here":    true,
}

// ScanMentions returns the users referenced by a post: every @username token
// in its body plus its author.
func ScanMentions(p Post) MentionSet {
	set := make(MentionSet)
	for _, match := range usernamePattern.FindAllStringSubmatch(p.Message, -1) {
		name := strings.TrimRight(match[1], "._-")
		if name == "" || specialMentions[strings.ToLower(name)] {
			continue
		}
		set.Add(ByUsername(name))
	}
	if p.UserID != "" {
		set.Add(ByUserID(p.UserID))
	}
	return set
}

// ExtractURLs returns the links in text in order of appearance.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimRight(m, ".,;:!?"))
	}
	return out
}
