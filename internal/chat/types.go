package chat

import "time"

// Post is a server-side chat record. Posts are treated as immutable once
// received.
type Post struct {
	ID        string            `json:"id"`
	ChannelID string            `json:"channel_id"`
	RootID    string            `json:"root_id"`
	UserID    string            `json:"user_id"`
	Message   string            `json:"message"`
	CreateAt  time.Time         `json:"-"`
	Props     map[string]string `json:"-"`
	FileIDs   []string          `json:"file_ids"`
}

// PostList is a page of posts as returned by the server. Order lists post IDs
// newest-first; Posts holds every referenced post and is a superset of Order.
type PostList struct {
	Order []string
	Posts map[string]Post
}

// User is a chat account record.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Nickname  string `json:"nickname"`
	Status    string `json:"status,omitempty"`
}

// DisplayName prefers the nickname, then the full name, then the username.
func (u User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	if u.FirstName != "" || u.LastName != "" {
		if u.LastName == "" {
			return u.FirstName
		}
		if u.FirstName == "" {
			return u.LastName
		}
		return u.FirstName + " " + u.LastName
	}
	return u.Username
}

// FileInfo describes an uploaded attachment.
type FileInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// ProgramOutput is the captured result of an external process execution.
type ProgramOutput struct {
	Command  string
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the program exited with status zero.
func (p ProgramOutput) Success() bool {
	return p.ExitCode == 0
}

// Channel describes a conversation on the server.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Label prefers the display name over the URL name.
func (c Channel) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
