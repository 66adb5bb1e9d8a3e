package state

import (
	"strings"
	"sync"

	"github.com/atomicstack/chatterm/internal/chat"
)

// UserCache holds every user record seen this session. Writes happen on the
// owner goroutine; background lookups may read it concurrently.
type UserCache struct {
	mu       sync.RWMutex
	byID     map[string]chat.User
	byName   map[string]string
	statuses map[string]string
}

func NewUserCache() *UserCache {
	return &UserCache{
		byID:     make(map[string]chat.User),
		byName:   make(map[string]string),
		statuses: make(map[string]string),
	}
}

// Add merges users into the cache, replacing older records with the same ID.
func (c *UserCache) Add(users ...chat.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		if prev, ok := c.byID[u.ID]; ok && prev.Username != "" {
			delete(c.byName, strings.ToLower(prev.Username))
		}
		c.byID[u.ID] = u
		if u.Username != "" {
			c.byName[strings.ToLower(u.Username)] = u.ID
		}
		if u.Status != "" {
			c.statuses[u.ID] = u.Status
		}
	}
}

func (c *UserCache) ByID(id string) (chat.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.byID[id]
	return u, ok
}

func (c *UserCache) ByUsername(name string) (chat.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return chat.User{}, false
	}
	u, ok := c.byID[id]
	return u, ok
}

func (c *UserCache) HasID(id string) bool {
	_, ok := c.ByID(id)
	return ok
}

func (c *UserCache) HasUsername(name string) bool {
	_, ok := c.ByUsername(name)
	return ok
}

// Resolved reports whether the mentioned user is already cached.
func (c *UserCache) Resolved(m chat.MentionedUser) bool {
	if name, ok := m.Username(); ok {
		return c.HasUsername(name)
	}
	id, _ := m.UserID()
	return c.HasID(id)
}

// SetStatus records presence for a user ID.
func (c *UserCache) SetStatus(id, status string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.statuses[id] = status
	c.mu.Unlock()
}

func (c *UserCache) Status(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.statuses[id]
	return s, ok
}

// StatusKnown reports whether presence is known for the mentioned user.
func (c *UserCache) StatusKnown(m chat.MentionedUser) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, isID := m.UserID()
	if !isID {
		name, _ := m.Username()
		var ok bool
		if id, ok = c.byName[name]; !ok {
			return false
		}
	}
	_, ok := c.statuses[id]
	return ok
}

func (c *UserCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
