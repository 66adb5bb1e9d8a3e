// Package users batches lookups of users referenced by messages.
//
// Mentions are collected into a pending set and resolved on Flush. Each flush
// issues at most one lookup by username and one by ID, and only for entries
// that are neither cached nor already being fetched when the flush runs.
// Entries a successful lookup did not return are not asked for again.
package users

import (
	"context"
	"sync"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/feed"
	"github.com/atomicstack/chatterm/internal/logging/events"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/atomicstack/chatterm/internal/task"
)

// unknownStatus is reported for users the server returns without presence.
const unknownStatus = "offline"

// Client performs the batched user lookups.
type Client interface {
	FetchUsersByUsernames(ctx context.Context, usernames []string) ([]chat.User, error)
	FetchUsersByIDs(ctx context.Context, ids []string) ([]chat.User, error)
}

// StatusUpdate is a presence notification produced by FlushStatus.
type StatusUpdate struct {
	UserID   string
	Username string
	Status   string
}

// queue is one dedup/batch path: a pending set plus the entries currently
// being fetched.
type queue struct {
	pending  chat.MentionSet
	inflight chat.MentionSet
}

func newQueue() queue {
	return queue{pending: make(chat.MentionSet), inflight: make(chat.MentionSet)}
}

// Batcher collects mentions and resolves them through the scheduler.
type Batcher struct {
	sched  *task.Scheduler
	client Client
	cache  *state.UserCache

	mu     sync.Mutex
	users  queue
	status queue

	// names and IDs the server answered without a match; never retried
	missing chat.MentionSet

	statuses *feed.Feed[StatusUpdate]
}

// NewBatcher returns a batcher that filters against cache. The cache must be
// the one held by the state the scheduler's continuations are applied to.
func NewBatcher(sched *task.Scheduler, client Client, cache *state.UserCache) *Batcher {
	return &Batcher{
		sched:    sched,
		client:   client,
		cache:    cache,
		users:    newQueue(),
		status:   newQueue(),
		missing:  make(chat.MentionSet),
		statuses: feed.New[StatusUpdate](),
	}
}

// Statuses is the presence feed filled by FlushStatus.
func (b *Batcher) Statuses() *feed.Feed[StatusUpdate] {
	return b.statuses
}

// Enqueue adds mentions to the pending user lookups.
func (b *Batcher) Enqueue(set chat.MentionSet) {
	b.mu.Lock()
	b.users.pending.Union(set)
	b.mu.Unlock()
}

// EnqueueStatus adds mentions to the pending presence lookups.
func (b *Batcher) EnqueueStatus(set chat.MentionSet) {
	b.mu.Lock()
	b.status.pending.Union(set)
	b.mu.Unlock()
}

// Pending reports the number of queued user lookups.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.users.pending)
}

// Flush resolves every pending user lookup. Found users are merged into the
// user cache, each lookup in its own continuation.
func (b *Batcher) Flush() {
	b.sched.Submit(task.Preempt, "users.flush", func() (task.Continuation, error) {
		names, ids := b.take(&b.users, b.cache.Resolved)
		if len(names) == 0 && len(ids) == 0 {
			events.Fetch.Skip("users", 0)
			return nil, nil
		}
		b.dispatch(&b.users, names, ids, b.mergeUsers)
		return nil, nil
	})
}

// FlushStatus resolves pending presence lookups and publishes the results on
// Statuses instead of touching the cache.
func (b *Batcher) FlushStatus() {
	b.sched.Submit(task.Preempt, "users.flush-status", func() (task.Continuation, error) {
		names, ids := b.take(&b.status, b.cache.StatusKnown)
		if len(names) == 0 && len(ids) == 0 {
			events.Fetch.Skip("status", 0)
			return nil, nil
		}
		b.dispatch(&b.status, names, ids, b.publishStatuses)
		return nil, nil
	})
}

// take snapshots and clears q's pending set, dropping entries that are
// satisfied, already in flight or known to be missing, and marks the rest in
// flight.
func (b *Batcher) take(q *queue, satisfied func(chat.MentionedUser) bool) (names, ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := q.pending
	q.pending = make(chat.MentionSet)

	want := make(chat.MentionSet, len(snapshot))
	for m := range snapshot {
		if _, busy := q.inflight[m]; busy || satisfied(m) {
			continue
		}
		if _, gone := b.missing[m]; gone {
			continue
		}
		want.Add(m)
		q.inflight.Add(m)
	}
	return want.Usernames(), want.UserIDs()
}

func (b *Batcher) release(q *queue, mentions []chat.MentionedUser) {
	b.mu.Lock()
	for _, m := range mentions {
		delete(q.inflight, m)
	}
	b.mu.Unlock()
}

// settle releases held and records every held entry the server did not
// return, so tokens like @channel or departed users are asked for once.
func (b *Batcher) settle(q *queue, held []chat.MentionedUser, found []chat.User) {
	returned := make(chat.MentionSet, 2*len(found))
	for _, u := range found {
		returned.Add(chat.ByUserID(u.ID))
		returned.Add(chat.ByUsername(u.Username))
	}
	b.mu.Lock()
	for _, m := range held {
		delete(q.inflight, m)
		if _, ok := returned[m]; !ok {
			b.missing.Add(m)
		}
	}
	b.mu.Unlock()
}

// Missing reports whether m was looked up and not found this session.
func (b *Batcher) Missing(m chat.MentionedUser) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.missing[m]
	return ok
}

type deliverFunc func(q *queue, held []chat.MentionedUser, found []chat.User) task.Continuation

// dispatch submits one lookup per non-empty list. The lookups are independent:
// a failure in one leaves the other's result intact.
func (b *Batcher) dispatch(q *queue, names, ids []string, deliver deliverFunc) {
	if len(names) > 0 {
		held := mentions(names, chat.ByUsername)
		b.sched.Submit(task.Normal, "users.by-username", func() (task.Continuation, error) {
			events.Fetch.Users("username", names)
			found, err := b.client.FetchUsersByUsernames(context.Background(), names)
			if err != nil {
				b.release(q, held)
				return nil, err
			}
			return deliver(q, held, found), nil
		})
	}
	if len(ids) > 0 {
		held := mentions(ids, chat.ByUserID)
		b.sched.Submit(task.Normal, "users.by-id", func() (task.Continuation, error) {
			events.Fetch.Users("id", ids)
			found, err := b.client.FetchUsersByIDs(context.Background(), ids)
			if err != nil {
				b.release(q, held)
				return nil, err
			}
			return deliver(q, held, found), nil
		})
	}
}

// mergeUsers releases the in-flight entries only once the users are in the
// cache, so a flush in between cannot refetch them.
func (b *Batcher) mergeUsers(q *queue, held []chat.MentionedUser, found []chat.User) task.Continuation {
	return func(st *state.ChatState) error {
		st.Users.Add(found...)
		b.settle(q, held, found)
		return nil
	}
}

func (b *Batcher) publishStatuses(q *queue, held []chat.MentionedUser, found []chat.User) task.Continuation {
	for _, u := range found {
		status := u.Status
		if status == "" {
			status = unknownStatus
		}
		b.statuses.Publish(StatusUpdate{UserID: u.ID, Username: u.Username, Status: status})
	}
	b.settle(q, held, found)
	return nil
}

func mentions(keys []string, build func(string) chat.MentionedUser) []chat.MentionedUser {
	out := make([]chat.MentionedUser, 0, len(keys))
	for _, k := range keys {
		out = append(out, build(k))
	}
	return out
}
