package users

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/state"
	"github.com/atomicstack/chatterm/internal/task"
)

type fakeClient struct {
	mu        sync.Mutex
	users     map[string]chat.User
	nameCalls [][]string
	idCalls   [][]string
	nameErr   error
	idErr     error
	gate      chan struct{}
}

func newFakeClient(users ...chat.User) *fakeClient {
	c := &fakeClient{users: make(map[string]chat.User)}
	for _, u := range users {
		c.users[u.ID] = u
	}
	return c
}

func (c *fakeClient) FetchUsersByUsernames(_ context.Context, names []string) ([]chat.User, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nameCalls = append(c.nameCalls, append([]string(nil), names...))
	if c.nameErr != nil {
		return nil, c.nameErr
	}
	var out []chat.User
	for _, n := range names {
		for _, u := range c.users {
			if u.Username == n {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (c *fakeClient) FetchUsersByIDs(_ context.Context, ids []string) ([]chat.User, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idCalls = append(c.idCalls, append([]string(nil), ids...))
	if c.idErr != nil {
		return nil, c.idErr
	}
	var out []chat.User
	for _, id := range ids {
		if u, ok := c.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (c *fakeClient) calls() (names, ids int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nameCalls), len(c.idCalls)
}

func setup(client *fakeClient) (*task.Scheduler, *state.ChatState, *Batcher) {
	sched := task.NewScheduler()
	st := state.NewChatState()
	st.AddChannel("c1", "town-square")
	return sched, st, NewBatcher(sched, client, st.Users)
}

func TestFlushIssuesNoCallsWhenEverythingCached(t *testing.T) {
	client := newFakeClient()
	sched, st, b := setup(client)
	st.Users.Add(chat.User{ID: "u1", Username: "alice"}, chat.User{ID: "u2", Username: "bob"})

	b.Enqueue(chat.NewMentionSet(chat.ByUsername("Alice"), chat.ByUsername("bob"), chat.ByUserID("u2")))
	b.Flush()
	if errs := sched.Settle(st); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if names, ids := client.calls(); names != 0 || ids != 0 {
		t.Fatalf("expected zero calls, got %d by-username and %d by-id", names, ids)
	}
	if b.Pending() != 0 {
		t.Fatalf("expected pending set cleared")
	}
}

func TestFlushBatchesIntoAtMostTwoCalls(t *testing.T) {
	client := newFakeClient(
		chat.User{ID: "u1", Username: "alice"},
		chat.User{ID: "u2", Username: "bob"},
		chat.User{ID: "u3", Username: "carol"},
		chat.User{ID: "u4", Username: "dave"},
	)
	sched, st, b := setup(client)
	b.Enqueue(chat.NewMentionSet(chat.ByUsername("alice"), chat.ByUsername("bob")))
	b.Enqueue(chat.NewMentionSet(chat.ByUsername("bob"), chat.ByUsername("carol"), chat.ByUserID("u4"), chat.ByUserID("u3")))
	b.Flush()
	if errs := sched.Settle(st); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	names, ids := client.calls()
	if names != 1 || ids != 1 {
		t.Fatalf("expected one call per kind, got %d/%d", names, ids)
	}
	got := client.nameCalls[0]
	want := []string{"alice", "bob", "carol"}
	if !sort.StringsAreSorted(got) || len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		if !st.Users.HasID(id) {
			t.Fatalf("expected %s merged into cache", id)
		}
	}
}

func TestFlushFiltersAtDispatchNotEnqueue(t *testing.T) {
	client := newFakeClient(chat.User{ID: "u1", Username: "alice"})
	sched, st, b := setup(client)
	b.Enqueue(chat.NewMentionSet(chat.ByUsername("alice")))
	st.Users.Add(chat.User{ID: "u1", Username: "alice"})
	b.Flush()
	sched.Settle(st)
	if names, _ := client.calls(); names != 0 {
		t.Fatalf("expected user cached after enqueue to be skipped, got %d calls", names)
	}
}

func TestFailedLookupDoesNotBlockSibling(t *testing.T) {
	client := newFakeClient(chat.User{ID: "u9", Username: "zed"})
	client.nameErr = errors.New("boom")
	sched, st, b := setup(client)
	b.Enqueue(chat.NewMentionSet(chat.ByUsername("alice"), chat.ByUserID("u9")))
	b.Flush()
	errs := sched.Settle(st)
	if len(errs) != 1 || !errors.Is(errs[0], client.nameErr) {
		t.Fatalf("expected the by-username failure only, got %v", errs)
	}
	if !st.Users.HasID("u9") {
		t.Fatalf("expected by-id result merged despite sibling failure")
	}

	client.nameErr = nil
	client.users["u1"] = chat.User{ID: "u1", Username: "alice"}
	b.Enqueue(chat.NewMentionSet(chat.ByUsername("alice")))
	b.Flush()
	if errs := sched.Settle(st); len(errs) != 0 {
		t.Fatalf("unexpected errors on retry: %v", errs)
	}
	if !st.Users.HasUsername("alice") {
		t.Fatalf("expected failed lookup to be retryable")
	}
}

func TestInFlightLookupsAreNotDuplicated(t *testing.T) {
	client := newFakeClient(chat.User{ID: "u1", Username: "alice"})
	client.gate = make(chan struct{})
	sched, st, b := setup(client)

	b.Enqueue(chat.NewMentionSet(chat.ByUsername("alice")))
	b.Flush()
	// the first flush holds alice in flight until the gate opens
	for {
		b.mu.Lock()
		busy := len(b.users.inflight)
		b.mu.Unlock()
		if busy == 1 {
			break
		}
	}
	b.Enqueue(chat.NewMentionSet(chat.ByUsername("alice")))
	b.Flush()
	close(client.gate)
	if errs := sched.Settle(st); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if names, _ := client.calls(); names != 1 {
		t.Fatalf("expected a single lookup for alice, got %d", names)
	}
}

func TestUnknownUsersAreAskedForOnce(t *testing.T) {
	client := newFakeClient(chat.User{ID: "u1", Username: "alice"})
	sched, st, b := setup(client)
	mentioned := chat.NewMentionSet(chat.ByUsername("alice"), chat.ByUsername("deploybot"), chat.ByUserID("u404"))
	for i := 0; i < 3; i++ {
		b.Enqueue(mentioned)
		b.Flush()
		if errs := sched.Settle(st); len(errs) != 0 {
			t.Fatalf("unexpected errors on round %d: %v", i, errs)
		}
	}
	if names, ids := client.calls(); names != 1 || ids != 1 {
		t.Fatalf("expected one lookup per kind across rounds, got %d/%d", names, ids)
	}
	if !st.Users.HasUsername("alice") {
		t.Fatalf("expected alice cached")
	}
	if !b.Missing(chat.ByUsername("deploybot")) || !b.Missing(chat.ByUserID("u404")) {
		t.Fatalf("expected unmatched mentions recorded as missing")
	}
	if b.Missing(chat.ByUsername("alice")) {
		t.Fatalf("expected returned user not recorded as missing")
	}
}

func TestFailedLookupIsNotRecordedAsMissing(t *testing.T) {
	client := newFakeClient()
	client.nameErr = errors.New("boom")
	sched, st, b := setup(client)
	b.Enqueue(chat.NewMentionSet(chat.ByUsername("alice")))
	b.Flush()
	sched.Settle(st)
	if b.Missing(chat.ByUsername("alice")) {
		t.Fatalf("expected a failed lookup to stay retryable")
	}
}

func TestFlushStatusPublishesWithoutTouchingCache(t *testing.T) {
	client := newFakeClient(
		chat.User{ID: "u1", Username: "alice", Status: "online"},
		chat.User{ID: "u2", Username: "bob"},
	)
	sched, st, b := setup(client)
	b.EnqueueStatus(chat.NewMentionSet(chat.ByUserID("u1"), chat.ByUsername("bob")))
	b.FlushStatus()
	if errs := sched.Settle(st); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if st.Users.Len() != 0 {
		t.Fatalf("status lookups must not merge users, cache has %d", st.Users.Len())
	}
	updates := b.Statuses().Drain()
	if len(updates) != 2 {
		t.Fatalf("expected two status updates, got %#v", updates)
	}
	byID := map[string]string{}
	for _, u := range updates {
		byID[u.UserID] = u.Status
	}
	if byID["u1"] != "online" || byID["u2"] != unknownStatus {
		t.Fatalf("unexpected statuses %#v", byID)
	}
}

func TestFlushStatusSkipsKnownPresence(t *testing.T) {
	client := newFakeClient()
	sched, st, b := setup(client)
	st.Users.SetStatus("u1", "away")
	b.EnqueueStatus(chat.NewMentionSet(chat.ByUserID("u1")))
	b.FlushStatus()
	sched.Settle(st)
	if _, ids := client.calls(); ids != 0 {
		t.Fatalf("expected known presence to be skipped")
	}
	if b.Statuses().Len() != 0 {
		t.Fatalf("expected no updates")
	}
}
