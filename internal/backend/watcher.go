package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atomicstack/chatterm/internal/chat"
)

// Kind represents the type of data emitted by the backend watcher.
type Kind int

const (
	KindPosts Kind = iota
)

// ErrNoChannel is reported while no channel is being followed.
var ErrNoChannel = errors.New("no channel selected")

const pageSize = 60

// PostPage is the payload of a KindPosts event.
type PostPage struct {
	ChannelID string
	List      chat.PostList
}

// Event conveys updated data or an error from a backend poll.
type Event struct {
	Kind Kind
	Data interface{}
	Err  error
}

// PostsFetcher loads a page of channel posts.
type PostsFetcher interface {
	FetchPosts(ctx context.Context, channelID string, page, perPage int) (chat.PostList, error)
}

// Watcher polls the followed channel at a fixed interval and publishes
// events. It never touches chat state; the owner applies events.
type Watcher struct {
	client   PostsFetcher
	interval time.Duration
	channel  atomic.Value

	ctx    context.Context
	cancel context.CancelFunc

	events chan Event
	kick   chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher creates a backend watcher that polls every interval.
func NewWatcher(client PostsFetcher, interval time.Duration) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		client:   client,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan Event, 16),
		kick:     make(chan struct{}, 1),
	}
	w.channel.Store("")

	w.startPostPoller()

	go func() {
		w.wg.Wait()
		close(w.events)
	}()

	return w
}

// Events returns a channel of backend events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Follow switches the polled channel and requests an immediate poll.
func (w *Watcher) Follow(channelID string) {
	w.channel.Store(channelID)
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Following returns the polled channel ID.
func (w *Watcher) Following() string {
	return w.channel.Load().(string)
}

// Stop cancels the watcher. Pollers exit after their current fetch completes;
// use Wait if a clean drain is required (e.g. in tests).
func (w *Watcher) Stop() {
	w.cancel()
}

// Wait blocks until all poller goroutines have exited and the events channel
// is closed. Call after Stop when a clean shutdown is required.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

func (w *Watcher) startPostPoller() {
	throttle := newThrottle(250 * time.Millisecond)
	w.wg.Add(1)
	go w.poll(KindPosts, func(ctx context.Context) (interface{}, error) {
		channelID := w.Following()
		if channelID == "" {
			return nil, ErrNoChannel
		}
		if err := throttle.wait(ctx); err != nil {
			return nil, err
		}
		list, err := w.client.FetchPosts(ctx, channelID, 0, pageSize)
		if err != nil {
			return nil, err
		}
		return PostPage{ChannelID: channelID, List: list}, nil
	})
}

func (w *Watcher) poll(kind Kind, fetch func(context.Context) (interface{}, error)) {
	defer w.wg.Done()

	emit := func() bool {
		data, err := fetch(w.ctx)
		if errors.Is(err, ErrNoChannel) {
			return true
		}
		evt := Event{Kind: kind, Data: data, Err: err}
		select {
		case <-w.ctx.Done():
			return false
		case w.events <- evt:
			return true
		}
	}

	if !emit() {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if !emit() {
				return
			}
		case <-w.kick:
			if !emit() {
				return
			}
		}
	}
}
