// Package api is a small REST client for the chat server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/atomicstack/chatterm/internal/chat"
	"github.com/atomicstack/chatterm/internal/logging/events"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const (
	apiPrefix      = "/api/v4"
	defaultTimeout = 30 * time.Second
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, body)
}

// Client talks to the chat server. It is safe for concurrent use.
type Client struct {
	base    string
	token   string
	http    *fasthttp.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// Options configure a Client.
type Options struct {
	BaseURL string
	Token   string
	// RequestsPerSecond paces outgoing requests; zero disables pacing.
	RequestsPerSecond float64
	Timeout           time.Duration
}

func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must include scheme and host", opts.BaseURL)
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base:    strings.TrimRight(u.String(), "/"),
		token:   opts.Token,
		http:    &fasthttp.Client{Name: "chatterm"},
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
	}, nil
}

// FetchUsersByUsernames looks up users by username in one request.
func (c *Client) FetchUsersByUsernames(ctx context.Context, usernames []string) ([]chat.User, error) {
	var users []chat.User
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/users/usernames", usernames, &users); err != nil {
		return nil, fmt.Errorf("fetch users by username: %w", err)
	}
	return users, nil
}

// FetchUsersByIDs looks up users by ID in one request.
func (c *Client) FetchUsersByIDs(ctx context.Context, ids []string) ([]chat.User, error) {
	var users []chat.User
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/users/ids", ids, &users); err != nil {
		return nil, fmt.Errorf("fetch users by id: %w", err)
	}
	return users, nil
}

// FetchChannel loads channel metadata.
func (c *Client) FetchChannel(ctx context.Context, channelID string) (chat.Channel, error) {
	var ch chat.Channel
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/channels/"+url.PathEscape(channelID), nil, &ch); err != nil {
		return chat.Channel{}, fmt.Errorf("fetch channel %s: %w", channelID, err)
	}
	return ch, nil
}

type wirePost struct {
	ID        string         `json:"id"`
	ChannelID string         `json:"channel_id"`
	RootID    string         `json:"root_id"`
	UserID    string         `json:"user_id"`
	Message   string         `json:"message"`
	CreateAt  int64          `json:"create_at"`
	Props     map[string]any `json:"props"`
	FileIDs   []string       `json:"file_ids"`
}

func (w wirePost) post() chat.Post {
	p := chat.Post{
		ID:        w.ID,
		ChannelID: w.ChannelID,
		RootID:    w.RootID,
		UserID:    w.UserID,
		Message:   w.Message,
		CreateAt:  time.UnixMilli(w.CreateAt),
		FileIDs:   w.FileIDs,
	}
	if len(w.Props) > 0 {
		p.Props = make(map[string]string, len(w.Props))
		for k, v := range w.Props {
			if s, ok := v.(string); ok {
				p.Props[k] = s
			}
		}
	}
	return p
}

type wirePostList struct {
	Order []string            `json:"order"`
	Posts map[string]wirePost `json:"posts"`
}

// FetchPosts loads one page of a channel, newest first.
func (c *Client) FetchPosts(ctx context.Context, channelID string, page, perPage int) (chat.PostList, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	path := "/channels/" + url.PathEscape(channelID) + "/posts?" + q.Encode()

	var wire wirePostList
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &wire); err != nil {
		return chat.PostList{}, fmt.Errorf("fetch posts for %s: %w", channelID, err)
	}
	list := chat.PostList{Order: wire.Order, Posts: make(map[string]chat.Post, len(wire.Posts))}
	for id, p := range wire.Posts {
		list.Posts[id] = p.post()
	}
	return list, nil
}

// FetchFileInfo loads attachment metadata.
func (c *Client) FetchFileInfo(ctx context.Context, fileID string) (chat.FileInfo, error) {
	var info chat.FileInfo
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/files/"+url.PathEscape(fileID)+"/info", nil, &info); err != nil {
		return chat.FileInfo{}, fmt.Errorf("fetch file info %s: %w", fileID, err)
	}
	return info, nil
}

// FetchFile downloads attachment contents.
func (c *Client) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	body, err := c.do(ctx, fasthttp.MethodGet, "/files/"+url.PathEscape(fileID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch file %s: %w", fileID, err)
	}
	return body, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	events.Fetch.Request(method, path)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + apiPrefix + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}
	code := resp.StatusCode()
	if code < 200 || code > 299 {
		return nil, &StatusError{Code: code, Body: string(resp.Body())}
	}
	// resp is released on return
	return append([]byte(nil), resp.Body()...), nil
}
