package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/roach88/chatsync/internal/chat"
	"github.com/roach88/chatsync/internal/codec"
)

// DefaultTimeout bounds a request when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// StatusError is returned for a non-200 response.
type StatusError struct {
	Method string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("history: %s %s: status %d: %s", e.Method, Path, e.Code, e.Body)
}

// Client talks to a history server. It implements engine.SnapshotSource
// and persist.Writer.
type Client struct {
	url     string
	http    *fasthttp.Client
	timeout time.Duration
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout used when the context has no
// deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClientLogger sets the logger. Default: slog.Default().
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient returns a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		url: strings.TrimRight(baseURL, "/") + Path,
		http: &fasthttp.Client{
			Name:                "chatsync",
			MaxResponseBodySize: DefaultMaxBody,
		},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSnapshot returns the raw stored array.
func (c *Client) FetchSnapshot(ctx context.Context) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := c.do(ctx, req, resp); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, &StatusError{Method: fasthttp.MethodGet, Code: resp.StatusCode(), Body: string(resp.Body())}
	}
	return append([]byte(nil), resp.Body()...), nil
}

// Load fetches and decodes the stored history.
func (c *Client) Load(ctx context.Context) ([]chat.Message, error) {
	data, err := c.FetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := codec.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if snap.Messages == nil {
		return []chat.Message{}, nil
	}
	return snap.Messages, nil
}

// Write replaces the stored history with msgs.
func (c *Client) Write(ctx context.Context, msgs []chat.Message) error {
	body, err := codec.EncodeSnapshotArray(msgs)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := c.do(ctx, req, resp); err != nil {
		return err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return &StatusError{Method: fasthttp.MethodPost, Code: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body()))}
	}
	c.logger.Debug("history stored", "messages", len(msgs), "bytes", len(body))
	return nil
}

func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	if dl, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, dl)
	} else {
		err = c.http.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return fmt.Errorf("history: %s %s: %w", req.Header.Method(), Path, err)
	}
	return nil
}
