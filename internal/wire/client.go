package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrActionFailed wraps an Error response from the platform.
	ErrActionFailed = errors.New("action failed")
	// ErrClosed is returned by Send once the read loop has ended.
	ErrClosed = errors.New("platform connection closed")
)

// Client multiplexes actions and their responses over one platform
// connection. Responses are matched to actions by ActionID.
type Client struct {
	rw      io.ReadWriter
	logger  *slog.Logger
	greeted bool // only touched by Serve

	writeMu sync.Mutex

	mu      sync.Mutex
	waiting map[string]chan Frame
	done    chan struct{}
	once    sync.Once
	err     error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client over rw. Serve must be running for Send to
// receive responses.
func NewClient(rw io.ReadWriter, opts ...ClientOption) *Client {
	c := &Client{
		rw:      rw,
		logger:  slog.Default(),
		waiting: make(map[string]chan Frame),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Serve reads frames until the stream ends, routing responses to pending
// Send calls and passing every other frame to handle. It returns the read
// error, or io.EOF on a clean close.
func (c *Client) Serve(handle func(Frame)) error {
	p := NewParser(c.rw)
	for {
		f, ok := p.Next()
		if b := p.Banner(); b != "" && !c.greeted {
			c.greeted = true
			c.logger.Info("platform bridge connected", "banner", b)
		}
		if !ok {
			err := p.Err()
			if err == nil {
				err = io.EOF
			}
			c.close(err)
			return err
		}
		if f.IsResponse() {
			c.deliver(f)
			continue
		}
		handle(f)
	}
}

func (c *Client) deliver(f Frame) {
	id := f.Get("ActionID")
	c.mu.Lock()
	ch, ok := c.waiting[id]
	delete(c.waiting, id)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("unmatched response", "action_id", id, "response", f.Get("Response"))
		return
	}
	ch <- f
}

func (c *Client) close(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

// Send writes action with a fresh ActionID and waits for its response.
func (c *Client) Send(ctx context.Context, action Frame) (Frame, error) {
	id := uuid.NewString()
	action.Set("ActionID", id)
	ch := make(chan Frame, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return Frame{}, ErrClosed
	default:
	}
	c.waiting[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	_, err := c.rw.Write(action.Bytes())
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return Frame{}, fmt.Errorf("writing %s: %w", action.Action(), err)
	}

	select {
	case resp := <-ch:
		if !strings.EqualFold(resp.Get("Response"), "Success") {
			return resp, fmt.Errorf("%w: %s: %s", ErrActionFailed, action.Action(), resp.Get("Message"))
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, ErrClosed
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.waiting, id)
	c.mu.Unlock()
}

// Err returns the error that ended Serve, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
