package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/logfields"
	"github.com/Silberengel/scriptorium/internal/record"
)

// Options bounds each relay interaction.
type Options struct {
	DialTimeout    time.Duration
	PublishTimeout time.Duration
	QueryTimeout   time.Duration
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 15 * time.Second
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 20 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// WebSocketDialer dials relays over gorilla/websocket.
type WebSocketDialer struct {
	Options Options
}

// Dial opens a websocket session to rawURL.
func (d WebSocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	c, err := Dial(ctx, rawURL, d.Options)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Client is a websocket relay session. Calls are serialized.
type Client struct {
	url  string
	conn *websocket.Conn
	opts Options
	mu   sync.Mutex
}

// Dial opens a websocket session to rawURL.
func Dial(ctx context.Context, rawURL string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, ferrors.ConfigError("relay url must be ws:// or wss://").
			WithContext("relay", rawURL).Build()
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout, Proxy: websocket.DefaultDialer.Proxy}
	conn, resp, err := dialer.DialContext(dialCtx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTransport, "dial relay").
			WithRetry(ferrors.RetryBackoff).WithContext("relay", rawURL).Build()
	}
	opts.Logger.Debug("Relay connected", logfields.Relay(rawURL))
	return &Client{url: rawURL, conn: conn, opts: opts}, nil
}

// URL returns the relay address.
func (c *Client) URL() string { return c.url }

// Publish sends ["EVENT", r] and waits for the matching OK.
func (c *Client) Publish(ctx context.Context, r *record.Record) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stop := c.bound(ctx, c.opts.PublishTimeout)
	defer stop()

	if err := c.write([]any{"EVENT", r}); err != nil {
		return 0, c.transportErr(ctx, err, "send event", r.ID)
	}
	for {
		label, parts, err := c.read()
		if err != nil {
			return 0, c.transportErr(ctx, err, "await ok", r.ID)
		}
		switch label {
		case "OK":
			var id, message string
			var accepted bool
			if len(parts) < 3 ||
				json.Unmarshal(parts[0], &id) != nil ||
				json.Unmarshal(parts[1], &accepted) != nil {
				return 0, ferrors.TransportError("malformed OK frame").WithContext("event_id", r.ID).Build()
			}
			_ = json.Unmarshal(parts[2], &message)
			if id != r.ID {
				continue
			}
			return classifyOK(r, accepted, message)
		case "NOTICE":
			c.notice(parts)
		}
	}
}

// Query sends a REQ with a fresh subscription id, collects EVENT frames until
// EOSE or CLOSED, then closes the subscription.
func (c *Client) Query(ctx context.Context, f Filter) ([]*record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stop := c.bound(ctx, c.opts.QueryTimeout)
	defer stop()

	sub := uuid.NewString()
	if err := c.write([]any{"REQ", sub, f}); err != nil {
		return nil, c.transportErr(ctx, err, "send query", "")
	}

	var out []*record.Record
	for {
		label, parts, err := c.read()
		if err != nil {
			return nil, c.transportErr(ctx, err, "read query results", "")
		}
		if label == "NOTICE" {
			c.notice(parts)
			continue
		}
		var got string
		if len(parts) == 0 || json.Unmarshal(parts[0], &got) != nil || got != sub {
			continue
		}
		switch label {
		case "EVENT":
			if len(parts) < 2 {
				continue
			}
			var r record.Record
			if err := json.Unmarshal(parts[1], &r); err != nil {
				c.opts.Logger.Warn("Skipping undecodable relay event", logfields.Relay(c.url), logfields.Error(err))
				continue
			}
			out = append(out, &r)
		case "EOSE":
			if err := c.write([]any{"CLOSE", sub}); err != nil {
				return nil, c.transportErr(ctx, err, "close subscription", "")
			}
			return out, nil
		case "CLOSED":
			var reason string
			if len(parts) > 1 {
				_ = json.Unmarshal(parts[1], &reason)
			}
			return nil, ferrors.TransportError("relay closed the subscription").
				WithContext("relay", c.url).WithContext("message", reason).Build()
		}
	}
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// bound applies the per-call timeout and unblocks pending I/O when ctx ends.
func (c *Client) bound(ctx context.Context, timeout time.Duration) func() {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)
	_ = c.conn.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
		_ = c.conn.SetWriteDeadline(time.Now())
	})
	return func() { stop() }
}

func (c *Client) write(frame []any) error {
	return c.conn.WriteJSON(frame)
}

func (c *Client) read() (string, []json.RawMessage, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", nil, err
	}
	return envelope(data)
}

func (c *Client) notice(parts []json.RawMessage) {
	var msg string
	if len(parts) > 0 {
		_ = json.Unmarshal(parts[0], &msg)
	}
	c.opts.Logger.Info("Relay notice", logfields.Relay(c.url), slog.String("message", msg))
}

func (c *Client) transportErr(ctx context.Context, err error, op, eventID string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	b := ferrors.WrapError(err, ferrors.CategoryTransport, op).
		WithRetry(ferrors.RetryBackoff).
		WithContext("relay", c.url)
	if eventID != "" {
		b = b.WithContext("event_id", eventID)
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		b = b.WithContext("close_code", closeErr.Code)
	}
	return b.Build()
}
