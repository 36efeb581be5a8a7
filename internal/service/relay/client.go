package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jtorres-1/mirror-trade/internal/domain/models"
	drepo "github.com/jtorres-1/mirror-trade/internal/domain/repository"
	applogger "github.com/jtorres-1/mirror-trade/pkg/logger"
)

const sourceName = "relay"

var (
	ErrNotConnected = errors.New("relay not connected")
	ErrClosed       = errors.New("relay closed")
)

// Config configures the chat relay connection.
type Config struct {
	URL            string
	Channel        string
	Token          string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// frame is the relay wire format. Chat frames carry one message, history
// replies carry Messages newest first.
type frame struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id,omitempty"`
	Channel   string  `json:"channel,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	ID        string  `json:"id,omitempty"`
	Text      string  `json:"text,omitempty"`
	Date      string  `json:"date,omitempty"`
	Messages  []frame `json:"messages,omitempty"`
}

const (
	frameSubscribe = "subscribe"
	frameMessage   = "message"
	frameEdit      = "edit"
	frameHistory   = "history"
)

// Client is a MessageSource backed by a websocket bridge to the chat connector.
type Client struct {
	cfg Config
	l   *applogger.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan []frame
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup

	writeMu sync.Mutex
}

var (
	_ drepo.MessageSource = (*Client)(nil)
	_ drepo.Backfiller    = (*Client)(nil)
)

// New creates a relay client.
func New(cfg Config, l *applogger.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Client{
		cfg:     cfg,
		l:       l.With(applogger.String("source", sourceName)),
		pending: make(map[string]chan []frame),
	}
}

func (c *Client) Name() string { return sourceName }

// Start connects and keeps the connection alive until ctx ends or Close is called.
func (c *Client) Start(ctx context.Context, deliver func(context.Context, models.Message)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go c.run(runCtx, conn, deliver)
	go c.pingLoop(runCtx)
	return nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := dialURL(c.cfg.URL, c.cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("relay connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.write(frame{Type: frameSubscribe, Channel: c.cfg.Channel}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("relay subscribe: %w", err)
	}
	c.l.Info("relay connected", applogger.String("channel", c.cfg.Channel))
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn, deliver func(context.Context, models.Message)) {
	defer c.wg.Done()
	for {
		err := c.readLoop(ctx, conn, deliver)
		c.dropConn(conn)
		if ctx.Err() != nil {
			return
		}
		c.l.Warn("relay disconnected", applogger.Error(err))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.ReconnectDelay):
			}
			next, err := c.connect(ctx)
			if err == nil {
				conn = next
				break
			}
			c.l.Warn("relay reconnect failed", applogger.Error(err))
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, deliver func(context.Context, models.Message)) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("relay read: %w", err)
		}
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			c.l.Debug("relay frame ignored", applogger.Error(err))
			continue
		}
		switch f.Type {
		case frameMessage, frameEdit:
			msg, ok := f.message()
			if !ok {
				continue
			}
			deliver(ctx, msg)
		case frameHistory:
			c.resolve(f.RequestID, f.Messages)
		}
	}
}

func (f frame) message() (models.Message, bool) {
	if f.ID == "" {
		return models.Message{}, false
	}
	msg := models.Message{
		ID:     f.ID,
		Text:   f.Text,
		Edited: f.Type == frameEdit,
		Source: sourceName,
	}
	if f.Date != "" {
		if t, err := time.Parse(time.RFC3339, f.Date); err == nil {
			msg.SentAt = t.UTC()
		}
	}
	return msg, true
}

func (c *Client) pingLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
		}
	}
}

// Recent asks the relay for the channel's latest messages, newest first.
func (c *Client) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	id := uuid.NewString()
	reply := make(chan []frame, 1)

	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(frame{Type: frameHistory, RequestID: id, Channel: c.cfg.Channel, Limit: limit}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frames := <-reply:
		out := make([]models.Message, 0, len(frames))
		for _, f := range frames {
			f.Type = frameMessage
			if msg, ok := f.message(); ok {
				out = append(out, msg)
			}
		}
		return out, nil
	}
}

func (c *Client) resolve(id string, frames []frame) {
	c.mu.Lock()
	reply, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case reply <- frames:
	default:
	}
}

func (c *Client) write(f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

func (c *Client) dropConn(conn *websocket.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

// Close stops the connection loop and waits for it to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.wg.Wait()
	return nil
}

// dialURL adds the token to raw as a query parameter.
func dialURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
