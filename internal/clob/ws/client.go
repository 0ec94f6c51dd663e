package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Client is a reconnecting websocket connection to the CLOB market channel.
// Subscriptions are replayed after every reconnect; the state callback lets
// the engine pause detection while the feed is down.
type Client struct {
	url            string
	reconnectDelay time.Duration
	maxRetries     int
	pingInterval   time.Duration
	log            *zap.Logger
	onState        func(connected bool)

	mu       sync.Mutex
	conn     *websocket.Conn
	assetIDs []string
}

func New(url string, reconnectDelay time.Duration, maxRetries int, pingInterval time.Duration, log *zap.Logger) *Client {
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		maxRetries:     maxRetries,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// OnStateChange registers the connection state callback. Must be set before
// Run.
func (c *Client) OnStateChange(fn func(connected bool)) {
	c.onState = fn
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	return nil
}

// Subscribe replaces the tracked asset subscription and, when connected,
// sends it immediately. The market channel keys subscriptions by token id.
func (c *Client) Subscribe(ctx context.Context, assetIDs []string) error {
	c.mu.Lock()
	c.assetIDs = append([]string(nil), assetIDs...)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	return writeJSON(ctx, conn, subscribeMessage(assetIDs))
}

// Run reads messages until the context is canceled, reconnecting with a fixed
// delay up to maxRetries consecutive failures.
func (c *Client) Run(ctx context.Context, handler func(json.RawMessage)) error {
	failures := 0
	for {
		if err := c.ensureConnected(ctx); err != nil {
			failures++
			if c.maxRetries > 0 && failures > c.maxRetries {
				return err
			}
			c.notifyState(false)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.reconnectDelay):
			}
			continue
		}
		failures = 0
		c.notifyState(true)

		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()
		err := c.readLoop(ctx, handler)
		cancel()
		<-pingDone
		c.notifyState(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logReadLoopError(err)
		}
		c.resetConn()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	assetIDs := append([]string(nil), c.assetIDs...)
	c.mu.Unlock()
	if len(assetIDs) == 0 {
		return nil
	}
	return writeJSON(ctx, conn, subscribeMessage(assetIDs))
}

func (c *Client) readLoop(ctx context.Context, handler func(json.RawMessage)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Write(ctx, websocket.MessageText, []byte("PING")); err != nil {
				return
			}
		}
	}
}

func (c *Client) notifyState(connected bool) {
	if c.onState != nil {
		c.onState(connected)
	}
}

func (c *Client) logReadLoopError(err error) {
	if c.log == nil {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		c.log.Info("ws read loop ended", zap.Error(err))
		return
	}
	c.log.Warn("ws read loop ended", zap.Error(err))
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func subscribeMessage(assetIDs []string) map[string]any {
	return map[string]any{
		"type":       "market",
		"assets_ids": assetIDs,
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
