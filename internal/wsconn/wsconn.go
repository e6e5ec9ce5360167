// Package wsconn provides a WebSocket client with reconnection on top of
// github.com/coder/websocket.
package wsconn

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL  string
	Name string

	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// ReadTimeout bounds the silence between two frames. Zero waits forever.
	ReadTimeout time.Duration

	PingInterval   time.Duration // 0 disables pings
	MaxMessageSize int64

	Reconnect      bool
	MaxReconnects  uint // 0 = unlimited
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1 << 20,
		Reconnect:      true,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// MessageHandler receives every inbound frame.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler observes state transitions. err is set when the transition was
// caused by a failure.
type StateHandler func(state State, err error)

// Client is a WebSocket client that redials on read failures.
type Client struct {
	cfg Config

	mu        sync.RWMutex
	conn      *websocket.Conn
	state     State
	onMessage MessageHandler
	onState   StateHandler

	writeMu sync.Mutex

	life   context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New creates a client. It does not dial.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, apperror.Validation("wsconn: url is required")
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	life, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		state:  StateDisconnected,
		life:   life,
		cancel: cancel,
	}, nil
}

// OnMessage registers the inbound frame handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

// OnStateChange registers the state observer.
func (c *Client) OnStateChange(h StateHandler) {
	c.mu.Lock()
	c.onState = h
	c.mu.Unlock()
}

// Connect dials once.
func (c *Client) Connect(ctx context.Context) error {
	if c.life.Err() != nil {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name))
	}
	c.setState(StateConnecting, nil)

	dialCtx := ctx
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	if err != nil {
		c.setState(StateDisconnected, err)
		return apperror.External(apperror.CodeServiceUnavailable, "dial "+c.cfg.Name, err)
	}
	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}

	c.mu.Lock()
	if c.life.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name))
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected, nil)

	go c.readLoop(conn)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(conn)
	}
	return nil
}

// ConnectWithRetry dials with exponential backoff until it succeeds, the
// context ends or MaxReconnects attempts are spent.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff

	opts := []backoff.RetryOption{backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0)}
	if c.cfg.MaxReconnects > 0 {
		opts = append(opts, backoff.WithMaxTries(c.cfg.MaxReconnects))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if c.life.Err() != nil {
			return struct{}{}, backoff.Permanent(apperror.New(apperror.CodeWebSocketClosed))
		}
		return struct{}{}, c.Connect(ctx)
	}, opts...)
	return err
}

// Send writes a text frame.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if conn == nil || state != StateConnected {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext(c.cfg.Name+": not connected"))
	}

	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}

	c.writeMu.Lock()
	err := conn.Write(ctx, websocket.MessageText, msg)
	c.writeMu.Unlock()
	if err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err), apperror.WithContext(c.cfg.Name))
	}
	return nil
}

// SendJSON marshals v and sends it as a text frame.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err))
	}
	return c.Send(ctx, data)
}

// IsConnected reports whether the socket is usable.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close stops reconnection and closes the socket. It is idempotent; close
// handshake failures on an already broken socket are not reported.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "closing")
		}
		c.setState(StateClosed, nil)
	})
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		ctx := c.life
		var cancel context.CancelFunc = func() {}
		if c.cfg.ReadTimeout > 0 {
			ctx, cancel = context.WithTimeout(c.life, c.cfg.ReadTimeout)
		}
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			c.dropped(conn, err)
			return
		}

		c.mu.RLock()
		h := c.onMessage
		c.mu.RUnlock()
		if h != nil {
			h(c.life, data)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.life.Done():
			return
		case <-t.C:
			c.mu.RLock()
			current := c.conn
			c.mu.RUnlock()
			if current != conn {
				return
			}
			ctx, cancel := context.WithTimeout(c.life, c.cfg.PingInterval)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				_ = conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

// dropped handles a failed read on conn. Only the current connection may
// trigger a reconnect.
func (c *Client) dropped(conn *websocket.Conn, err error) {
	if c.life.Err() != nil {
		return
	}

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	_ = conn.Close(websocket.StatusInternalError, "read failed")
	c.setState(StateDisconnected, err)

	if !c.cfg.Reconnect {
		return
	}
	c.setState(StateReconnecting, err)
	go func() {
		// The first redial waits one backoff interval.
		select {
		case <-c.life.Done():
			return
		case <-time.After(c.cfg.InitialBackoff):
		}
		_ = c.ConnectWithRetry(c.life)
	}()
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	h := c.onState
	c.mu.Unlock()

	if h != nil {
		h(s, err)
	}
}
