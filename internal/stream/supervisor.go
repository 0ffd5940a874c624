// Package stream owns websocket feed connections: dialing, liveness probing,
// and reconnection with capped exponential backoff.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/coachpo/zebpay/internal/observability"
)

const (
	defaultMessageTimeout = 30 * time.Second
	defaultPingTimeout    = 10 * time.Second
	defaultReconnectCap   = 30 * time.Second
	writeTimeout          = 5 * time.Second
	readLimit             = 2 * 1024 * 1024
)

// Conn is the subset of websocket connection behavior the supervisor needs.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens a connection to the feed URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// Handler processes one raw feed frame. Returning an error is fatal for the
// connection: the supervisor drops it and reconnects. Recoverable problems
// must be absorbed by the handler itself.
type Handler func(ctx context.Context, frame []byte, receivedAt time.Time) error

// Config parameterizes a supervisor.
type Config struct {
	Name string
	URL  string

	// MessageTimeout is the read inactivity window after which the
	// connection liveness is probed with a ping.
	MessageTimeout time.Duration
	// PingTimeout bounds the liveness probe.
	PingTimeout time.Duration
	// ReconnectCap caps the exponential reconnect backoff.
	ReconnectCap time.Duration

	// Subscriptions returns the frames written after every (re)connect.
	Subscriptions func() [][]byte

	// OnReconnect, when set, is invoked each time an established connection
	// is lost and a redial begins.
	OnReconnect func()

	Handler Handler
	Dialer  Dialer
}

// Status is a point-in-time view of the supervised connection.
type Status struct {
	Name          string
	Connected     bool
	LastMessageAt time.Time
	Reconnects    uint64
}

// Supervisor keeps one feed connection alive. On any fatal condition (dial
// failure, read error, ping timeout, handler error) it tears the connection
// down and redials with backoff; context cancellation always wins.
type Supervisor struct {
	cfg Config

	mu            sync.Mutex
	connected     bool
	lastMessageAt time.Time
	reconnects    uint64
}

// New validates cfg, fills defaults and returns a stopped supervisor.
func New(cfg Config) (*Supervisor, error) {
	if cfg.URL == "" {
		return nil, errors.New("stream: feed URL required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("stream: handler required")
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = defaultMessageTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	if cfg.ReconnectCap <= 0 {
		cfg.ReconnectCap = defaultReconnectCap
	}
	if cfg.Dialer == nil {
		cfg.Dialer = dialWebsocket
	}
	if cfg.Name == "" {
		cfg.Name = cfg.URL
	}
	return &Supervisor{cfg: cfg}, nil
}

// Run blocks until ctx is cancelled, maintaining the connection the whole
// time. It only ever returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = s.cfg.ReconnectCap

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := s.cfg.Dialer(ctx, s.cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.Log().Warn("feed dial failed",
				observability.F("feed", s.cfg.Name),
				observability.F("error", err.Error()))
			if !s.sleep(ctx, nextDelay(policy, s.cfg.ReconnectCap)) {
				return ctx.Err()
			}
			continue
		}

		s.setConnected(true)
		policy.Reset()
		observability.Log().Info("feed connected", observability.F("feed", s.cfg.Name))

		err = s.serve(ctx, conn)
		_ = conn.Close()
		s.setConnected(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.mu.Lock()
		s.reconnects++
		s.mu.Unlock()
		if s.cfg.OnReconnect != nil {
			s.cfg.OnReconnect()
		}
		observability.Log().Warn("feed connection lost",
			observability.F("feed", s.cfg.Name),
			observability.F("error", errString(err)))
		if !s.sleep(ctx, nextDelay(policy, s.cfg.ReconnectCap)) {
			return ctx.Err()
		}
	}
}

type readResult struct {
	frame []byte
	err   error
}

// serve subscribes and reads frames until the connection dies. Reads use the
// long-lived ctx and stay pending the whole time; inactivity is tracked with a
// timer instead of per-read deadlines, because cancelling a read context
// closes the underlying websocket. Keeping a read outstanding also lets the
// liveness ping work: the pong is consumed by the pending read.
func (s *Supervisor) serve(ctx context.Context, conn Conn) error {
	if s.cfg.Subscriptions != nil {
		for _, frame := range s.cfg.Subscriptions() {
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, frame)
			cancel()
			if err != nil {
				return fmt.Errorf("write subscription: %w", err)
			}
		}
	}

	reads := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			frame, err := conn.Read(ctx)
			select {
			case reads <- readResult{frame: frame, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(s.cfg.MessageTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-reads:
			if res.err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("read frame: %w", res.err)
			}
			now := time.Now().UTC()
			s.mu.Lock()
			s.lastMessageAt = now
			s.mu.Unlock()
			if err := s.cfg.Handler(ctx, res.frame, now); err != nil {
				return fmt.Errorf("handle frame: %w", err)
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.MessageTimeout)
		case <-idle.C:
			if err := s.ping(ctx, conn); err != nil {
				return fmt.Errorf("liveness probe: %w", err)
			}
			idle.Reset(s.cfg.MessageTimeout)
		}
	}
}

func (s *Supervisor) ping(ctx context.Context, conn Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.PingTimeout)
	defer cancel()
	return conn.Ping(pingCtx)
}

// Status reports the current connection state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Name:          s.cfg.Name,
		Connected:     s.connected,
		LastMessageAt: s.lastMessageAt,
		Reconnects:    s.reconnects,
	}
}

func (s *Supervisor) setConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextDelay(policy *backoff.ExponentialBackOff, limit time.Duration) time.Duration {
	delay := policy.NextBackOff()
	if delay == backoff.Stop || delay > limit {
		delay = limit
	}
	return delay
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type wsConn struct {
	conn *websocket.Conn
}

func dialWebsocket(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(readLimit)
	return &wsConn{conn: conn}, nil
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
