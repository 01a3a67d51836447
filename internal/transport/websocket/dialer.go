// Package websocket implements the session transport over gorilla/websocket.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liveassist/internal/ports"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

// ErrNotOpen is returned by Send before the handshake completes or after Close.
var ErrNotOpen = errors.New("websocket is not open")

// Config controls the websocket connection to the analysis peer.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval enables keepalive pings. A peer that misses two intervals is treated as gone.
	PingInterval time.Duration
	Header       http.Header
}

// Dialer implements ports.Dialer.
type Dialer struct {
	url    string
	cfg    Config
	dialer *gws.Dialer
	logger *zap.SugaredLogger
}

func NewDialer(cfg Config, logger *zap.SugaredLogger) (*Dialer, error) {
	wsURL, err := buildURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Dialer{
		url: wsURL,
		cfg: cfg,
		dialer: &gws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.With("url", wsURL),
	}, nil
}

// URL is the resolved websocket endpoint.
func (d *Dialer) URL() string {
	return d.url
}

// Dial starts connecting in the background and returns immediately. The handler sees
// OnOpen once the handshake completes and exactly one OnClose in every case.
func (d *Dialer) Dial(ctx context.Context, handler ports.TransportHandler) (ports.Transport, error) {
	if handler == nil {
		return nil, errors.New("websocket: nil handler")
	}

	ctx, cancel := context.WithCancel(ctx)
	conn := &Conn{
		cfg:     d.cfg,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  d.logger,
	}
	go conn.run(ctx, d.dialer, d.url)
	return conn, nil
}

// Conn is one websocket transport.
type Conn struct {
	cfg     Config
	handler ports.TransportHandler
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	ws     *gws.Conn
	closed bool

	writeMu sync.Mutex
}

// Send writes one text message.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	ws, closed := c.ws, c.closed
	c.mu.Unlock()
	if closed || ws == nil {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := ws.WriteMessage(gws.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close starts tearing the connection down and returns without waiting for it.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws == nil {
		return nil
	}
	_ = ws.WriteControl(gws.CloseMessage,
		gws.FormatCloseMessage(gws.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout))
	return ws.Close()
}

// Done is closed after the handler has received OnClose.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) run(ctx context.Context, dialer *gws.Dialer, wsURL string) {
	defer close(c.done)
	defer c.handler.OnClose()

	ws, _, err := dialer.DialContext(ctx, wsURL, c.cfg.Header)
	if err != nil {
		if !c.isClosed() && ctx.Err() == nil {
			c.handler.OnError(fmt.Errorf("failed to connect to %s: %w", wsURL, err))
		}
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.mu.Unlock()

	c.logger.Debug("websocket open")
	c.handler.OnOpen()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.keepalive(ctx, ws, stop)
	}()

	c.readLoop(ws)

	close(stop)
	wg.Wait()
	_ = ws.Close()
	c.logger.Debug("websocket closed")
}

func (c *Conn) readLoop(ws *gws.Conn) {
	if c.cfg.PingInterval > 0 {
		wait := 2 * c.cfg.PingInterval
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if reportable(err) && !c.isClosed() {
				c.handler.OnError(fmt.Errorf("failed to read message: %w", err))
			}
			return
		}
		c.handler.OnMessage(payload)
	}
}

// keepalive pings the peer and closes the connection when ctx ends.
func (c *Conn) keepalive(ctx context.Context, ws *gws.Conn, stop <-chan struct{}) {
	var tick <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = c.Close()
			return
		case <-tick:
			if err := ws.WriteControl(gws.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debugw("ping failed", "error", err)
				_ = ws.Close()
				return
			}
		}
	}
}

func reportable(err error) bool {
	return !gws.IsCloseError(err,
		gws.CloseNormalClosure,
		gws.CloseGoingAway,
		gws.CloseNoStatusReceived,
	)
}

// buildURL accepts ws(s) URLs as well as http(s) base URLs.
func buildURL(raw string) (string, error) {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "", errors.New("websocket URL is not configured")
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid websocket URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("websocket URL %q has no host", raw)
	}
	return parsed.String(), nil
}
