// Package peer is a scripted stand-in for the analysis service. It speaks the same websocket
// protocol as the real peer and is used for local development and end-to-end tests.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"liveassist/internal/domain"
	"liveassist/internal/protocol"
)

const (
	defaultAddr            = ":8000"
	defaultSegmentInterval = 3 * time.Second
	writeTimeout           = 5 * time.Second

	redactedTranscript = "[redacted]"
)

// Config controls the mock peer.
type Config struct {
	Addr            string
	SegmentInterval time.Duration
	// Script is replayed in order, one analysis per segment, wrapping around.
	Script []domain.Analysis
}

// Server is the mock analysis peer.
type Server struct {
	cfg      Config
	logger   *zap.SugaredLogger
	upgrader gws.Upgrader

	mu    sync.Mutex
	conns map[*peerConn]struct{}
	wg    sync.WaitGroup
}

func New(cfg Config, logger *zap.SugaredLogger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.SegmentInterval <= 0 {
		cfg.SegmentInterval = defaultSegmentInterval
	}
	if len(cfg.Script) == 0 {
		cfg.Script = DefaultScript()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: gws.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*peerConn]struct{}),
	}
}

// Handler serves "/", "/health" and the "/ws" endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]string{"message": "Analysis peer is running"})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then closes every open connection.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.logger.Infow("peer listening", "addr", listener.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		return multierr.Append(err, s.Close())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	err = multierr.Append(err, s.Close())
	if serr := <-serveErr; serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		err = multierr.Append(err, serr)
	}
	return err
}

// DropConnections closes every connection without a close handshake.
func (s *Server) DropConnections() {
	for _, c := range s.snapshot() {
		_ = c.ws.Close()
	}
}

// Connections is the number of open websocket connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close closes every connection and waits for their goroutines.
func (s *Server) Close() error {
	var err error
	for _, c := range s.snapshot() {
		_ = c.write(func(ws *gws.Conn) error {
			return ws.WriteControl(gws.CloseMessage,
				gws.FormatCloseMessage(gws.CloseGoingAway, "peer shutting down"),
				time.Now().Add(writeTimeout))
		})
		err = multierr.Append(err, c.ws.Close())
	}
	s.wg.Wait()
	return err
}

func (s *Server) snapshot() []*peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peerConn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("upgrade failed", "error", err)
		return
	}

	c := &peerConn{server: s, ws: ws}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debugw("client connected", "remote", r.RemoteAddr)
	go func() {
		defer s.wg.Done()
		c.serve()

		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		s.logger.Debugw("client disconnected", "remote", r.RemoteAddr)
	}()
}

// peerConn holds per-connection state. Nothing survives a reconnect.
type peerConn struct {
	server *Server
	ws     *gws.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	privacy  bool
	next     int
	stopLoop chan struct{}
	loopDone chan struct{}
}

func (c *peerConn) serve() {
	defer c.ws.Close()
	defer c.stopSegments()

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		cmd, err := protocol.DecodeCommand(payload)
		if err != nil {
			c.sendError("invalid command: " + err.Error())
			continue
		}
		c.handle(cmd)
	}
}

func (c *peerConn) handle(cmd domain.Command) {
	switch cmd.Kind {
	case domain.CommandStartRecording:
		c.sendStatus("Recording started")
		c.startSegments()
	case domain.CommandStopRecording:
		c.stopSegments()
		c.sendStatus("Recording stopped")
	case domain.CommandSetOption:
		if cmd.Key == "privacy" {
			enabled, ok := cmd.Value.(bool)
			if !ok {
				c.sendError("privacy expects a boolean")
				return
			}
			c.mu.Lock()
			c.privacy = enabled
			c.mu.Unlock()
			if enabled {
				c.sendStatus("Privacy mode enabled")
			} else {
				c.sendStatus("Privacy mode disabled")
			}
			return
		}
		c.sendStatus(fmt.Sprintf("Option %s set to %v", cmd.Key, cmd.Value))
	}
}

func (c *peerConn) startSegments() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopLoop != nil {
		return
	}
	c.stopLoop = make(chan struct{})
	c.loopDone = make(chan struct{})
	go c.segmentLoop(c.stopLoop, c.loopDone)
}

func (c *peerConn) stopSegments() {
	c.mu.Lock()
	stop, done := c.stopLoop, c.loopDone
	c.stopLoop, c.loopDone = nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (c *peerConn) segmentLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.server.cfg.SegmentInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.sendStatus("Silence detected, processing segment")
			c.sendAnalysis(c.nextSegment())
		}
	}
}

func (c *peerConn) nextSegment() domain.Analysis {
	c.mu.Lock()
	defer c.mu.Unlock()

	script := c.server.cfg.Script
	segment := script[c.next%len(script)]
	c.next++
	if c.privacy {
		segment.Transcript = redactedTranscript
	}
	return segment
}

func (c *peerConn) sendStatus(text string) {
	payload, err := protocol.EncodeStatus(text)
	if err == nil {
		c.send(payload)
	}
}

func (c *peerConn) sendError(text string) {
	payload, err := protocol.EncodeError(text)
	if err == nil {
		c.send(payload)
	}
}

func (c *peerConn) sendAnalysis(analysis domain.Analysis) {
	payload, err := protocol.EncodeAnalysis(analysis)
	if err != nil {
		c.server.logger.Warnw("failed to encode analysis", "error", err)
		return
	}
	c.send(payload)
}

func (c *peerConn) send(payload []byte) {
	err := c.write(func(ws *gws.Conn) error {
		if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
		return ws.WriteMessage(gws.TextMessage, payload)
	})
	if err != nil {
		c.server.logger.Debugw("write failed", "error", err)
	}
}

func (c *peerConn) write(fn func(*gws.Conn) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return fn(c.ws)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// DefaultScript is the transcript sequence replayed when no script is configured.
func DefaultScript() []domain.Analysis {
	return []domain.Analysis{
		{
			Transcript: "Thanks for joining. Today we want to review the launch timeline.",
			Result: domain.AnalysisResult{
				Topics:      []string{"launch timeline"},
				Suggestions: []string{"Confirm the owner for each milestone"},
				Insights:    []string{"The meeting goal is a timeline review"},
			},
		},
		{
			Transcript: "The design review slipped a week because of the new accessibility requirements.",
			Result: domain.AnalysisResult{
				Topics:      []string{"design review", "accessibility"},
				Suggestions: []string{"Ask whether the launch date moves with the review"},
				Insights:    []string{"Accessibility work is on the critical path"},
			},
		},
		{
			Transcript: "Let's follow up with the support team before we commit to a date.",
			Result: domain.AnalysisResult{
				Topics:      []string{"support readiness"},
				Suggestions: []string{"Schedule a follow-up with support", "Summarize open risks"},
				Insights:    []string{"No date has been committed yet"},
			},
		},
	}
}
