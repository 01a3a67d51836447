// Package session owns the reconnecting client session to the analysis peer.
//
// A Manager drives one logical session through any number of physical transports. It
// reconnects with bounded linear backoff, re-announces options after every successful open,
// only transmits commands while connected, and reports everything to its listeners as
// status, message and error events.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"liveassist/internal/clock"
	"liveassist/internal/domain"
	"liveassist/internal/ports"
	"liveassist/internal/protocol"
)

// Params are used to construct a Manager.
type Params struct {
	Dialer ports.Dialer
	Clock  clock.Clock
	Logger *zap.SugaredLogger
	Stats  tally.Scope
	Config Config
}

// Manager is the session state machine. All methods are safe for concurrent use.
type Manager struct {
	id     uuid.UUID
	dialer ports.Dialer
	clock  clock.Clock
	logger *zap.SugaredLogger
	stats  tally.Scope
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc

	events dispatcher

	mu         sync.Mutex
	state      domain.ConnectionState
	attempts   int
	recording  bool
	options    optionSet
	generation uint64
	transport  ports.Transport
	retry      clock.Timer
	disposed   bool
}

// New creates a disconnected Manager. Call Connect to open the first transport.
func New(p Params) *Manager {
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop().Sugar()
	}
	if p.Stats == nil {
		p.Stats = tally.NoopScope
	}

	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.Nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		id:      id,
		dialer:  p.Dialer,
		clock:   p.Clock,
		logger:  p.Logger.With("session", id.String()),
		stats:   p.Stats,
		cfg:     p.Config.withDefaults(),
		ctx:     ctx,
		cancel:  cancel,
		state:   domain.StateDisconnected,
		options: newOptionSet(),
	}
}

// ID identifies the session in logs.
func (m *Manager) ID() uuid.UUID {
	return m.id
}

// OnEvent registers a listener. Listeners are called in registration order. The returned
// function removes the listener.
func (m *Manager) OnEvent(l Listener) func() {
	return m.events.subscribe(l)
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Recording reports the local recording flag.
func (m *Manager) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// Status returns a snapshot for renderers.
func (m *Manager) Status() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.Status{
		State:       m.state,
		Recording:   m.recording,
		Attempts:    m.attempts,
		MaxAttempts: m.cfg.MaxAttempts,
		Options:     m.options.snapshot(),
	}
}

// Connect opens a transport when the session is disconnected, waiting to reconnect, or
// failed. A failed session starts over with a fresh attempt budget.
func (m *Manager) Connect() error {
	m.mu.Lock()
	err := m.connectLocked(true)
	m.mu.Unlock()
	m.events.flush()
	return err
}

// Disconnect closes the transport on the caller's behalf. No retry is scheduled.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	t := m.detachLocked()
	m.attempts = 0
	if m.state != domain.StateDisconnected {
		m.setStateLocked(domain.StateDisconnected, "Disconnected from server")
	}
	m.mu.Unlock()
	m.events.flush()

	if t != nil {
		return t.Close()
	}
	return nil
}

// Dispose permanently shuts the session down. It is idempotent and emits no events.
func (m *Manager) Dispose() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	t := m.detachLocked()
	m.state = domain.StateDisconnected
	m.recording = false
	m.events.close()
	m.cancel()
	m.stats.Gauge("connected").Update(0)
	m.mu.Unlock()

	m.logger.Debug("session disposed")
	if t != nil {
		return t.Close()
	}
	return nil
}

// Start asks the peer to begin recording.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.events.flush()
	defer m.mu.Unlock()

	if m.disposed {
		return ErrDisposed
	}
	if m.state != domain.StateConnected {
		return m.rejectLocked(domain.CommandStartRecording)
	}
	if err := m.sendLocked(domain.StartRecording()); err != nil {
		return err
	}
	m.recording = true
	return nil
}

// Stop clears the recording flag and, when connected, asks the peer to stop.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.events.flush()
	defer m.mu.Unlock()

	m.recording = false
	if m.disposed {
		return ErrDisposed
	}
	if m.state != domain.StateConnected {
		return nil
	}
	return m.sendLocked(domain.StopRecording())
}

// SetOption records an option locally and transmits it when connected. Options are
// re-sent after every successful (re)connect.
func (m *Manager) SetOption(key string, value any) error {
	key, err := validateOption(key, value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.events.flush()
	defer m.mu.Unlock()

	if m.disposed {
		return ErrDisposed
	}
	m.options.set(key, value)
	if m.state != domain.StateConnected {
		m.logger.Debugw("option stored until next connect", "key", key)
		return nil
	}
	return m.sendLocked(domain.SetOption(key, value))
}

func (m *Manager) connectLocked(manual bool) error {
	if m.disposed {
		return ErrDisposed
	}

	switch m.state {
	case domain.StateConnecting, domain.StateConnected:
		return nil
	case domain.StateFailed:
		m.attempts = 0
	}

	m.stopRetryLocked()
	m.generation++
	h := &transportHandler{m: m, generation: m.generation}

	m.stats.Counter("connect_attempts").Inc(1)
	m.setStateLocked(domain.StateConnecting, "Connecting to server")

	t, err := m.dialer.Dial(m.ctx, h)
	if err != nil {
		m.logger.Warnw("dial failed", "error", err)
		m.emitErrorLocked(domain.ErrorCodeTransport, &TransportError{Err: err})
		m.dropLocked()
		if manual {
			return &TransportError{Err: err}
		}
		return nil
	}

	h.transport = t
	m.transport = t
	return nil
}

// dropLocked applies the reconnect policy after an unexpected close.
func (m *Manager) dropLocked() {
	m.transport = nil
	m.attempts++
	m.stats.Counter("drops").Inc(1)
	m.stats.Gauge("connected").Update(0)

	if m.attempts >= m.cfg.MaxAttempts {
		m.logger.Warnw("giving up on reconnect", "attempts", m.attempts)
		m.setStateLocked(domain.StateFailed, "Unable to reconnect to server")
		m.emitErrorLocked(domain.ErrorCodeReconnectExhausted, &ReconnectExhaustedError{Attempts: m.attempts})
		return
	}

	delay := m.cfg.retryDelay(m.attempts)
	generation := m.generation
	m.setStateLocked(domain.StateReconnecting,
		fmt.Sprintf("Reconnecting in %s (attempt %d/%d)", delay, m.attempts, m.cfg.MaxAttempts))
	m.logger.Infow("reconnect scheduled", "attempt", m.attempts, "delay", delay)
	m.retry = m.clock.AfterFunc(delay, func() {
		m.onRetry(generation)
	})
}

func (m *Manager) onRetry(generation uint64) {
	m.mu.Lock()
	if m.disposed || m.generation != generation || m.state != domain.StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	_ = m.connectLocked(false)
	m.mu.Unlock()
	m.events.flush()
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// detachLocked invalidates the current transport and timer. The caller closes the
// returned transport after releasing the lock.
func (m *Manager) detachLocked() ports.Transport {
	m.stopRetryLocked()
	m.generation++
	t := m.transport
	m.transport = nil
	return t
}

// renegotiateLocked re-announces local state the peer lost with the previous transport.
// An option that cannot be encoded is reported and skipped; a failed send ends the pass.
func (m *Manager) renegotiateLocked() {
	var err error
	m.options.each(func(key string, value any) bool {
		err = m.sendLocked(domain.SetOption(key, value))
		if errors.Is(err, ErrInvalidOption) {
			err = nil
		}
		return err == nil
	})
	if err == nil && m.cfg.ResumeRecording && m.recording {
		_ = m.sendLocked(domain.StartRecording())
	}
}

func (m *Manager) sendLocked(cmd domain.Command) error {
	payload, err := protocol.EncodeCommand(cmd)
	if err != nil {
		encodeErr := fmt.Errorf("%w: %s: %v", ErrInvalidOption, cmd.Key, err)
		m.emitErrorLocked(domain.ErrorCodeInvalidOption, encodeErr)
		return encodeErr
	}
	if m.transport == nil {
		return m.rejectLocked(cmd.Kind)
	}
	if err := m.transport.Send(payload); err != nil {
		sendErr := &TransportError{Err: err}
		m.emitErrorLocked(domain.ErrorCodeTransport, sendErr)
		return sendErr
	}
	m.stats.Counter("commands_sent").Inc(1)
	m.logger.Debugw("command sent", "command", string(cmd.Kind), "key", cmd.Key)
	return nil
}

func (m *Manager) rejectLocked(kind domain.CommandKind) error {
	m.stats.Counter("commands_rejected").Inc(1)
	err := fmt.Errorf("%s: %w", kind, ErrNotConnected)
	m.emitErrorLocked(domain.ErrorCodeNotConnected, err)
	return err
}

func (m *Manager) setStateLocked(state domain.ConnectionState, text string) {
	if m.state != state {
		m.logger.Debugw("state changed", "from", string(m.state), "to", string(state))
	}
	m.state = state
	m.events.enqueue(domain.Event{
		Kind:   domain.EventStatus,
		State:  state,
		Source: domain.SourceLocal,
		Text:   text,
	})
}

func (m *Manager) emitErrorLocked(code domain.ErrorCode, err error) {
	m.events.enqueue(domain.Event{
		Kind:   domain.EventError,
		State:  m.state,
		Source: domain.SourceLocal,
		Text:   err.Error(),
		Code:   code,
		Err:    err,
	})
}

func (m *Manager) handleInboundLocked(msg domain.Inbound) {
	switch msg.Kind {
	case domain.InboundStatus:
		m.events.enqueue(domain.Event{
			Kind:    domain.EventStatus,
			State:   m.state,
			Source:  domain.SourcePeer,
			Text:    msg.Text,
			Silence: strings.Contains(strings.ToLower(msg.Text), "silence"),
		})
	case domain.InboundAnalysis:
		m.events.enqueue(domain.Event{
			Kind:     domain.EventMessage,
			State:    m.state,
			Source:   domain.SourcePeer,
			Text:     msg.Analysis.Transcript,
			Analysis: msg.Analysis,
		})
	case domain.InboundError:
		err := &PeerError{Message: msg.Text}
		m.events.enqueue(domain.Event{
			Kind:   domain.EventError,
			State:  m.state,
			Source: domain.SourcePeer,
			Text:   msg.Text,
			Code:   domain.ErrorCodePeer,
			Err:    err,
		})
	}
}

// transportHandler binds the callbacks of one transport to the generation that dialed it.
type transportHandler struct {
	m          *Manager
	generation uint64
	transport  ports.Transport
}

// currentLocked reports whether h still owns the session.
func (h *transportHandler) currentLocked() bool {
	return !h.m.disposed && h.m.generation == h.generation
}

func (h *transportHandler) OnOpen() {
	m := h.m
	m.mu.Lock()
	if !h.currentLocked() {
		stale := h.transport
		m.mu.Unlock()
		if stale != nil {
			_ = stale.Close()
		}
		return
	}

	m.attempts = 0
	m.stats.Gauge("connected").Update(1)
	m.setStateLocked(domain.StateConnected, "Connected to server")
	m.renegotiateLocked()
	m.mu.Unlock()
	m.events.flush()
}

func (h *transportHandler) OnMessage(payload []byte) {
	msg, decodeErr := protocol.DecodeInbound(payload)

	m := h.m
	m.mu.Lock()
	if !h.currentLocked() {
		m.mu.Unlock()
		return
	}
	if decodeErr != nil {
		m.stats.Counter("decode_errors").Inc(1)
		m.logger.Debugw("discarding undecodable message", "error", decodeErr)
		m.emitErrorLocked(domain.ErrorCodeProtocolDecode, decodeErr)
	} else {
		m.handleInboundLocked(msg)
	}
	m.mu.Unlock()
	m.events.flush()
}

func (h *transportHandler) OnError(err error) {
	m := h.m
	m.mu.Lock()
	if !h.currentLocked() {
		m.mu.Unlock()
		return
	}
	m.logger.Debugw("transport error", "error", err)
	m.emitErrorLocked(domain.ErrorCodeTransport, &TransportError{Err: err})
	m.mu.Unlock()
	m.events.flush()
}

func (h *transportHandler) OnClose() {
	m := h.m
	m.mu.Lock()
	if !h.currentLocked() {
		m.mu.Unlock()
		return
	}
	switch m.state {
	case domain.StateConnected, domain.StateConnecting:
		m.logger.Infow("transport closed unexpectedly", "state", string(m.state))
		m.dropLocked()
	default:
		m.transport = nil
	}
	m.mu.Unlock()
	m.events.flush()
}
