package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"liveassist/internal/clock"
	"liveassist/internal/domain"
	"liveassist/internal/ports"
	"liveassist/internal/session"
)

const privacyOption = "privacy"

// Session is the part of session.Manager the assistant drives.
type Session interface {
	Connect() error
	Disconnect() error
	Start() error
	Stop() error
	SetOption(key string, value any) error
	OnEvent(l session.Listener) func()
	Status() domain.Status
}

// AssistantParams are used to construct an Assistant.
type AssistantParams struct {
	Session   Session
	Sink      ports.EventSink
	Clipboard ports.Clipboard
	Log       *AnalysisLog
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
}

// Assistant turns session events into UI updates and keeps the analysis history.
type Assistant struct {
	session Session
	sink    ports.EventSink
	copier  suggestionCopier
	log     *AnalysisLog
	clock   clock.Clock
	logger  *zap.SugaredLogger

	mu           sync.Mutex
	lastStatus   string
	silenceUntil time.Time

	unsubscribe func()
}

func NewAssistant(p AssistantParams) *Assistant {
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	if p.Log == nil {
		p.Log = NewAnalysisLog(p.Clock, 0)
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop().Sugar()
	}

	a := &Assistant{
		session: p.Session,
		sink:    p.Sink,
		copier:  newSuggestionCopier(p.Clipboard, p.Sink),
		log:     p.Log,
		clock:   p.Clock,
		logger:  p.Logger,
	}
	a.unsubscribe = p.Session.OnEvent(a.handle)
	return a
}

func (a *Assistant) Connect() error {
	return a.session.Connect()
}

// Reconnect drops the current transport, if any, and dials again with a fresh attempt budget.
func (a *Assistant) Reconnect() error {
	switch a.session.Status().State {
	case domain.StateConnected, domain.StateConnecting, domain.StateReconnecting:
		if err := a.session.Disconnect(); err != nil {
			return err
		}
	}
	return a.session.Connect()
}

func (a *Assistant) Disconnect() error {
	return a.session.Disconnect()
}

func (a *Assistant) StartRecording() error {
	return a.session.Start()
}

func (a *Assistant) StopRecording() error {
	return a.session.Stop()
}

func (a *Assistant) SetPrivacy(enabled bool) error {
	return a.session.SetOption(privacyOption, enabled)
}

// Status is the session status with the most recent peer status line and the silence hold.
func (a *Assistant) Status() domain.Status {
	status := a.session.Status()
	status.Message, status.Silence = a.peerStatus()
	return status
}

func (a *Assistant) peerStatus() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastStatus, a.clock.Now().Before(a.silenceUntil)
}

// SilenceActive reports whether the peer announced silence within the last domain.SilenceHold.
func (a *Assistant) SilenceActive() bool {
	_, silence := a.peerStatus()
	return silence
}

func (a *Assistant) Analyses() []domain.AnalysisEntry {
	return a.log.Entries()
}

// Latest is the most recent analysis, if any arrived.
func (a *Assistant) Latest() (domain.AnalysisEntry, bool) {
	return a.log.Latest()
}

// Transcript is the running transcript of the retained analyses.
func (a *Assistant) Transcript() string {
	return a.log.Transcript()
}

// CopySuggestion writes one suggestion of a logged analysis to the clipboard.
func (a *Assistant) CopySuggestion(ctx context.Context, seq int, index int) (string, error) {
	entry, ok := a.log.Lookup(seq)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrNoAnalysis, seq)
	}
	return a.copier.Copy(ctx, entry, index)
}

// Close stops listening to the session.
func (a *Assistant) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

func (a *Assistant) handle(e domain.Event) {
	switch e.Kind {
	case domain.EventStatus:
		if e.Source == domain.SourcePeer {
			a.mu.Lock()
			a.lastStatus = e.Text
			if e.Silence {
				a.silenceUntil = a.clock.Now().Add(domain.SilenceHold)
			}
			a.mu.Unlock()
			a.sink.PeerStatus(e.Text, e.Silence)
			return
		}
		status := a.session.Status()
		status.State = e.State
		status.Message = e.Text
		a.sink.ConnectionChanged(status)
	case domain.EventMessage:
		if e.Analysis == nil {
			return
		}
		entry := a.log.Add(*e.Analysis)
		a.logger.Debugw("analysis received", "seq", entry.Seq, "topics", len(entry.Result.Topics))
		a.sink.AnalysisReceived(entry)
	case domain.EventError:
		a.sink.SessionError(e.Code, e.Text)
	}
}
