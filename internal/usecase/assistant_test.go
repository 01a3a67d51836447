package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"liveassist/internal/clock"
	"liveassist/internal/domain"
	"liveassist/internal/session"
)

func TestAssistantRoutesEvents(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	events := &fakeEventSink{}
	clk := clock.NewManual(time.Unix(0, 0))
	assistant := NewAssistant(AssistantParams{Session: sess, Sink: events, Clock: clk})
	defer assistant.Close()

	sess.emit(domain.Event{Kind: domain.EventStatus, Source: domain.SourceLocal, State: domain.StateConnected, Text: "Connected to server"})
	sess.emit(domain.Event{Kind: domain.EventStatus, Source: domain.SourcePeer, State: domain.StateConnected, Text: "Silence detected, processing segment", Silence: true})
	sess.emit(domain.Event{Kind: domain.EventMessage, Source: domain.SourcePeer, Analysis: &domain.Analysis{
		Transcript: "hi",
		Result:     domain.AnalysisResult{Topics: []string{"a"}, Suggestions: []string{"say hello"}},
	}})
	sess.emit(domain.Event{Kind: domain.EventError, Code: domain.ErrorCodePeer, Text: "model unavailable"})

	states := events.snapshotStates()
	if len(states) != 1 || states[0].State != domain.StateConnected || states[0].Message != "Connected to server" {
		t.Fatalf("unexpected connection updates: %+v", states)
	}
	if len(events.peer) != 1 || !events.peer[0].silence {
		t.Fatalf("unexpected peer statuses: %+v", events.peer)
	}
	if len(events.analyses) != 1 || events.analyses[0].Seq != 1 || events.analyses[0].Transcript != "hi" {
		t.Fatalf("unexpected analyses: %+v", events.analyses)
	}
	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodePeer {
		t.Fatalf("unexpected errors: %+v", errs)
	}

	if got := assistant.Status().Message; got != "Silence detected, processing segment" {
		t.Fatalf("unexpected status message: %q", got)
	}
	if len(assistant.Analyses()) != 1 {
		t.Fatalf("expected analysis in history")
	}

	sess.emit(domain.Event{Kind: domain.EventMessage, Source: domain.SourcePeer, Analysis: &domain.Analysis{Transcript: "there"}})
	latest, ok := assistant.Latest()
	if !ok || latest.Seq != 2 || latest.Transcript != "there" {
		t.Fatalf("unexpected latest analysis: %+v", latest)
	}
	if got := assistant.Transcript(); got != "hi there" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestAssistantSilenceIndicatorExpires(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	clk := clock.NewManual(time.Unix(0, 0))
	assistant := NewAssistant(AssistantParams{Session: sess, Sink: &fakeEventSink{}, Clock: clk})

	if assistant.SilenceActive() {
		t.Fatalf("expected no silence before any status")
	}
	sess.emit(domain.Event{Kind: domain.EventStatus, Source: domain.SourcePeer, Text: "silence detected", Silence: true})
	if !assistant.SilenceActive() {
		t.Fatalf("expected silence indicator")
	}
	clk.Advance(domain.SilenceHold - time.Millisecond)
	if status := assistant.Status(); !assistant.SilenceActive() || !status.Silence {
		t.Fatalf("expected silence indicator to hold: %+v", status)
	}
	clk.Advance(time.Millisecond)
	if status := assistant.Status(); assistant.SilenceActive() || status.Silence {
		t.Fatalf("expected silence indicator to clear: %+v", status)
	}
	if status := assistant.Status(); status.Message != "silence detected" {
		t.Fatalf("expected last peer status to outlive the hold, got %q", status.Message)
	}
}

func TestAssistantCommands(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	assistant := NewAssistant(AssistantParams{Session: sess, Sink: &fakeEventSink{}})

	if err := assistant.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := assistant.SetPrivacy(false); err != nil {
		t.Fatalf("set privacy failed: %v", err)
	}
	if err := assistant.StartRecording(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := assistant.StopRecording(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	want := []string{"connect", "set privacy=false", "start", "stop"}
	if got := sess.snapshotCalls(); !equalStrings(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
}

func TestAssistantReconnect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state domain.ConnectionState
		want  []string
	}{
		{state: domain.StateConnected, want: []string{"disconnect", "connect"}},
		{state: domain.StateReconnecting, want: []string{"disconnect", "connect"}},
		{state: domain.StateFailed, want: []string{"connect"}},
		{state: domain.StateDisconnected, want: []string{"connect"}},
	}

	for _, tt := range tests {
		sess := newFakeSession()
		sess.state = tt.state
		assistant := NewAssistant(AssistantParams{Session: sess, Sink: &fakeEventSink{}})
		if err := assistant.Reconnect(); err != nil {
			t.Fatalf("%s: reconnect failed: %v", tt.state, err)
		}
		if got := sess.snapshotCalls(); !equalStrings(got, tt.want) {
			t.Fatalf("%s: expected calls %v, got %v", tt.state, tt.want, got)
		}
	}
}

func TestAssistantCopySuggestion(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	events := &fakeEventSink{}
	clipboard := &fakeClipboard{}
	assistant := NewAssistant(AssistantParams{Session: sess, Sink: events, Clipboard: clipboard})

	sess.emit(domain.Event{Kind: domain.EventMessage, Analysis: &domain.Analysis{
		Result: domain.AnalysisResult{Suggestions: []string{" ask about budget "}},
	}})

	text, err := assistant.CopySuggestion(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if text != "ask about budget" || clipboard.lastText != "ask about budget" {
		t.Fatalf("unexpected copied text: %q / %q", text, clipboard.lastText)
	}

	if _, err := assistant.CopySuggestion(context.Background(), 7, 0); !errors.Is(err, ErrNoAnalysis) {
		t.Fatalf("expected ErrNoAnalysis, got %v", err)
	}
	if _, err := assistant.CopySuggestion(context.Background(), 1, 3); !errors.Is(err, ErrNoSuggestion) {
		t.Fatalf("expected ErrNoSuggestion, got %v", err)
	}

	clipboard.err = errors.New("clipboard down")
	if _, err := assistant.CopySuggestion(context.Background(), 1, 0); err == nil {
		t.Fatalf("expected clipboard error")
	}
	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeClipboard {
		t.Fatalf("expected clipboard error event, got %+v", errs)
	}
}

func TestAssistantCloseUnsubscribes(t *testing.T) {
	t.Parallel()

	sess := newFakeSession()
	events := &fakeEventSink{}
	assistant := NewAssistant(AssistantParams{Session: sess, Sink: events})
	assistant.Close()

	sess.emit(domain.Event{Kind: domain.EventError, Code: domain.ErrorCodeTransport, Text: "late"})
	if errs := events.snapshotErrors(); len(errs) != 0 {
		t.Fatalf("expected no events after close, got %+v", errs)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type fakeSession struct {
	mu        sync.Mutex
	state     domain.ConnectionState
	calls     []string
	listeners map[int]session.Listener
	nextID    int
}

func newFakeSession() *fakeSession {
	return &fakeSession{state: domain.StateDisconnected, listeners: make(map[int]session.Listener)}
}

func (f *fakeSession) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeSession) Connect() error    { return f.record("connect") }
func (f *fakeSession) Disconnect() error { return f.record("disconnect") }
func (f *fakeSession) Start() error      { return f.record("start") }
func (f *fakeSession) Stop() error       { return f.record("stop") }

func (f *fakeSession) SetOption(key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("set %s=%v", key, value))
	return nil
}

func (f *fakeSession) OnEvent(l session.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeSession) Status() domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Status{State: f.state, MaxAttempts: 5}
}

func (f *fakeSession) snapshotCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSession) emit(e domain.Event) {
	f.mu.Lock()
	listeners := make([]session.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()
	for _, l := range listeners {
		l(e)
	}
}

type fakeClipboard struct {
	lastText string
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.lastText = text
	return f.err
}

type peerStatus struct {
	text    string
	silence bool
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu sync.Mutex

	states   []domain.Status
	peer     []peerStatus
	analyses []domain.AnalysisEntry
	errors   []errEvent
}

func (f *fakeEventSink) ConnectionChanged(status domain.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, status)
}

func (f *fakeEventSink) PeerStatus(text string, silence bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peer = append(f.peer, peerStatus{text: text, silence: silence})
}

func (f *fakeEventSink) AnalysisReceived(entry domain.AnalysisEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses = append(f.analyses, entry)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Status(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}
