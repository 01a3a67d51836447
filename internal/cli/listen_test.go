package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"liveassist/internal/domain"
	"liveassist/internal/output"
	"liveassist/internal/session"
)

type fakeController struct {
	calls    []string
	state    domain.ConnectionState
	startErr error
	entries  []domain.AnalysisEntry
}

func (f *fakeController) StartRecording() error {
	f.calls = append(f.calls, "start")
	return f.startErr
}

func (f *fakeController) StopRecording() error {
	f.calls = append(f.calls, "stop")
	return nil
}

func (f *fakeController) SetPrivacy(enabled bool) error {
	if enabled {
		f.calls = append(f.calls, "privacy:on")
	} else {
		f.calls = append(f.calls, "privacy:off")
	}
	return nil
}

func (f *fakeController) Reconnect() error {
	f.calls = append(f.calls, "reconnect")
	return nil
}

func (f *fakeController) Status() domain.Status {
	return domain.Status{State: f.state, MaxAttempts: 5}
}

func (f *fakeController) Analyses() []domain.AnalysisEntry {
	return f.entries
}

func (f *fakeController) Latest() (domain.AnalysisEntry, bool) {
	if len(f.entries) == 0 {
		return domain.AnalysisEntry{}, false
	}
	return f.entries[len(f.entries)-1], true
}

func (f *fakeController) Transcript() string {
	parts := make([]string, 0, len(f.entries))
	for _, entry := range f.entries {
		parts = append(parts, entry.Transcript)
	}
	return strings.Join(parts, " ")
}

func TestRunCommandDispatch(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		quit    bool
		wantErr bool
	}{
		{line: "start", want: []string{"start"}},
		{line: "  STOP ", want: []string{"stop"}},
		{line: "privacy on", want: []string{"privacy:on"}},
		{line: "privacy off", want: []string{"privacy:off"}},
		{line: "privacy", wantErr: true},
		{line: "privacy maybe", wantErr: true},
		{line: "reconnect", want: []string{"reconnect"}},
		{line: "", want: nil},
		{line: "quit", quit: true},
		{line: "exit", quit: true},
		{line: "dance", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			c := &fakeController{}
			r := output.NewRenderer(&bytes.Buffer{})
			quit, err := runCommand(tt.line, c, r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if quit != tt.quit {
				t.Fatalf("expected quit=%v", tt.quit)
			}
			if strings.Join(c.calls, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("unexpected calls: %v", c.calls)
			}
		})
	}
}

func TestRunCommandUnknownWrapsSentinel(t *testing.T) {
	_, err := runCommand("dance", &fakeController{}, output.NewRenderer(&bytes.Buffer{}))
	if !errors.Is(err, errUnknownCommand) {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestStatusAndHistoryCommandsRender(t *testing.T) {
	var out bytes.Buffer
	c := &fakeController{
		state: domain.StateConnected,
		entries: []domain.AnalysisEntry{{
			Seq:        1,
			ReceivedAt: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
			Transcript: "hello there",
		}},
	}
	r := output.NewRenderer(&out)

	if _, err := runCommand("status", c, r); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if _, err := runCommand("history", c, r); err != nil {
		t.Fatalf("history failed: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "connected") || !strings.Contains(got, "attempts 0/5") {
		t.Fatalf("missing status line: %q", got)
	}
	if !strings.Contains(got, "hello there") {
		t.Fatalf("missing history entry: %q", got)
	}
}

func TestInteractStopsAtQuitAndReportsErrors(t *testing.T) {
	var out bytes.Buffer
	c := &fakeController{startErr: errors.New("start recording: not connected")}
	in := strings.NewReader("start\nbogus\nquit\nstop\n")

	if err := interact(context.Background(), in, c, output.NewRenderer(&out), false); err != nil {
		t.Fatalf("interact failed: %v", err)
	}

	if strings.Join(c.calls, ",") != "start" {
		t.Fatalf("expected commands after quit to be ignored, got %v", c.calls)
	}
	if !strings.Contains(out.String(), "not connected") || !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("expected errors to be rendered: %q", out.String())
	}
}

func TestInteractReturnsOnEOF(t *testing.T) {
	c := &fakeController{}
	if err := interact(context.Background(), strings.NewReader("stop\n"), c, output.NewRenderer(&bytes.Buffer{}), false); err != nil {
		t.Fatalf("interact failed: %v", err)
	}
	if strings.Join(c.calls, ",") != "stop" {
		t.Fatalf("unexpected calls: %v", c.calls)
	}
}

func TestInteractAutoStartsOnceConnected(t *testing.T) {
	c := &fakeController{state: domain.StateConnected}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// blockingReader never yields input, so the loop only exits via ctx.
	if err := interact(ctx, blockingReader{ctx: ctx}, c, output.NewRenderer(&bytes.Buffer{}), true); err != nil {
		t.Fatalf("interact failed: %v", err)
	}
	if strings.Join(c.calls, ",") != "start" {
		t.Fatalf("expected a single auto start, got %v", c.calls)
	}
}

type blockingReader struct {
	ctx context.Context
}

func (b blockingReader) Read([]byte) (int, error) {
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func TestLastAndTranscriptCommands(t *testing.T) {
	var out bytes.Buffer
	r := output.NewRenderer(&out)
	c := &fakeController{}

	for _, line := range []string{"last", "transcript"} {
		if _, err := runCommand(line, c, r); err != nil {
			t.Fatalf("%s failed: %v", line, err)
		}
	}
	if !strings.Contains(out.String(), "No analyses yet") || !strings.Contains(out.String(), "No transcript yet") {
		t.Fatalf("expected empty messages: %q", out.String())
	}

	out.Reset()
	c.entries = []domain.AnalysisEntry{{Seq: 1, Transcript: "hello"}, {Seq: 2, Transcript: "there"}}
	for _, line := range []string{"last", "transcript"} {
		if _, err := runCommand(line, c, r); err != nil {
			t.Fatalf("%s failed: %v", line, err)
		}
	}
	got := out.String()
	if !strings.Contains(got, "#2") || strings.Contains(got, "#1") {
		t.Fatalf("expected only the latest analysis: %q", got)
	}
	if !strings.Contains(got, "hello there") {
		t.Fatalf("expected running transcript: %q", got)
	}
}

func TestSessionErrorsAreNotPrintedTwice(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		printed bool
	}{
		{name: "not connected", err: fmt.Errorf("start_recording: %w", session.ErrNotConnected)},
		{name: "transport", err: &session.TransportError{Err: errors.New("broken pipe")}},
		{name: "other", err: errors.New("disposed for good"), printed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := &fakeController{startErr: tt.err}
			if err := interact(context.Background(), strings.NewReader("start\n"), c, output.NewRenderer(&out), false); err != nil {
				t.Fatalf("interact failed: %v", err)
			}
			if got := strings.Contains(out.String(), "✗"); got != tt.printed {
				t.Fatalf("expected printed=%v, got output %q", tt.printed, out.String())
			}
		})
	}
}
