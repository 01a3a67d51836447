package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"liveassist/internal/domain"
)

func TestRendererPlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.ConnectionChanged(domain.Status{State: domain.StateReconnecting, Message: "Reconnecting in 2s (attempt 2/5)"})
	r.PeerStatus("Silence detected, processing segment", true)
	r.AnalysisReceived(domain.AnalysisEntry{
		Seq:        3,
		ReceivedAt: time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		Transcript: "hi",
		Result:     domain.AnalysisResult{Topics: []string{"a"}, Suggestions: []string{"ask"}},
	})
	r.SessionError(domain.ErrorCodeNotConnected, "start_recording: session is not connected")

	out := buf.String()
	for _, want := range []string{
		"● reconnecting Reconnecting in 2s (attempt 2/5)",
		"… Silence detected, processing segment",
		"#3 09:30:00",
		"Topics:",
		"• a",
		"Suggestions:",
		"✗ [not_connected] start_recording: session is not connected",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Insights:") {
		t.Fatalf("expected empty sections to be omitted:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no escape codes for a non-terminal writer:\n%q", out)
	}
}

func TestRendererStatusAndHistory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Status(domain.Status{
		State:       domain.StateConnected,
		Recording:   true,
		MaxAttempts: 5,
		Options:     map[string]any{"privacy": true},
		Message:     "Recording started",
	})
	r.History(nil)

	out := buf.String()
	if !strings.Contains(out, "● connected recording, attempts 0/5, privacy true (Recording started)") {
		t.Fatalf("unexpected status line:\n%s", out)
	}
	if !strings.Contains(out, "No analyses yet") {
		t.Fatalf("expected empty history message:\n%s", out)
	}
	if strings.Contains(out, "silence") {
		t.Fatalf("expected no silence marker outside the hold:\n%s", out)
	}

	buf.Reset()
	r.Transcript("")
	r.Transcript("hello there")
	if !strings.Contains(buf.String(), "No transcript yet") || !strings.Contains(buf.String(), "Transcript:\nhello there") {
		t.Fatalf("unexpected transcript output:\n%s", buf.String())
	}

	buf.Reset()
	r.Status(domain.Status{State: domain.StateConnected, MaxAttempts: 5, Silence: true})
	if !strings.Contains(buf.String(), "idle, attempts 0/5, silence") {
		t.Fatalf("expected silence marker:\n%s", buf.String())
	}
}
