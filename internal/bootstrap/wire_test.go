package bootstrap

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"go.uber.org/fx"
	"go.uber.org/goleak"

	"liveassist/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDependenciesAreSatisfied(t *testing.T) {
	if err := fx.ValidateApp(fx.Supply(Options{}), Module); err != nil {
		t.Fatalf("invalid graph: %v", err)
	}
}

func TestBuildSuccess(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LIVEASSIST_CONFIG", "")
	t.Setenv("LIVEASSIST_LOG_LEVEL", "error")

	services, err := Build(context.Background(), Options{Sink: discardSink{}, Clipboard: noopClipboard{}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Session == nil || services.Assistant == nil {
		t.Fatalf("expected session and assistant")
	}
	if services.Session.ID() == uuid.Nil {
		t.Fatalf("expected a session id")
	}
	if services.Session.State() != domain.StateDisconnected {
		t.Fatalf("expected a disconnected session, got %s", services.Session.State())
	}
	if privacy, ok := services.Session.Status().Options["privacy"]; !ok || privacy != true {
		t.Fatalf("expected default privacy option, got %v", services.Session.Status().Options)
	}

	if err := services.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := services.Session.Start(); err == nil {
		t.Fatalf("expected disposed session to reject commands")
	}
}

func TestBuildFailsOnInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LIVEASSIST_CONFIG", "")
	t.Setenv("LIVEASSIST_LOG_LEVEL", "loud")

	if _, err := Build(context.Background(), Options{}); err == nil {
		t.Fatalf("expected build error due to invalid log level")
	}
}

type noopClipboard struct{}

func (noopClipboard) SetText(_ context.Context, _ string) error { return nil }
