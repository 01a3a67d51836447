package main

import (
	"context"
	"fmt"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"liveassist/internal/bootstrap"
	"liveassist/internal/domain"
	"liveassist/internal/usecase"
)

const (
	eventConnection = "liveassist:connection"
	eventPeerStatus = "liveassist:status"
	eventAnalysis   = "liveassist:analysis"
	eventError      = "liveassist:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services  *bootstrap.Services
	assistant *usecase.Assistant
	bootErr   error

	emit func(ctx context.Context, name string, data ...interface{})
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, bootstrap.Options{Sink: a, Clipboard: &wailsClipboard{}})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.assistant = services.Assistant
	if err := a.assistant.Connect(); err != nil {
		services.Logger.Warnw("initial connect failed", "error", err)
	}
}

func (a *App) shutdown(context.Context) {
	if a.services == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.services.Close(ctx)
}

// StartRecording asks the peer to begin a recording.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.assistant.StartRecording(); err != nil {
		return a.assistant.Status(), err
	}
	return a.assistant.Status(), nil
}

func (a *App) StopRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.assistant.StopRecording(); err != nil {
		return a.assistant.Status(), err
	}
	return a.assistant.Status(), nil
}

// SetPrivacy toggles transcript redaction on the peer.
func (a *App) SetPrivacy(enabled bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.assistant.SetPrivacy(enabled)
}

// Reconnect is the manual reconnect button.
func (a *App) Reconnect() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.assistant.Reconnect()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.assistant == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.StateFailed, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.StateDisconnected}
	}
	return a.assistant.Status()
}

func (a *App) GetAnalyses() []domain.AnalysisEntry {
	if a.assistant == nil {
		return nil
	}
	return a.assistant.Analyses()
}

// CopySuggestion copies one suggestion of analysis seq to the clipboard.
func (a *App) CopySuggestion(seq int, index int) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.assistant.CopySuggestion(a.ctx, seq, index)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.assistant == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// ConnectionChanged emits connection lifecycle updates to the frontend.
func (a *App) ConnectionChanged(status domain.Status) {
	a.send(eventConnection, map[string]any{
		"state":     string(status.State),
		"message":   status.Message,
		"recording": status.Recording,
		"attempts":  status.Attempts,
		"label":     connectionLabel(status.State),
	})
}

// PeerStatus emits peer status lines, flagging silence announcements.
// Silence announcements carry the hold in milliseconds; the page clears the indicator after it.
func (a *App) PeerStatus(text string, silence bool) {
	payload := map[string]any{"text": text, "silence": silence}
	if silence {
		payload["holdMs"] = domain.SilenceHold.Milliseconds()
	}
	a.send(eventPeerStatus, payload)
}

func (a *App) AnalysisReceived(entry domain.AnalysisEntry) {
	a.send(eventAnalysis, entry)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) send(name string, data any) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, data)
}

func connectionLabel(state domain.ConnectionState) string {
	switch state {
	case domain.StateConnecting:
		return "Connecting"
	case domain.StateConnected:
		return "Live"
	case domain.StateReconnecting:
		return "Reconnecting"
	case domain.StateFailed:
		return "Offline"
	default:
		return "Disconnected"
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeNotConnected:
		return "Not connected to the analysis server"
	case domain.ErrorCodeProtocolDecode:
		return "Unreadable message from server"
	case domain.ErrorCodeTransport:
		return "Connection issue"
	case domain.ErrorCodeReconnectExhausted:
		return "Unable to reconnect to server"
	case domain.ErrorCodePeer:
		return "Server error"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodeInvalidOption:
		return "Option could not be sent"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
