package ports

import (
	"context"

	"liveassist/internal/domain"
)

//go:generate mockgen -destination=portsmock/ports_mock.go -package=portsmock liveassist/internal/ports Dialer,Transport

// TransportHandler receives the events of one transport instance.
//
// Implementations of Dialer must deliver OnError zero or more times and OnClose exactly once
// per transport, always from a goroutine other than the one that called Dial.
type TransportHandler interface {
	OnOpen()
	OnMessage(payload []byte)
	OnError(err error)
	OnClose()
}

// Transport is an open or opening message-oriented connection.
type Transport interface {
	// Send writes one text message. It fails when the transport is not open.
	Send(payload []byte) error
	// Close tears the transport down without waiting for its handler to finish.
	Close() error
}

// Dialer opens transports to the analysis peer. Dial returns immediately; the open
// outcome is reported through the handler.
type Dialer interface {
	Dial(ctx context.Context, handler TransportHandler) (Transport, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink renders session activity to a user interface.
type EventSink interface {
	ConnectionChanged(status domain.Status)
	PeerStatus(text string, silence bool)
	AnalysisReceived(entry domain.AnalysisEntry)
	SessionError(code domain.ErrorCode, detail string)
}
