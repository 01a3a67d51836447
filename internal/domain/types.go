package domain

import "time"

// ConnectionState models the lifecycle of one logical session to the analysis peer.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

// ErrorCode identifies the failures surfaced through error events.
type ErrorCode string

const (
	ErrorCodeNotConnected       ErrorCode = "not_connected"
	ErrorCodeProtocolDecode     ErrorCode = "protocol_decode"
	ErrorCodeTransport          ErrorCode = "transport"
	ErrorCodeReconnectExhausted ErrorCode = "reconnect_exhausted"
	ErrorCodePeer               ErrorCode = "peer"
	ErrorCodeStartup            ErrorCode = "startup"
	ErrorCodeClipboard          ErrorCode = "clipboard"
	ErrorCodeInvalidOption      ErrorCode = "invalid_option"
)

// CommandKind identifies an outbound command.
type CommandKind string

const (
	CommandStartRecording CommandKind = "start_recording"
	CommandStopRecording  CommandKind = "stop_recording"
	CommandSetOption      CommandKind = "set_option"
)

// Command is sent from the client to the analysis peer.
type Command struct {
	Kind  CommandKind
	Key   string
	Value any
}

func StartRecording() Command {
	return Command{Kind: CommandStartRecording}
}

func StopRecording() Command {
	return Command{Kind: CommandStopRecording}
}

func SetOption(key string, value any) Command {
	return Command{Kind: CommandSetOption, Key: key, Value: value}
}

// InboundKind identifies a message received from the analysis peer.
type InboundKind string

const (
	InboundStatus   InboundKind = "status"
	InboundAnalysis InboundKind = "analysis"
	InboundError    InboundKind = "error"
)

// Inbound is a decoded peer message. Analysis is set only for InboundAnalysis.
type Inbound struct {
	Kind     InboundKind
	Text     string
	Analysis *Analysis
}

// AnalysisResult is the structured result the peer derives from a transcript segment.
type AnalysisResult struct {
	Topics      []string `json:"topics"`
	Suggestions []string `json:"suggestions"`
	Insights    []string `json:"insights"`
}

// Analysis pairs a transcript segment with its structured result.
type Analysis struct {
	Transcript string         `json:"transcript"`
	Result     AnalysisResult `json:"result"`
}

// EventKind identifies an occurrence delivered to session listeners.
type EventKind string

const (
	EventStatus  EventKind = "status"
	EventMessage EventKind = "message"
	EventError   EventKind = "error"
)

// EventSource tells whether an event was produced locally or relayed from the peer.
type EventSource string

const (
	SourceLocal EventSource = "local"
	SourcePeer  EventSource = "peer"
)

// SilenceHold is how long renderers keep the silence indicator visible.
const SilenceHold = 2 * time.Second

// Event is delivered to every registered session listener.
type Event struct {
	Kind   EventKind
	State  ConnectionState
	Source EventSource

	// Text carries the status line for status events and the detail for error events.
	Text    string
	Silence bool

	Analysis *Analysis

	Code ErrorCode
	Err  error
}

// Status summarizes the current session for renderers.
type Status struct {
	State       ConnectionState `json:"state"`
	Recording   bool            `json:"recording"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Options     map[string]any  `json:"options,omitempty"`
	Message     string          `json:"message,omitempty"`
	// Silence is set while a peer silence announcement is within SilenceHold.
	Silence bool `json:"silence,omitempty"`
}

// AnalysisEntry is one analysis kept in the session history.
type AnalysisEntry struct {
	Seq        int            `json:"seq"`
	ReceivedAt time.Time      `json:"receivedAt"`
	Transcript string         `json:"transcript"`
	Result     AnalysisResult `json:"result"`
}
