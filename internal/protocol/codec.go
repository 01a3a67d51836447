// Package protocol encodes and decodes the JSON messages exchanged with the analysis peer.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"liveassist/internal/domain"
)

const (
	actionStartRecording = "start_recording"
	actionStopRecording  = "stop_recording"
	actionSetPrefix      = "set_"
)

// DecodeError reports a payload that could not be turned into a message.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type commandFrame struct {
	Action  string `json:"action"`
	Enabled *bool  `json:"enabled,omitempty"`
	Value   any    `json:"value,omitempty"`
}

type inboundFrame struct {
	Type       string          `json:"type"`
	Message    string          `json:"message,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Analysis   json.RawMessage `json:"analysis,omitempty"`
}

// EncodeCommand renders a command in its wire form.
func EncodeCommand(cmd domain.Command) ([]byte, error) {
	var frame commandFrame
	switch cmd.Kind {
	case domain.CommandStartRecording:
		frame.Action = actionStartRecording
	case domain.CommandStopRecording:
		frame.Action = actionStopRecording
	case domain.CommandSetOption:
		key := strings.TrimSpace(cmd.Key)
		if key == "" {
			return nil, errors.New("option key is empty")
		}
		frame.Action = actionSetPrefix + key
		if enabled, ok := cmd.Value.(bool); ok {
			frame.Enabled = &enabled
		} else {
			frame.Value = cmd.Value
		}
	default:
		return nil, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
	return json.Marshal(frame)
}

// DecodeCommand parses a client command. The mock peer uses it.
func DecodeCommand(payload []byte) (domain.Command, error) {
	var frame commandFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return domain.Command{}, &DecodeError{Payload: string(payload), Err: err}
	}

	switch {
	case frame.Action == actionStartRecording:
		return domain.StartRecording(), nil
	case frame.Action == actionStopRecording:
		return domain.StopRecording(), nil
	case strings.HasPrefix(frame.Action, actionSetPrefix) && len(frame.Action) > len(actionSetPrefix):
		key := strings.TrimPrefix(frame.Action, actionSetPrefix)
		if frame.Enabled != nil {
			return domain.SetOption(key, *frame.Enabled), nil
		}
		if frame.Value == nil {
			return domain.Command{}, &DecodeError{Payload: string(payload), Err: fmt.Errorf("action %q has no value", frame.Action)}
		}
		return domain.SetOption(key, frame.Value), nil
	case frame.Action == "":
		return domain.Command{}, &DecodeError{Payload: string(payload), Err: errors.New("missing action")}
	default:
		return domain.Command{}, &DecodeError{Payload: string(payload), Err: fmt.Errorf("unknown action %q", frame.Action)}
	}
}

// DecodeInbound parses a peer message.
func DecodeInbound(payload []byte) (domain.Inbound, error) {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return domain.Inbound{}, &DecodeError{Payload: string(payload), Err: err}
	}

	switch domain.InboundKind(frame.Type) {
	case domain.InboundStatus:
		return domain.Inbound{Kind: domain.InboundStatus, Text: frame.Message}, nil
	case domain.InboundError:
		return domain.Inbound{Kind: domain.InboundError, Text: frame.Message}, nil
	case domain.InboundAnalysis:
		result, err := decodeAnalysis(frame.Analysis)
		if err != nil {
			return domain.Inbound{}, &DecodeError{Payload: string(payload), Err: err}
		}
		return domain.Inbound{
			Kind:     domain.InboundAnalysis,
			Analysis: &domain.Analysis{Transcript: frame.Transcript, Result: result},
		}, nil
	case "":
		return domain.Inbound{}, &DecodeError{Payload: string(payload), Err: errors.New("missing type")}
	default:
		return domain.Inbound{}, &DecodeError{Payload: string(payload), Err: fmt.Errorf("unknown type %q", frame.Type)}
	}
}

// decodeAnalysis accepts a JSON-encoded string, an object wrapping that string under
// "analysis", or the result object itself.
func decodeAnalysis(raw json.RawMessage) (domain.AnalysisResult, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return domain.AnalysisResult{}, errors.New("analysis is missing")
	}

	var result domain.AnalysisResult
	switch raw[0] {
	case '"':
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return domain.AnalysisResult{}, fmt.Errorf("analysis string: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &result); err != nil {
			return domain.AnalysisResult{}, fmt.Errorf("analysis body: %w", err)
		}
	case '{':
		var wrapper struct {
			Analysis *string `json:"analysis"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Analysis != nil {
			if err := json.Unmarshal([]byte(*wrapper.Analysis), &result); err != nil {
				return domain.AnalysisResult{}, fmt.Errorf("nested analysis body: %w", err)
			}
			break
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return domain.AnalysisResult{}, fmt.Errorf("analysis object: %w", err)
		}
	default:
		return domain.AnalysisResult{}, errors.New("analysis must be a string or an object")
	}

	return normalizeResult(result), nil
}

func normalizeResult(result domain.AnalysisResult) domain.AnalysisResult {
	if result.Topics == nil {
		result.Topics = []string{}
	}
	if result.Suggestions == nil {
		result.Suggestions = []string{}
	}
	if result.Insights == nil {
		result.Insights = []string{}
	}
	return result
}

// EncodeStatus renders a status message as the peer sends it.
func EncodeStatus(text string) ([]byte, error) {
	return json.Marshal(inboundFrame{Type: string(domain.InboundStatus), Message: text})
}

// EncodeError renders a peer-reported failure.
func EncodeError(text string) ([]byte, error) {
	return json.Marshal(inboundFrame{Type: string(domain.InboundError), Message: text})
}

// EncodeAnalysis renders an analysis with its result as a JSON-encoded string.
func EncodeAnalysis(analysis domain.Analysis) ([]byte, error) {
	body, err := json.Marshal(normalizeResult(analysis.Result))
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(string(body))
	if err != nil {
		return nil, err
	}
	return json.Marshal(inboundFrame{
		Type:       string(domain.InboundAnalysis),
		Transcript: analysis.Transcript,
		Analysis:   encoded,
	})
}
