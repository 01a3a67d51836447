package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"liveassist/internal/domain"
	"liveassist/internal/ports"
)

var (
	ErrNoAnalysis   = errors.New("analysis not found")
	ErrNoSuggestion = errors.New("suggestion not found")
)

type suggestionCopier struct {
	clipboard ports.Clipboard
	events    ports.EventSink
}

func newSuggestionCopier(clipboard ports.Clipboard, events ports.EventSink) suggestionCopier {
	return suggestionCopier{clipboard: clipboard, events: events}
}

func (c suggestionCopier) Copy(ctx context.Context, entry domain.AnalysisEntry, index int) (string, error) {
	suggestions := entry.Result.Suggestions
	if index < 0 || index >= len(suggestions) {
		return "", fmt.Errorf("%w: analysis %d has %d suggestions", ErrNoSuggestion, entry.Seq, len(suggestions))
	}

	text := strings.TrimSpace(suggestions[index])
	if c.clipboard == nil {
		c.events.SessionError(domain.ErrorCodeClipboard, "clipboard is not available")
		return "", errors.New("clipboard is not available")
	}
	if err := c.clipboard.SetText(ctx, text); err != nil {
		c.events.SessionError(domain.ErrorCodeClipboard, "suggestion ready but clipboard write failed")
		return "", fmt.Errorf("failed to copy suggestion: %w", err)
	}
	return text, nil
}
