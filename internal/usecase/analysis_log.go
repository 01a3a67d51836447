package usecase

import (
	"strings"
	"sync"

	"liveassist/internal/clock"
	"liveassist/internal/domain"
)

const defaultLogCapacity = 200

// AnalysisLog keeps the most recent analyses, oldest first.
type AnalysisLog struct {
	clock    clock.Clock
	capacity int

	mu      sync.Mutex
	entries []domain.AnalysisEntry
	nextSeq int
}

func NewAnalysisLog(clk clock.Clock, capacity int) *AnalysisLog {
	if clk == nil {
		clk = clock.New()
	}
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &AnalysisLog{clock: clk, capacity: capacity}
}

// Add records an analysis and returns its entry. Sequence numbers keep increasing after
// old entries are evicted.
func (l *AnalysisLog) Add(analysis domain.Analysis) domain.AnalysisEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq++
	entry := domain.AnalysisEntry{
		Seq:        l.nextSeq,
		ReceivedAt: l.clock.Now(),
		Transcript: strings.TrimSpace(analysis.Transcript),
		Result:     analysis.Result,
	}
	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	return entry
}

func (l *AnalysisLog) Entries() []domain.AnalysisEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AnalysisEntry(nil), l.entries...)
}

// Lookup finds an entry by sequence number.
func (l *AnalysisLog) Lookup(seq int) (domain.AnalysisEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.Seq == seq {
			return entry, true
		}
	}
	return domain.AnalysisEntry{}, false
}

func (l *AnalysisLog) Latest() (domain.AnalysisEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return domain.AnalysisEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Transcript joins the retained transcripts in arrival order.
func (l *AnalysisLog) Transcript() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	parts := make([]string, 0, len(l.entries))
	for _, entry := range l.entries {
		if entry.Transcript != "" {
			parts = append(parts, entry.Transcript)
		}
	}
	return strings.Join(parts, " ")
}
