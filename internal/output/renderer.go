// Package output renders session activity for terminals.
package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"liveassist/internal/domain"
)

type styles struct {
	connected    lipgloss.Style
	transitional lipgloss.Style
	down         lipgloss.Style
	muted        lipgloss.Style
	label        lipgloss.Style
	err          lipgloss.Style
	card         lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		connected:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		transitional: r.NewStyle().Foreground(lipgloss.Color("3")),
		down:         r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:        r.NewStyle().Foreground(lipgloss.Color("244")),
		label:        r.NewStyle().Bold(true),
		err:          r.NewStyle().Foreground(lipgloss.Color("1")),
		card: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1),
	}
}

// Renderer writes session events as styled lines. It implements ports.EventSink.
type Renderer struct {
	mu     sync.Mutex
	w      io.Writer
	styles styles
}

func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w, styles: newStyles(lipgloss.NewRenderer(w))}
}

func (r *Renderer) ConnectionChanged(status domain.Status) {
	line := r.stateBadge(status.State)
	if status.Message != "" {
		line += " " + status.Message
	}
	r.println(line)
}

func (r *Renderer) PeerStatus(text string, silence bool) {
	if silence {
		r.println(r.styles.muted.Render("… " + text))
		return
	}
	r.println(r.styles.muted.Render("› ") + text)
}

func (r *Renderer) AnalysisReceived(entry domain.AnalysisEntry) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.styles.label.Render(fmt.Sprintf("#%d", entry.Seq)), r.styles.muted.Render(entry.ReceivedAt.Format("15:04:05")))
	if entry.Transcript != "" {
		fmt.Fprintf(&b, "%s\n", entry.Transcript)
	}
	r.section(&b, "Topics", entry.Result.Topics)
	r.section(&b, "Suggestions", entry.Result.Suggestions)
	r.section(&b, "Insights", entry.Result.Insights)
	r.println(r.styles.card.Render(strings.TrimRight(b.String(), "\n")))
}

func (r *Renderer) SessionError(code domain.ErrorCode, detail string) {
	r.println(r.styles.err.Render(fmt.Sprintf("✗ [%s] %s", code, detail)))
}

// Status prints a one-line summary for the status command.
func (r *Renderer) Status(status domain.Status) {
	recording := "idle"
	if status.Recording {
		recording = "recording"
	}
	line := fmt.Sprintf("%s %s, attempts %d/%d", r.stateBadge(status.State), recording, status.Attempts, status.MaxAttempts)
	if privacy, ok := status.Options["privacy"]; ok {
		line += fmt.Sprintf(", privacy %v", privacy)
	}
	if status.Silence {
		line += ", silence"
	}
	if status.Message != "" {
		line += r.styles.muted.Render(" (" + status.Message + ")")
	}
	r.println(line)
}

func (r *Renderer) History(entries []domain.AnalysisEntry) {
	if len(entries) == 0 {
		r.Info("No analyses yet")
		return
	}
	for _, entry := range entries {
		r.AnalysisReceived(entry)
	}
}

// Transcript prints the running transcript as one block.
func (r *Renderer) Transcript(text string) {
	if text == "" {
		r.Info("No transcript yet")
		return
	}
	r.println(r.styles.label.Render("Transcript:") + "\n" + text)
}

func (r *Renderer) Info(msg string) {
	r.println(r.styles.muted.Render("ℹ " + msg))
}

func (r *Renderer) Error(msg string) {
	r.println(r.styles.err.Render("✗ " + msg))
}

func (r *Renderer) stateBadge(state domain.ConnectionState) string {
	text := "● " + string(state)
	switch state {
	case domain.StateConnected:
		return r.styles.connected.Render(text)
	case domain.StateConnecting, domain.StateReconnecting:
		return r.styles.transitional.Render(text)
	default:
		return r.styles.down.Render(text)
	}
}

func (r *Renderer) section(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s\n", r.styles.label.Render(title+":"))
	for _, item := range items {
		fmt.Fprintf(b, "  • %s\n", item)
	}
}

func (r *Renderer) println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, line)
}
