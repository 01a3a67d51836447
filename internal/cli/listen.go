package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"liveassist/internal/bootstrap"
	"liveassist/internal/domain"
	"liveassist/internal/output"
	"liveassist/internal/session"
)

const listenHelp = `Commands:
  start              begin recording
  stop               stop recording
  privacy on|off     toggle transcript redaction
  reconnect          drop the connection and dial again
  status             show the session status
  history            show every analysis received so far
  last               show the most recent analysis
  transcript         show the running transcript
  quit               exit`

// controller is the part of usecase.Assistant the interactive loop drives.
type controller interface {
	StartRecording() error
	StopRecording() error
	SetPrivacy(enabled bool) error
	Reconnect() error
	Status() domain.Status
	Analyses() []domain.AnalysisEntry
	Latest() (domain.AnalysisEntry, bool)
	Transcript() string
}

func NewListenCmd(configPath *string) *cobra.Command {
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect to the analysis peer and render events",
		Long:  "Connect to the analysis peer, render status, analyses and errors, and read commands from stdin.\n\n" + listenHelp,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			renderer := output.NewRenderer(cmd.OutOrStdout())
			services, err := bootstrap.Build(ctx, bootstrap.Options{
				ConfigPath: *configPath,
				Sink:       renderer,
			})
			if err != nil {
				return fmt.Errorf("initializing: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = services.Close(closeCtx)
			}()

			report(renderer, services.Assistant.Connect())
			if autoStart {
				renderer.Info("Recording starts once connected; type start if it does not")
			}
			renderer.Info("Type help for commands")

			return interact(ctx, cmd.InOrStdin(), services.Assistant, renderer, autoStart)
		},
	}

	cmd.Flags().BoolVar(&autoStart, "start", false, "Start recording as soon as the session connects")
	return cmd
}

// interact reads commands until quit, end of input or ctx cancellation.
func interact(ctx context.Context, in io.Reader, c controller, r *output.Renderer, autoStart bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var autoStartTick <-chan time.Time
	if autoStart {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		autoStartTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-autoStartTick:
			if c.Status().State == domain.StateConnected {
				autoStartTick = nil
				report(r, c.StartRecording())
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := runCommand(line, c, r)
			report(r, err)
			if quit {
				return nil
			}
		}
	}
}

var errUnknownCommand = errors.New("unknown command, type help")

// report prints err unless the session already delivered it to the renderer as an error event.
func report(r *output.Renderer, err error) {
	var transportErr *session.TransportError
	if err == nil || errors.Is(err, session.ErrNotConnected) || errors.As(err, &transportErr) {
		return
	}
	r.Error(err.Error())
}

func runCommand(line string, c controller, r *output.Renderer) (bool, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "start":
		return false, c.StartRecording()
	case "stop":
		return false, c.StopRecording()
	case "privacy":
		if len(fields) != 2 {
			return false, errors.New("usage: privacy on|off")
		}
		switch fields[1] {
		case "on":
			return false, c.SetPrivacy(true)
		case "off":
			return false, c.SetPrivacy(false)
		default:
			return false, errors.New("usage: privacy on|off")
		}
	case "reconnect":
		return false, c.Reconnect()
	case "status":
		r.Status(c.Status())
		return false, nil
	case "history":
		r.History(c.Analyses())
		return false, nil
	case "last":
		if entry, ok := c.Latest(); ok {
			r.AnalysisReceived(entry)
		} else {
			r.Info("No analyses yet")
		}
		return false, nil
	case "transcript":
		r.Transcript(c.Transcript())
		return false, nil
	case "help", "?":
		r.Info(listenHelp)
		return false, nil
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("%w: %q", errUnknownCommand, fields[0])
	}
}
