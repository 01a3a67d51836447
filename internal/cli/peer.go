package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"liveassist/internal/config"
	"liveassist/internal/logging"
	"liveassist/internal/peer"
)

func NewPeerCmd(configPath *string) *cobra.Command {
	var addr string
	var segmentInterval time.Duration

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Run the scripted mock analysis peer",
		Long:  "Serve the websocket protocol on /ws with scripted analyses, plus / and /health probes. Useful for local development.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if addr != "" {
				cfg.Peer.Addr = addr
			}
			interval := cfg.Peer.SegmentInterval()
			if segmentInterval > 0 {
				interval = segmentInterval
			}

			logger, cleanup, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := peer.New(peer.Config{Addr: cfg.Peer.Addr, SegmentInterval: interval}, logger.Named("peer"))
			return server.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides peer.addr)")
	cmd.Flags().DurationVar(&segmentInterval, "segment-interval", 0, "Time between scripted analyses (overrides peer.segmentIntervalMs)")
	return cmd
}
