package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"liveassist/internal/version"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "liveassist",
		Short:         "Live conversation assistant client",
		Long:          "Connects to the analysis peer, streams recording commands and renders live transcripts, topics and suggestions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (defaults to $LIVEASSIST_CONFIG or ~/.config/liveassist/config.yaml)")

	rootCmd.AddCommand(NewListenCmd(&configPath))
	rootCmd.AddCommand(NewPeerCmd(&configPath))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}
