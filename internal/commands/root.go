// Package commands provides the relaychat command line.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "relaychat",
		Short: "Streaming chat relay for a RAG backend",
		Long: `relaychat sits between a browser chat UI and a RAG backend. It relays
chat requests, turns the backend's NDJSON reply into server-sent events,
and proxies the backend's configuration and upload endpoints.

Examples:
  relaychat serve                         Run the relay
  relaychat serve -c relaychat.toml       Run with a config file
  relaychat chat --server http://localhost:8100
  relaychat prompts                       List system prompt presets`,
		Version:      Version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to a TOML config file (default $RELAYCHAT_CONFIG)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newPromptsCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
