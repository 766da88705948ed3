package main

import (
	"context"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "claude-work",
	Short: "Run coding agent sessions in isolated git worktrees",
	Long: `claude-work manages projects backed by git repositories. Each session
gets its own worktree and branch, an agent process and an optional shell,
all reachable from the browser over REST and WebSocket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory containing config.yaml")
	rootCmd.AddCommand(serveCmd, configCmd)
}

// Execute runs the root command.
func Execute() error {
	rootCmd.Version = version
	return rootCmd.ExecuteContext(context.Background())
}
