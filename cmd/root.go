package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "game-show-backend",
	Short: "Game show backend: game sessions, team buzzers, scoring over WebSocket",
	Long:  `HTTP + WebSocket API. Commands: api, migrate.`,
	RunE:  runAPI, // default: run API (same as "game-show-backend api")
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}
