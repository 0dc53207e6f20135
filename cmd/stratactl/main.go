// Command stratactl is an operator CLI for inspecting a stratadb data
// directory on disk: summary stats, a raw key dump, and a read-only
// replay of the write-ahead log against a throwaway store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratadb-labs/strata-core-sub010/pkg/log"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "stratactl",
	Short:   "Inspect a stratadb data directory",
	Long:    `stratactl is a read-only operator tool for a stratadb data directory: it never opens the WAL for writing, so every subcommand is safe to run against a database another process has open.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringP("data-dir", "d", ".", "stratadb data directory")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(replayDryRunCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
