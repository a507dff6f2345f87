// Package cli implements the CLI commands for the proctool client.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"proctool/logging"
)

// Global flags.
var (
	globalLog       string
	globalLogFormat string
	globalDebug     bool
)

// rootCmd is the base command for proctool.
var rootCmd = &cobra.Command{
	Use:   "proctool",
	Short: "External process controller",
	Long: `proctool attaches to a running AArch64 Linux process by pid and
pauses, resumes, redirects its stdio, takes it over with a new program
image, rewinds it back to its own start, or freezes and thaws its
entire state — all from outside the process, via ptrace.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns a context that cancels on SIGINT/SIGTERM.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// ProctoolRoot returns the PROCTOOL_ROOT directory, whose bin/
// subdirectory holds the takeover helper and the client binary (spec
// §6 "Environment").
func ProctoolRoot() (string, error) {
	root := os.Getenv("PROCTOOL_ROOT")
	if root == "" {
		return "", fmt.Errorf("PROCTOOL_ROOT must be set")
	}
	return root, nil
}

// daemonLogPath returns the log file proctoold appends to and
// `proctool daemon-logs` tails.
func daemonLogPath() string {
	root, err := ProctoolRoot()
	if err != nil {
		return "proctool-daemon.log"
	}
	return filepath.Join(root, "proctool-daemon.log")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	logOutput := os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	logger := logging.NewLogger(logging.Config{
		Level:  logLevel,
		Format: globalLogFormat,
		Output: logOutput,
	})
	logging.SetDefault(logger)
}
