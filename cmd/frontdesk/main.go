package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// ============================================================================
// Logging
// ============================================================================

const (
	envLogLevel   = "FRONTDESK_LOG_LEVEL"
	envLogNoColor = "FRONTDESK_LOG_NOCOLOR"
)

// newLogger writes to stderr so command output on stdout stays parseable.
// The level defaults to warn.
func newLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    os.Getenv(envLogNoColor) != "",
	}
	level := zerolog.WarnLevel
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "frontdesk").Logger()
}

var logger = zerolog.Nop()

// ============================================================================
// Root command
// ============================================================================

var rootCmd = &cobra.Command{
	Use:   "frontdesk",
	Short: "Frontdesk dashboard CLI",
	Long:  "Command-line interface for the Frontdesk receptionist dashboard.\nLog in, check notifications, and watch the realtime channel.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
