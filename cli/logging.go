package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewLogger returns a text logger writing to w. verbose enables Debug
// records and quiet keeps only errors; quiet wins when both are set.
func NewLogger(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// logger builds the command logger from the root --verbose and --quiet
// flags. Commands run without a root carrying them log at Info.
func logger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	return NewLogger(cmd.ErrOrStderr(), verbose, quiet)
}
