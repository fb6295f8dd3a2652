package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/gdorker/internal/config"
	"github.com/nao1215/gdorker/internal/dispatch"
	gdlog "github.com/nao1215/gdorker/internal/log"
)

// Process exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitFatal       = 2
	exitInterrupted = 130
)

// NewRootCmd creates the root command for gdorker.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gdorker",
		Short: "Paced Google dork dispatcher",
		Long: `gdorker sends a list of Google dork templates to a search backend one query
at a time, waits a randomized delay between queries, rotates through a proxy
pool and collects the result URLs.

Results can be appended to a text file as they arrive, written as a JSON
report at the end of the run, and are recorded in a local history database
so an interrupted run can be resumed and two runs can be compared.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().IntP(config.OptionVerbosity, "v", config.DefaultVerbosity,
		"Log verbosity: 0 silent, 1 critical, 2 error, 3 warning, 4 info, 5 debug")
	cmd.PersistentFlags().String("log-file", "",
		"Also write logs to the given file")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewCollectCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with the matching exit code.
func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, gdlog.SanitizeText(err.Error()))
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, dispatch.ErrAborted) {
		return exitInterrupted
	}
	var fatal *dispatch.FatalError
	if errors.As(err, &fatal) {
		return exitFatal
	}
	return exitError
}

// getVerbosity retrieves the verbosity flag from the command or its parent.
func getVerbosity(cmd *cobra.Command) int {
	verbosity, err := cmd.Flags().GetInt(config.OptionVerbosity)
	if err != nil {
		verbosity, err = cmd.Root().PersistentFlags().GetInt(config.OptionVerbosity)
		if err != nil {
			return config.DefaultVerbosity
		}
	}
	return verbosity
}

// setupLogger creates the secure logger writing to stderr and, when
// logFile is set, to that file as well. The returned close function
// releases the log file.
func setupLogger(stderr io.Writer, verbosity int, logFile string) (*slog.Logger, func() error, error) {
	if logFile == "" {
		return gdlog.NewSecureLogger(stderr, verbosity), func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // Operator-chosen path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return gdlog.NewSecureLogger(io.MultiWriter(stderr, f), verbosity), f.Close, nil
}

// commandLogger builds the logger for cmd from the persistent flags.
func commandLogger(cmd *cobra.Command, verbosity int) (*slog.Logger, func() error, error) {
	logFile, err := cmd.Flags().GetString("log-file")
	if err != nil {
		logFile, _ = cmd.Root().PersistentFlags().GetString("log-file") //nolint:errcheck // flag is always registered on root
	}
	return setupLogger(cmd.ErrOrStderr(), verbosity, logFile)
}
