// Package cmd wires the CLI surface: preprocess, resolve_urls, compute and
// export_network on a single corpus file.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"coordnet/internal/config"
	"coordnet/internal/ingest"
	"coordnet/internal/store"
)

// Exit codes, part of the CLI contract.
const (
	exitOK       = 0
	exitUsage    = 2
	exitData     = 3
	exitInternal = 4
)

var (
	dbPath string
	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "coordnet",
	Short:         "Compute coordination networks from social media corpora",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return usageErr(err)
		}
		logger = newLogger(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the corpus database (or set COORDNET_DB)")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}

// openStore resolves the corpus path from the flag or environment and opens
// it.
func openStore() (*store.Store, error) {
	path := dbPath
	if path == "" {
		path = cfg.DBPath
	}
	if path == "" {
		return nil, usageErr(errors.New("no corpus given: use --db or set COORDNET_DB"))
	}
	return store.Open(path)
}

// workerCount resolves an --n_cpus flag value against the environment
// default.
func workerCount(flagValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return cfg.NCPUs
}

// usageError marks an error as the caller's fault: bad arguments, missing
// files.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErr(err error) error { return &usageError{err: err} }

// exitCode classifies an error per the CLI contract: 2 for user errors,
// 3 for data errors, 4 for everything else.
func exitCode(err error) int {
	var usage *usageError
	var tooMany *ingest.TooManyMalformedError
	switch {
	case errors.As(err, &usage), errors.Is(err, fs.ErrNotExist):
		return exitUsage
	case errors.As(err, &tooMany), errors.Is(err, store.ErrIncompatibleSchema):
		return exitData
	case errors.Is(err, context.Canceled):
		return exitInternal
	}
	// Anything else surfaced by cobra itself (unknown flags, bad
	// subcommands) never reached a RunE and is a usage error.
	if !commandRan {
		return exitUsage
	}
	return exitInternal
}

// commandRan flips once a RunE body starts, separating flag-parse failures
// from runtime failures.
var commandRan bool

// run adapts a command body into a cobra RunE, recording that execution
// started.
func run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		commandRan = true
		return fn(cmd, args)
	}
}

// Execute runs the CLI and exits with the contract's code on failure.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "coordnet: %v\n", err)
		os.Exit(exitCode(err))
	}
}
