package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tipsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional YAML config file
	EnvFile string // optional .env file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tipsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tipsync",
		Short: "tipsync - tip lifecycle reconciliation",
		Long: `Reconcile tips announced by a tipping bot with the payments that settle them.

Resolves tip amounts, replays scenarios through the reconciliation engine,
and inspects saved tip stores.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return Failf(CodeUsage, "invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "path to .env file (skipped if missing)")

	// Add subcommands
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewUnitsCommand(opts))
	cmd.AddCommand(NewTipsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig reads the configuration named by the global flags.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var envFiles []string
	if opts.EnvFile != "" {
		envFiles = append(envFiles, opts.EnvFile)
	}
	cfg, err := config.Load(opts.Config, envFiles...)
	if err != nil {
		return nil, Wrap(CodeConfig, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger. Verbose forces debug level;
// otherwise the configured level applies.
func newLogger(opts *RootOptions, cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		if l, err := cfg.Level(); err == nil {
			level = l
		}
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// printer returns the result printer for cmd. Diagnostics go to stderr so
// JSON on stdout stays parseable.
func printer(opts *RootOptions, cfg *config.Config, cmd *cobra.Command) *Printer {
	return &Printer{
		JSON: opts.Format == "json",
		Out:  cmd.OutOrStdout(),
		Log:  newLogger(opts, cfg, cmd.ErrOrStderr()),
	}
}
