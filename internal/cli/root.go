// Package cli implements founderctl, the operator tool for the founders
// schema and profiles.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/foundernet/engine/internal/app"
	"github.com/foundernet/engine/pkg/config"
	"github.com/foundernet/engine/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Open connects to the store. Commands that need no database never
	// call it.
	Open func(ctx context.Context) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for founderctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Open: openFromEnv}

	cmd := &cobra.Command{
		Use:   "founderctl",
		Short: "Operate the founders store",
		Long:  "Apply migrations, inspect row level security and read profiles as a given identity.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			_, err := logger.InitWriter(level, "console", cmd.ErrOrStderr())
			return err
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPoliciesCommand(opts))
	cmd.AddCommand(NewDoctorCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewFetchCommand(opts))

	return cmd
}

func openFromEnv(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	return a, nil
}
