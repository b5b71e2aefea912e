package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/services"
)

// NewFetchCommand reads one profile through the retrying lookup, acting as
// the given identity. It is the tool for "why can't X see Y" questions.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		as       string
		id       string
		attempts int
		backoff  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Read a founder profile as a given identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := policy.Anonymous()
			if as != "" {
				aid, err := uuid.Parse(as)
				if err != nil {
					return WrapExitError(ExitCommandError, "--as must be a UUID", err)
				}
				actor = policy.As(aid)
			}
			target := actor.ID
			if id != "" {
				tid, err := uuid.Parse(id)
				if err != nil {
					return WrapExitError(ExitCommandError, "--id must be a UUID", err)
				}
				target = tid
			}

			a, err := rootOpts.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			l, err := a.Profiles.FetchProfile(cmd.Context(), actor, target, services.FetchOptions{
				MaxAttempts: attempts,
				Backoff:     backoff,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "fetch", err)
			}
			if err := writeLookup(cmd.OutOrStdout(), rootOpts.Format, actor, l); err != nil {
				return err
			}
			if !l.Found {
				return NewExitError(ExitFailure, "founder not found")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "identity to act as (empty for anonymous)")
	cmd.Flags().StringVar(&id, "id", "", "founder to read (defaults to --as)")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "maximum read attempts (0 for the configured default)")
	cmd.Flags().DurationVar(&backoff, "backoff", 0, "delay between attempts (0 for the configured default)")
	return cmd
}

func writeLookup(w io.Writer, format string, actor policy.Actor, l services.Lookup) error {
	return emit(w, format, l, func(w io.Writer) error {
		if !l.Found {
			_, err := fmt.Fprintf(w, "not found as %s after %d attempt(s), retry_exhausted=%t\n",
				actor, l.Attempts, l.RetryExhausted)
			return err
		}
		f := l.Founder
		_, err := fmt.Fprintf(w, "id: %s\nemail: %s\nname: %s\ndiscoverable: %t\nonboarding: step %d, completed=%t\nattempts: %d\n",
			f.ID, f.Email, f.FullName, f.ProfileVisible, f.OnboardingStep, f.OnboardingCompleted, l.Attempts)
		return err
	})
}
