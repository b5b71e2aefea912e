package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foundernet/engine/internal/migrations"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and create the avatar bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := migrations.Run(cmd.Context(), a.DB); err != nil {
				return WrapExitError(ExitFailure, "migrate", err)
			}
			if err := a.Bucket.Ensure(); err != nil {
				return WrapExitError(ExitFailure, "create avatar bucket", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations completed")
			return nil
		},
	}
}
