package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/foundernet/engine/internal/policy"
)

// NewPoliciesCommand prints the row level security script the migrations
// install, so it can be reviewed or applied by hand.
func NewPoliciesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "Print the founders RLS policies as SQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := struct {
				Table    string   `json:"table"`
				Policies []string `json:"policies"`
				SQL      string   `json:"sql"`
			}{policy.Founders.Qualified(), policy.Founders.Names(), policy.Founders.SQL()}

			return emit(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) error {
				_, err := io.WriteString(w, out.SQL)
				return err
			})
		},
	}
}
