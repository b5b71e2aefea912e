package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/foundernet/engine/internal/migrations"
)

type doctorResult struct {
	Report *migrations.Report `json:"report"`
	Drift  []string           `json:"drift"`
}

// NewDoctorCommand compares the live schema with the declared one and exits
// non-zero when they differ.
func NewDoctorCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Report drift between the database and the declared policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := migrations.Inspect(cmd.Context(), a.DB)
			if err != nil {
				return WrapExitError(ExitCommandError, "inspect schema", err)
			}
			if err := a.Bucket.Verify(); err != nil {
				report.BucketError = err.Error()
			}
			return writeDoctor(cmd.OutOrStdout(), rootOpts.Format, report)
		},
	}
}

func writeDoctor(w io.Writer, format string, report *migrations.Report) error {
	res := doctorResult{Report: report, Drift: report.Drift()}
	if res.Drift == nil {
		res.Drift = []string{}
	}
	err := emit(w, format, res, func(w io.Writer) error {
		if len(res.Drift) == 0 {
			_, err := fmt.Fprintln(w, "ok: schema matches declared policies")
			return err
		}
		for _, d := range res.Drift {
			if _, err := fmt.Fprintf(w, "drift: %s\n", d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(res.Drift) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d drift finding(s)", len(res.Drift)))
	}
	return nil
}
