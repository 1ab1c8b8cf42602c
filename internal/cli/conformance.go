package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/intelstore/internal/harness"
)

// NewConformanceCommand creates the conformance command, which replays
// store scenarios against a scratch database.
func NewConformanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conformance <scenario-dir>",
		Short: "Run store conformance scenarios",
		Long: `Run every *.yaml scenario in a directory against a fresh scratch
database and report which ones fail. The configured database is not touched.

Example:
  intelstore conformance internal/harness/testdata/scenarios`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)

			result, err := harness.RunSuite(cmd.Context(), args[0])
			if err != nil {
				var noScenarios *harness.NoScenariosError
				if errors.As(err, &noScenarios) {
					_ = out.Error(ErrCodeInput, err.Error(), nil)
					return WrapExitError(ExitCommandError, "conformance", err)
				}
				return out.Fail("conformance", err)
			}

			if out.Format == "json" {
				if err := out.Success(result); err != nil {
					return err
				}
			} else {
				for _, f := range result.Failures {
					fmt.Fprintf(out.Writer, "FAIL %s\n", f.ScenarioPath)
					for _, msg := range f.Errors {
						fmt.Fprintf(out.Writer, "  %s\n", msg)
					}
				}
				fmt.Fprintf(out.Writer, "%d scenario(s): %d passed, %d failed\n",
					result.TotalScenarios, result.Passed, result.Failed)
			}

			if result.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
			}
			return nil
		},
	}
}
