package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentra/schematron/internal/harness"
)

// scenarioResult is the json payload for one executed scenario.
type scenarioResult struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Verdict  string   `json:"verdict"`
	Records  int      `json:"records"`
	Failures []string `json:"failures,omitempty"`
}

// NewTestCommand creates the test command, which runs scenario files.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <scenario.yaml>...",
		Short: "Run validation scenarios",
		Long: `Execute declarative YAML scenarios: validate the named document
against the named schema and check the expected verdict and records.

Exit code 0 when every scenario passes, 1 when any fails, 2 when a
scenario cannot be executed.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, rootOpts, args)
		},
	}
}

func runTest(cmd *cobra.Command, rootOpts *RootOptions, paths []string) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	passed := 0
	var results []scenarioResult
	for _, path := range paths {
		sc, err := harness.LoadScenario(path)
		if err != nil {
			_ = formatter.Error("SCENARIO_LOAD", err.Error(), nil)
			return WrapExitError(ExitCommandError, "load scenario", err)
		}

		res, err := harness.Run(cmd.Context(), sc)
		if err != nil {
			_ = formatter.Error("SCENARIO_RUN", err.Error(), nil)
			return WrapExitError(ExitCommandError, "run scenario", err)
		}

		if res.Passed() {
			passed++
		}
		results = append(results, scenarioResult{
			Name:     sc.Name,
			Passed:   res.Passed(),
			Verdict:  res.Verdict.String(),
			Records:  len(res.Report.Records),
			Failures: res.Failures,
		})

		if rootOpts.Format == "text" {
			printScenarioResult(formatter, res)
		}
	}

	if rootOpts.Format == "json" {
		if err := formatter.JSON(Response{Status: "ok", Data: results}); err != nil {
			return WrapExitError(ExitCommandError, "encode output", err)
		}
	} else {
		fmt.Fprintf(formatter.Writer, "%d/%d scenario(s) passed\n", passed, len(results))
	}

	if passed != len(results) {
		return NewExitError(ExitInvalid, fmt.Sprintf("%d scenario(s) failed", len(results)-passed))
	}
	return nil
}

func printScenarioResult(formatter *OutputFormatter, res *harness.Result) {
	w := formatter.Writer
	if res.Passed() {
		fmt.Fprintf(w, "✓ %s: %s, %d record(s)\n",
			res.Scenario.Name, res.Verdict, len(res.Report.Records))
		return
	}
	fmt.Fprintf(w, "✗ %s\n", res.Scenario.Name)
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
