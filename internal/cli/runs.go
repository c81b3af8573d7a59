package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentra/schematron/internal/store"
	"github.com/sentra/schematron/internal/svrl"
)

// NewRunsCommand creates the runs command group for the archive.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var archive string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse archived validation runs",
	}
	cmd.PersistentFlags().StringVar(&archive, "archive", "schematron.db", "path to the archive database")

	cmd.AddCommand(newRunsListCommand(rootOpts, &archive))
	cmd.AddCommand(newRunsShowCommand(rootOpts, &archive))

	return cmd
}

func newRunsListCommand(rootOpts *RootOptions, archive *string) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List archived runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}

			st, err := store.Open(*archive)
			if err != nil {
				_ = formatter.Error("ARCHIVE_OPEN", err.Error(), nil)
				return WrapExitError(ExitCommandError, "open archive", err)
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context())
			if err != nil {
				_ = formatter.Error("ARCHIVE_READ", err.Error(), nil)
				return WrapExitError(ExitCommandError, "list runs", err)
			}

			if rootOpts.Format == "json" {
				return formatter.JSON(Response{Status: "ok", Data: runs})
			}
			if len(runs) == 0 {
				fmt.Fprintln(formatter.Writer, "no archived runs")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(formatter.Writer, "%s  %-26s  %-10s  phase=%s  records=%d  %s\n",
					r.ArchivedAt.Format("2006-01-02 15:04:05"),
					r.Token, r.Verdict, r.Phase, r.RecordCount, r.SchemaTitle)
			}
			return nil
		},
	}
}

func newRunsShowCommand(rootOpts *RootOptions, archive *string) *cobra.Command {
	var asSVRL bool

	cmd := &cobra.Command{
		Use:           "show <token>",
		Short:         "Show one archived run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:    rootOpts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   rootOpts.Verbose,
			}

			st, err := store.Open(*archive)
			if err != nil {
				_ = formatter.Error("ARCHIVE_OPEN", err.Error(), nil)
				return WrapExitError(ExitCommandError, "open archive", err)
			}
			defer st.Close()

			rep, verdict, err := st.ReadRun(cmd.Context(), args[0])
			if err != nil {
				_ = formatter.Error("ARCHIVE_READ", err.Error(), nil)
				return WrapExitError(ExitCommandError, "read run", err)
			}

			if asSVRL {
				_, err := formatter.Writer.Write(svrl.Bytes(rep))
				return err
			}
			if rootOpts.Format == "json" {
				return formatter.JSON(Response{Status: "ok", Data: map[string]any{
					"verdict": verdict.String(),
					"report":  rep,
				}})
			}
			printTextReport(formatter, rep.RunToken, verdict, rep, nil)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asSVRL, "svrl", false, "print the run as an SVRL document")
	return cmd
}
