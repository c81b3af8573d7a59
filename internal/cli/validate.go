package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/spf13/cobra"

	"github.com/sentra/schematron/internal/engine"
	"github.com/sentra/schematron/internal/harness"
	"github.com/sentra/schematron/internal/query"
	"github.com/sentra/schematron/internal/store"
	"github.com/sentra/schematron/internal/svrl"
)

// validateOptions holds the validate command's flags.
type validateOptions struct {
	Phase   string
	Binds   []string
	SVRL    string
	Archive string
}

// validateResult is the json payload for one validated document.
type validateResult struct {
	Document string           `json:"document"`
	Verdict  string           `json:"verdict"`
	Valid    bool             `json:"valid"`
	Report   *engine.Report   `json:"report"`
	Warnings []engine.Warning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <schema> <document>...",
		Short: "Validate XML documents against a schema",
		Long: `Validate one or more XML documents against a Schematron schema.

The schema is loaded by extension: .cue through the CUE dialect,
anything else as Schematron XML. Exit code 0 means every document is
valid, 1 means at least one is invalid, 2 means the command itself
failed (unreadable files, schema errors, unknown phase).`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, opts, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&opts.Phase, "phase", "", "active phase (default: all patterns; #DEFAULT selects the schema's default phase)")
	cmd.Flags().StringArrayVar(&opts.Binds, "bind", nil, "variable binding name=value, overrides a schema global (repeatable)")
	cmd.Flags().StringVar(&opts.SVRL, "svrl", "", "write the SVRL report to this file (- for stdout)")
	cmd.Flags().StringVar(&opts.Archive, "archive", "", "archive runs to this SQLite database")

	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, opts *validateOptions, schemaPath string, docPaths []string) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	sch, err := harness.LoadSchemaFile(schemaPath)
	if err != nil {
		_ = formatter.Error("SCHEMA_LOAD", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load schema", err)
	}
	formatter.VerboseLog("loaded schema %q: %d pattern(s), %d phase(s)",
		sch.Title, len(sch.Patterns), len(sch.Phases))

	bindings, err := parseBindings(opts.Binds)
	if err != nil {
		_ = formatter.Error("BAD_BINDING", err.Error(), nil)
		return WrapExitError(ExitCommandError, "parse bindings", err)
	}

	var archive *store.Store
	if opts.Archive != "" {
		archive, err = store.Open(opts.Archive)
		if err != nil {
			_ = formatter.Error("ARCHIVE_OPEN", err.Error(), nil)
			return WrapExitError(ExitCommandError, "open archive", err)
		}
		defer archive.Close()
	}

	eng := engine.New(sch, query.NewXPath(query.WithNamespaces(sch.NamespaceMap())))

	runOpts := []engine.RunOption{}
	if opts.Phase != "" {
		runOpts = append(runOpts, engine.WithPhase(opts.Phase))
	}
	runOpts = append(runOpts, engine.WithBindings(bindings...))

	allValid := true
	var results []validateResult
	for _, path := range docPaths {
		res, err := validateDocument(cmd, formatter, eng, archive, opts, path, runOpts)
		if err != nil {
			return err
		}
		if !res.Valid {
			allValid = false
		}
		results = append(results, *res)
	}

	if rootOpts.Format == "json" {
		if err := formatter.JSON(Response{Status: "ok", Data: results}); err != nil {
			return WrapExitError(ExitCommandError, "encode output", err)
		}
	}

	if !allValid {
		return NewExitError(ExitInvalid, "validation failed")
	}
	return nil
}

func validateDocument(cmd *cobra.Command, formatter *OutputFormatter, eng *engine.Engine, archive *store.Store, opts *validateOptions, path string, runOpts []engine.RunOption) (*validateResult, error) {
	f, err := os.Open(path)
	if err != nil {
		_ = formatter.Error("DOCUMENT_OPEN", err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "open document", err)
	}
	doc, err := xmlquery.Parse(f)
	f.Close()
	if err != nil {
		_ = formatter.Error("DOCUMENT_PARSE", fmt.Sprintf("%s: %v", path, err), nil)
		return nil, WrapExitError(ExitCommandError, "parse document", err)
	}

	res := validateResult{Document: path}
	docOpts := append([]engine.RunOption{
		engine.WithDiagnosticSink(func(w engine.Warning) {
			res.Warnings = append(res.Warnings, w)
		}),
	}, runOpts...)

	verdict, rep, err := eng.Validate(cmd.Context(), doc, docOpts...)
	if err != nil {
		_ = formatter.Error(runErrorCode(err), err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "run validation", err)
	}
	res.Verdict = verdict.String()
	res.Valid = verdict.IsValid()
	res.Report = rep

	if formatter.Format == "text" {
		printTextReport(formatter, path, verdict, rep, res.Warnings)
	}

	if opts.SVRL != "" {
		if err := writeSVRL(cmd, opts.SVRL, rep); err != nil {
			return nil, WrapExitError(ExitCommandError, "write svrl", err)
		}
	}
	if archive != nil {
		if _, err := archive.WriteRun(cmd.Context(), rep, verdict); err != nil {
			return nil, WrapExitError(ExitCommandError, "archive run", err)
		}
	}
	return &res, nil
}

func printTextReport(formatter *OutputFormatter, path string, verdict engine.Verdict, rep *engine.Report, warnings []engine.Warning) {
	w := formatter.Writer

	mark := "✓"
	if !verdict.IsValid() {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s: %s (run %s, phase %s, %d record(s))\n",
		mark, path, verdict, rep.RunToken, rep.Phase, len(rep.Records))

	for _, rec := range rep.Records {
		if !rec.Failed() && !formatter.Verbose {
			continue
		}
		status := "ok"
		if rec.Failed() {
			status = "failed"
		}
		fmt.Fprintf(w, "  [%s %s] %s at %s", rec.Kind, status, ruleRef(rec), rec.Location)
		if rec.Message != "" {
			fmt.Fprintf(w, ": %s", rec.Message)
		}
		fmt.Fprintln(w)
		for _, d := range rec.Diagnostics {
			fmt.Fprintf(w, "    diagnostic %s: %s\n", d.ID, d.Text)
		}
	}
	for _, warn := range warnings {
		fmt.Fprintf(w, "  warning [%s] %s\n", warn.Code, warn.Message)
	}
}

func ruleRef(rec engine.FiringRecord) string {
	ref := rec.PatternID + "/" + rec.RuleID
	if rec.AssertionID != "" {
		ref += "/" + rec.AssertionID
	}
	return ref
}

func writeSVRL(cmd *cobra.Command, path string, rep *engine.Report) error {
	data := svrl.Bytes(rep)
	if path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// runErrorCode maps an engine run error to an output code.
func runErrorCode(err error) string {
	var evalErr *engine.EvaluationError
	if errors.As(err, &evalErr) {
		return string(evalErr.Code)
	}
	if engine.IsCancelled(err) {
		return "CANCELLED"
	}
	return "RUN_ERROR"
}

// parseBindings parses repeated name=value flags. Values that look like
// numbers or booleans bind typed; everything else binds as a string.
func parseBindings(binds []string) ([]engine.Binding, error) {
	var out []engine.Binding
	for _, b := range binds {
		name, value, ok := strings.Cut(b, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed binding %q: want name=value", b)
		}
		out = append(out, engine.Binding{Name: name, Value: parseBindingValue(value)})
	}
	return out, nil
}

func parseBindingValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
