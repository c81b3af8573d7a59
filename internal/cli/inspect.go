package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentra/schematron/internal/compiler"
	"github.com/sentra/schematron/internal/harness"
	"github.com/sentra/schematron/internal/schema"
)

// schemaSummary is the json payload of the inspect command.
type schemaSummary struct {
	Title        string                     `json:"title"`
	QueryBinding string                     `json:"query_binding,omitempty"`
	DefaultPhase string                     `json:"default_phase,omitempty"`
	Namespaces   []schema.Namespace         `json:"namespaces,omitempty"`
	Globals      []string                   `json:"globals,omitempty"`
	Phases       []phaseSummary             `json:"phases,omitempty"`
	Patterns     []patternSummary           `json:"patterns"`
	Diagnostics  []string                   `json:"diagnostics,omitempty"`
	Errors       []compiler.ValidationError `json:"errors,omitempty"`
}

type phaseSummary struct {
	ID             string   `json:"id"`
	ActivePatterns []string `json:"active_patterns"`
}

type patternSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Rules      int    `json:"rules"`
	Assertions int    `json:"assertions"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <schema>",
		Short: "Inspect a schema and check its consistency",
		Long: `Load a schema, run consistency checks and print a summary:
phases, patterns, rule and assertion counts, globals and diagnostics.

Exit code 0 for a consistent schema, 1 when consistency checks fail,
2 when the schema cannot be loaded at all.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, rootOpts, args[0])
		},
	}
}

func runInspect(cmd *cobra.Command, rootOpts *RootOptions, path string) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	sch, err := harness.LoadSchemaFile(path)
	if err != nil {
		_ = formatter.Error("SCHEMA_LOAD", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load schema", err)
	}

	sum := summarize(sch)
	sum.Errors = compiler.Validate(sch)

	if rootOpts.Format == "json" {
		status := "ok"
		if len(sum.Errors) > 0 {
			status = "error"
		}
		if err := formatter.JSON(Response{Status: status, Data: sum}); err != nil {
			return WrapExitError(ExitCommandError, "encode output", err)
		}
	} else {
		printSummary(formatter, sum)
	}

	if len(sum.Errors) > 0 {
		return NewExitError(ExitInvalid, fmt.Sprintf("schema has %d consistency error(s)", len(sum.Errors)))
	}
	return nil
}

func summarize(sch *schema.Schema) *schemaSummary {
	sum := &schemaSummary{
		Title:        sch.Title,
		QueryBinding: sch.QueryBinding,
		DefaultPhase: sch.DefaultPhase,
		Namespaces:   sch.Namespaces,
	}
	for _, l := range sch.Lets {
		sum.Globals = append(sum.Globals, l.Name)
	}
	for _, p := range sch.Phases {
		sum.Phases = append(sum.Phases, phaseSummary{ID: p.ID, ActivePatterns: p.ActivePatterns})
	}
	for _, p := range sch.Patterns {
		ps := patternSummary{ID: p.ID, Title: p.Title, Rules: len(p.Rules)}
		for _, r := range p.Rules {
			ps.Assertions += len(r.Assertions)
		}
		sum.Patterns = append(sum.Patterns, ps)
	}
	for _, d := range sch.Diagnostics {
		sum.Diagnostics = append(sum.Diagnostics, d.ID)
	}
	return sum
}

func printSummary(formatter *OutputFormatter, sum *schemaSummary) {
	w := formatter.Writer

	fmt.Fprintf(w, "Schema: %s\n", sum.Title)
	if sum.QueryBinding != "" {
		fmt.Fprintf(w, "Query binding: %s\n", sum.QueryBinding)
	}
	if sum.DefaultPhase != "" {
		fmt.Fprintf(w, "Default phase: %s\n", sum.DefaultPhase)
	}
	for _, ns := range sum.Namespaces {
		fmt.Fprintf(w, "Namespace: %s = %s\n", ns.Prefix, ns.URI)
	}
	if len(sum.Globals) > 0 {
		fmt.Fprintf(w, "Globals: %v\n", sum.Globals)
	}
	for _, p := range sum.Phases {
		fmt.Fprintf(w, "Phase %s: active %v\n", p.ID, p.ActivePatterns)
	}
	for _, p := range sum.Patterns {
		title := ""
		if p.Title != "" {
			title = fmt.Sprintf(" (%s)", p.Title)
		}
		fmt.Fprintf(w, "Pattern %s%s: %d rule(s), %d assertion(s)\n", p.ID, title, p.Rules, p.Assertions)
	}
	if len(sum.Diagnostics) > 0 {
		fmt.Fprintf(w, "Diagnostics: %v\n", sum.Diagnostics)
	}

	if len(sum.Errors) == 0 {
		fmt.Fprintln(w, "✓ Schema is consistent")
		return
	}
	fmt.Fprintln(w, "✗ Consistency errors:")
	for _, e := range sum.Errors {
		fmt.Fprintf(w, "  %s [%s]: %s\n", e.Field, e.Code, e.Message)
	}
}
