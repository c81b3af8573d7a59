package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/sentra/schematron/internal/compiler"
	"github.com/sentra/schematron/internal/engine"
	"github.com/sentra/schematron/internal/loader"
	"github.com/sentra/schematron/internal/query"
	"github.com/sentra/schematron/internal/schema"
)

// Result is the outcome of executing one scenario.
type Result struct {
	Scenario *Scenario
	Verdict  engine.Verdict
	Report   *engine.Report

	// Warnings collected through the run's diagnostic sink.
	Warnings []engine.Warning

	// Failures lists expectation mismatches. Empty means the scenario
	// passed.
	Failures []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Run executes a scenario: loads the schema and document, runs the
// engine with a fixed token and checks the expectations. A returned
// error means the scenario could not be executed at all; expectation
// mismatches land in Result.Failures instead.
func Run(ctx context.Context, sc *Scenario) (*Result, error) {
	sch, err := LoadSchemaFile(sc.Schema)
	if err != nil {
		return nil, err
	}

	doc, err := parseDocument(sc.Document)
	if err != nil {
		return nil, err
	}

	token := sc.Token
	if token == "" {
		token = sc.Name
	}

	eng := engine.New(sch,
		query.NewXPath(query.WithNamespaces(sch.NamespaceMap())),
		engine.WithRunTokenGenerator(engine.NewFixedGenerator(token)),
	)

	res := &Result{Scenario: sc}

	opts := []engine.RunOption{
		engine.WithDiagnosticSink(func(w engine.Warning) {
			res.Warnings = append(res.Warnings, w)
		}),
	}
	if sc.Phase != "" {
		opts = append(opts, engine.WithPhase(sc.Phase))
	}
	for _, b := range sc.Bindings {
		opts = append(opts, engine.WithBinding(b.Name, b.Value))
	}

	verdict, rep, err := eng.Validate(ctx, doc, opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	res.Verdict = verdict
	res.Report = rep

	checkExpectations(res)
	return res, nil
}

// LoadSchemaFile loads a schema by file extension: .cue through the CUE
// compiler, anything else through the Schematron XML loader.
func LoadSchemaFile(path string) (*schema.Schema, error) {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return compiler.CompileFile(path)
	}
	return loader.LoadFile(path)
}

func parseDocument(path string) (*xmlquery.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", path, err)
	}
	return doc, nil
}

func checkExpectations(res *Result) {
	sc := res.Scenario

	if got := res.Verdict.String(); got != sc.Expect.Verdict {
		res.Failures = append(res.Failures,
			fmt.Sprintf("verdict: expected %s, got %s", sc.Expect.Verdict, got))
	}

	if sc.Expect.RecordCount != nil && len(res.Report.Records) != *sc.Expect.RecordCount {
		res.Failures = append(res.Failures,
			fmt.Sprintf("record count: expected %d, got %d",
				*sc.Expect.RecordCount, len(res.Report.Records)))
	}

	for i, want := range sc.Expect.Records {
		if !anyRecordMatches(res.Report, want) {
			res.Failures = append(res.Failures,
				fmt.Sprintf("records[%d]: no firing record matches %s", i, describeExpectation(want)))
		}
	}
}
