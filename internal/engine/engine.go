package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/antchfx/xmlquery"

	"github.com/sentra/schematron/internal/query"
	"github.com/sentra/schematron/internal/schema"
)

// Engine applies one compiled schema to documents.
//
// An Engine is cheap and holds no per-run state: Run and Validate may
// be called concurrently from any number of goroutines. The schema is
// read-only; all mutable state lives in the run.
type Engine struct {
	schema    *schema.Schema
	eval      query.Evaluator
	tokens    RunTokenGenerator
	validator Validator
}

// New creates an Engine for the given compiled schema and query
// evaluator.
func New(sch *schema.Schema, eval query.Evaluator, opts ...Option) *Engine {
	e := &Engine{
		schema:    sch,
		eval:      eval,
		tokens:    UUIDv7Generator{},
		validator: DefaultValidator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Schema returns the compiled schema this engine applies.
func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// Run validates the document rooted at doc and returns the complete
// report.
//
// The run either yields a complete, consistent report or fails
// atomically: *EvaluationError for schema/assertion expression
// failures, *CancelledError when the context is cancelled. No partial
// report is ever returned.
func (e *Engine) Run(ctx context.Context, doc *xmlquery.Node, opts ...RunOption) (*Report, error) {
	cfg := newRunConfig(opts)

	if err := ctx.Err(); err != nil {
		return nil, &CancelledError{Err: err}
	}

	patterns, err := e.schema.PatternsForPhase(cfg.phase)
	if err != nil {
		return nil, &EvaluationError{
			Code:    ErrCodeUnknownPhase,
			Message: err.Error(),
		}
	}

	token := e.tokens.Generate()
	r := &run{
		engine:  e,
		cfg:     cfg,
		builder: newReportBuilder(),
	}

	slog.Debug("validation run starting",
		"run", token,
		"schema", e.schema.Title,
		"phase", e.resolvePhase(cfg.phase),
		"patterns", len(patterns),
	)

	env, err := r.globalEnv(ctx, doc)
	if err != nil {
		return nil, asRunError(err)
	}

	activeIDs := make([]string, len(patterns))
	for i, pat := range patterns {
		activeIDs[i] = pat.ID
		if err := r.runPattern(ctx, pat, doc, env); err != nil {
			return nil, asRunError(err)
		}
	}

	rep := r.builder.finalize(token, e.schema.Title, e.resolvePhase(cfg.phase), activeIDs)

	slog.Debug("validation run complete",
		"run", token,
		"records", len(rep.Records),
	)

	return rep, nil
}

// Validate runs the engine and judges the report with the configured
// validator. The verdict is meaningful only when err is nil.
func (e *Engine) Validate(ctx context.Context, doc *xmlquery.Node, opts ...RunOption) (Verdict, *Report, error) {
	rep, err := e.Run(ctx, doc, opts...)
	if err != nil {
		return VerdictInvalid, nil, err
	}
	return e.validator.Judge(rep), rep, nil
}

// resolvePhase maps the phase selector to the name recorded on the
// report: sentinels resolve to the concrete phase where possible.
func (e *Engine) resolvePhase(selector string) string {
	switch selector {
	case "":
		return schema.PhaseAll
	case schema.PhaseDefault:
		if e.schema.DefaultPhase != "" {
			return e.schema.DefaultPhase
		}
		return schema.PhaseAll
	default:
		return selector
	}
}

// asRunError converts context errors surfacing from expression
// evaluation into the cancellation outcome; everything else passes
// through.
func asRunError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CancelledError{Err: err}
	}
	return err
}
