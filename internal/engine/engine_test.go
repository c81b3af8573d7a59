package engine

import (
	"context"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/schematron/internal/query"
	"github.com/sentra/schematron/internal/schema"
	"github.com/sentra/schematron/internal/testutil"
)

const orderDoc = `<order><item><price>10</price></item><item><price>-1</price></item><item><price>5</price></item></order>`

func newTestEngine(sch *schema.Schema, tokens ...string) *Engine {
	if len(tokens) == 0 {
		tokens = []string{"run-1"}
	}
	return New(sch, query.NewXPath(), WithRunTokenGenerator(NewFixedGenerator(tokens...)))
}

func TestEngine_Validate_PriceScenario(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item",
		testutil.Assert("positive-price", "price > 0", "price must be positive"))
	doc := testutil.MustParseXML(t, orderDoc)

	eng := newTestEngine(sch)
	verdict, rep, err := eng.Validate(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, VerdictInvalid, verdict)
	require.Len(t, rep.Records, 3)

	for i, want := range []struct {
		outcome  bool
		location string
	}{
		{true, "/order[1]/item[1]"},
		{false, "/order[1]/item[2]"},
		{true, "/order[1]/item[3]"},
	} {
		rec := rep.Records[i]
		assert.Equal(t, int64(i+1), rec.Seq)
		assert.Equal(t, want.outcome, rec.Outcome)
		assert.Equal(t, want.location, rec.Location)
		assert.Equal(t, "positive-price", rec.AssertionID)
		assert.Equal(t, "price must be positive", rec.Message)
	}

	failed := rep.FailedAsserts()
	require.Len(t, failed, 1)
	assert.Equal(t, "/order[1]/item[2]", failed[0].Location)
}

func TestEngine_Run_Deterministic(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item",
		testutil.Assert("positive-price", "price > 0", "price must be positive"),
		testutil.Report("negative-price", "price < 0", "negative price seen"))
	doc := testutil.MustParseXML(t, orderDoc)

	eng := newTestEngine(sch, "run-x", "run-x")

	rep1, err := eng.Run(context.Background(), doc)
	require.NoError(t, err)
	rep2, err := eng.Run(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, rep1, rep2)
}

func TestEngine_Run_OrderPreserved(t *testing.T) {
	sch := &schema.Schema{
		Title: "ordering",
		Patterns: []schema.Pattern{
			{ID: "items", Rules: []schema.Rule{{
				ID: "r-item", Context: "item",
				Assertions: []schema.Assertion{testutil.Assert("a1", "true()", "ok")},
			}}},
			{ID: "root", Rules: []schema.Rule{{
				ID: "r-order", Context: "/order",
				Assertions: []schema.Assertion{testutil.Assert("a2", "true()", "ok")},
			}}},
		},
	}
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, rep.Records, 4)
	var patterns []string
	for i, rec := range rep.Records {
		assert.Equal(t, int64(i+1), rec.Seq, "seq must be dense and increasing")
		patterns = append(patterns, rec.PatternID)
	}
	assert.Equal(t, []string{"items", "items", "items", "root"}, patterns)
	assert.Equal(t, []string{"items", "root"}, rep.ActivePatterns)
}

func TestEngine_Run_FirstMatchPerPattern(t *testing.T) {
	sch := &schema.Schema{
		Title: "first match",
		Patterns: []schema.Pattern{
			{ID: "p1", Rules: []schema.Rule{
				{ID: "special", Context: "item[@sku='a']",
					Assertions: []schema.Assertion{testutil.Assert("", "@qty > 0", "qty must be positive")}},
				{ID: "general", Context: "item",
					Assertions: []schema.Assertion{testutil.Assert("", "true()", "ok")}},
			}},
			{ID: "p2", Rules: []schema.Rule{
				{ID: "all-items", Context: "item",
					Assertions: []schema.Assertion{testutil.Assert("", "true()", "ok")}},
			}},
		},
	}
	doc := testutil.MustParseXML(t, `<order><item sku="a" qty="0"/><item sku="b" qty="5"/></order>`)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, rep.Records, 4)

	// Within p1 the first matching rule claims the node; the general
	// rule only sees the second item.
	assert.Equal(t, "special", rep.Records[0].RuleID)
	assert.Equal(t, "/order[1]/item[1]", rep.Records[0].Location)
	assert.False(t, rep.Records[0].Outcome)
	assert.Equal(t, "general", rep.Records[1].RuleID)
	assert.Equal(t, "/order[1]/item[2]", rep.Records[1].Location)

	// Suppression does not leak across patterns: p2 matches both items.
	assert.Equal(t, "all-items", rep.Records[2].RuleID)
	assert.Equal(t, "/order[1]/item[1]", rep.Records[2].Location)
	assert.Equal(t, "all-items", rep.Records[3].RuleID)
	assert.Equal(t, "/order[1]/item[2]", rep.Records[3].Location)
}

func TestEngine_Validate_EmptyReportIsValid(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "missing",
		testutil.Assert("", "false()", "never evaluated"))
	doc := testutil.MustParseXML(t, orderDoc)

	verdict, rep, err := newTestEngine(sch).Validate(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, VerdictValid, verdict)
	assert.Empty(t, rep.Records)
	assert.Equal(t, []string{"p1"}, rep.ActivePatterns)
}

func TestEngine_Validate_ReportPolarity(t *testing.T) {
	doc := testutil.MustParseXML(t, orderDoc)

	// The same true condition: the assert passes, the report fires.
	sch := testutil.SingleRuleSchema(t, "/order",
		testutil.Assert("a1", "count(item) = 3", "expected three items"),
		testutil.Report("r1", "count(item) = 3", "order has three items"))

	verdict, rep, err := newTestEngine(sch).Validate(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, VerdictInvalidUnexpectedReport, verdict)
	require.Len(t, rep.Records, 2)
	assert.True(t, rep.Records[0].Outcome)
	assert.False(t, rep.Records[0].Failed())
	assert.True(t, rep.Records[1].Outcome)
	assert.True(t, rep.Records[1].Failed())

	fired := rep.FiredReports()
	require.Len(t, fired, 1)
	assert.Equal(t, "r1", fired[0].AssertionID)
}

func TestEngine_Validate_FailedAssertDominates(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "/order",
		testutil.Report("r1", "true()", "report fires"),
		testutil.Assert("a1", "false()", "assert fails"))
	doc := testutil.MustParseXML(t, orderDoc)

	verdict, _, err := newTestEngine(sch).Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, VerdictInvalid, verdict)
}

func TestEngine_Run_CancelledBeforeStart(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item", testutil.Assert("", "true()", "ok"))
	doc := testutil.MustParseXML(t, orderDoc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newTestEngine(sch).Run(ctx, doc)
	assert.Nil(t, rep)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))

	var ce *CancelledError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, ce.Err, context.Canceled)
}

// cancellingEval cancels the run's context after a number of
// evaluations, simulating cancellation arriving mid-run.
type cancellingEval struct {
	inner  query.Evaluator
	cancel context.CancelFunc
	after  int
	calls  int
}

func (e *cancellingEval) Evaluate(ctx context.Context, expr string, node *xmlquery.Node, bindings map[string]any) (query.Result, error) {
	e.calls++
	if e.calls > e.after {
		e.cancel()
		return nil, ctx.Err()
	}
	return e.inner.Evaluate(ctx, expr, node, bindings)
}

func TestEngine_Run_CancelledMidRun(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item", testutil.Assert("", "true()", "ok"))
	doc := testutil.MustParseXML(t, orderDoc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := New(sch,
		&cancellingEval{inner: query.NewXPath(), cancel: cancel, after: 2},
		WithRunTokenGenerator(NewFixedGenerator("run-1")),
	)

	rep, err := eng.Run(ctx, doc)
	assert.Nil(t, rep, "no partial report on cancellation")
	assert.True(t, IsCancelled(err))
}

func TestEngine_Run_UnknownPhase(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item", testutil.Assert("", "true()", "ok"))
	doc := testutil.MustParseXML(t, orderDoc)

	_, err := newTestEngine(sch).Run(context.Background(), doc, WithPhase("nope"))
	require.Error(t, err)

	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeUnknownPhase, ee.Code)
	assert.True(t, IsSchemaEvaluation(err))
}

func TestEngine_Run_UnknownParameter(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item", testutil.Assert("", "true()", "ok"))
	doc := testutil.MustParseXML(t, orderDoc)

	_, err := newTestEngine(sch).Run(context.Background(), doc, WithBinding("nope", 1))
	require.Error(t, err)

	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeUnknownParameter, ee.Code)
	assert.Contains(t, ee.Error(), "nope")
}

func TestEngine_Run_BindingOverridesGlobal(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item",
		testutil.Assert("", "price > $minPrice", "price too low"))
	sch.Lets = []schema.Let{{Name: "minPrice", Value: "0"}}
	doc := testutil.MustParseXML(t, orderDoc)

	eng := newTestEngine(sch, "run-1", "run-2")

	// Declared value: only the negative price fails.
	verdict, rep, err := eng.Validate(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, VerdictInvalid, verdict)
	assert.Len(t, rep.FailedAsserts(), 1)

	// Caller override below every price: all pass.
	verdict, rep, err = eng.Validate(context.Background(), doc,
		WithBinding("minPrice", -100))
	require.NoError(t, err)
	assert.Equal(t, VerdictValid, verdict)
	assert.Empty(t, rep.FailedAsserts())
}

func TestEngine_Run_LetScoping(t *testing.T) {
	sch := &schema.Schema{
		Title: "let scoping",
		Lets:  []schema.Let{{Name: "limit", Value: "1"}},
		Patterns: []schema.Pattern{
			{ID: "scoped", Lets: []schema.Let{{Name: "limit", Value: "3"}},
				Rules: []schema.Rule{{
					ID: "r1", Context: "/order",
					Assertions: []schema.Assertion{testutil.Assert("", "count(item) = $limit", "count mismatch")},
				}}},
			{ID: "global", Rules: []schema.Rule{{
				ID: "r2", Context: "/order",
				Assertions: []schema.Assertion{testutil.Assert("", "count(item) = $limit", "count mismatch")},
			}}},
		},
	}
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, rep.Records, 2)
	assert.True(t, rep.Records[0].Outcome, "pattern let shadows the global")
	assert.False(t, rep.Records[1].Outcome, "pattern lets do not leak to other patterns")
}

func TestEngine_Run_RuleLets(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item",
		testutil.Assert("", "$p > 0", "price must be positive"))
	sch.Patterns[0].Rules[0].Lets = []schema.Let{{Name: "p", Value: "number(price)"}}
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, rep.Records, 3)
	assert.True(t, rep.Records[0].Outcome)
	assert.False(t, rep.Records[1].Outcome)
	assert.True(t, rep.Records[2].Outcome)
}

func TestEngine_Run_Phases(t *testing.T) {
	sch := &schema.Schema{
		Title:        "phased",
		DefaultPhase: "minimal",
		Phases: []schema.Phase{
			{ID: "minimal", ActivePatterns: []string{"items"}},
			{ID: "full", ActivePatterns: []string{"items", "root"}},
		},
		Patterns: []schema.Pattern{
			{ID: "items", Rules: []schema.Rule{{
				ID: "r1", Context: "item",
				Assertions: []schema.Assertion{testutil.Assert("", "true()", "ok")},
			}}},
			{ID: "root", Rules: []schema.Rule{{
				ID: "r2", Context: "/order",
				Assertions: []schema.Assertion{testutil.Assert("", "true()", "ok")},
			}}},
		},
	}
	doc := testutil.MustParseXML(t, orderDoc)
	eng := newTestEngine(sch, "a", "b", "c")

	rep, err := eng.Run(context.Background(), doc, WithPhase("minimal"))
	require.NoError(t, err)
	assert.Equal(t, "minimal", rep.Phase)
	assert.Equal(t, []string{"items"}, rep.ActivePatterns)
	assert.Len(t, rep.Records, 3)

	rep, err = eng.Run(context.Background(), doc, WithPhase(schema.PhaseDefault))
	require.NoError(t, err)
	assert.Equal(t, "minimal", rep.Phase)
	assert.Len(t, rep.Records, 3)

	rep, err = eng.Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, schema.PhaseAll, rep.Phase)
	assert.Len(t, rep.Records, 4)
}

func TestEngine_Run_PhaseLets(t *testing.T) {
	sch := &schema.Schema{
		Title: "phase lets",
		Phases: []schema.Phase{{
			ID:             "strict",
			ActivePatterns: []string{"p1"},
			Lets:           []schema.Let{{Name: "min", Value: "0"}},
		}},
		Patterns: []schema.Pattern{{
			ID: "p1", Rules: []schema.Rule{{
				ID: "r1", Context: "item",
				Assertions: []schema.Assertion{testutil.Assert("", "price > $min", "price too low")},
			}},
		}},
	}
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc, WithPhase("strict"))
	require.NoError(t, err)
	assert.Len(t, rep.FailedAsserts(), 1)
}

func TestEngine_Run_TestEvalError(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item",
		testutil.Assert("bad", "][", "broken"))
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	assert.Nil(t, rep)
	require.Error(t, err)

	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeTestEval, ee.Code)
	assert.Equal(t, "bad", ee.AssertionID)
	assert.True(t, IsAssertionEvaluation(err))
	assert.False(t, IsSchemaEvaluation(err))
	assert.ErrorIs(t, err, query.ErrInvalidExpression)
}

func TestEngine_Run_ContextEvalError(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "][", testutil.Assert("", "true()", "ok"))
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	assert.Nil(t, rep)

	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeContextEval, ee.Code)
	assert.True(t, IsSchemaEvaluation(err))
}

// scalarEval always returns a scalar, never a node-set.
type scalarEval struct{}

func (scalarEval) Evaluate(ctx context.Context, expr string, node *xmlquery.Node, bindings map[string]any) (query.Result, error) {
	return query.Scalar{Value: true}, nil
}

func TestEngine_Run_ContextMustSelectNodes(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item", testutil.Assert("", "true()", "ok"))
	doc := testutil.MustParseXML(t, orderDoc)

	eng := New(sch, scalarEval{}, WithRunTokenGenerator(NewFixedGenerator("run-1")))
	_, err := eng.Run(context.Background(), doc)

	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeContextEval, ee.Code)
	assert.Contains(t, ee.Message, "did not select nodes")
}

func TestEngine_Run_LetEvalError(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item", testutil.Assert("", "true()", "ok"))
	sch.Lets = []schema.Let{{Name: "broken", Value: "]["}}
	doc := testutil.MustParseXML(t, orderDoc)

	_, err := newTestEngine(sch).Run(context.Background(), doc)

	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeLetEval, ee.Code)
	assert.Contains(t, ee.Error(), "$broken")
}

func TestEngine_Run_MessagePlaceholders(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item[1]", schema.Assertion{
		Kind: schema.KindAssert,
		ID:   "msg",
		Test: "false()",
		Message: schema.Message{Parts: []schema.Part{
			schema.Text("element "),
			schema.Name{},
			schema.Text(" has price "),
			schema.ValueOf{Select: "string(price)"},
		}},
	})
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, rep.Records, 1)
	assert.Equal(t, "element item has price 10", rep.Records[0].Message)
}

func TestEngine_Run_UnboundPlaceholderWarns(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item[1]", schema.Assertion{
		Kind: schema.KindAssert,
		ID:   "msg",
		Test: "false()",
		Message: schema.Message{Parts: []schema.Part{
			schema.Text("value: "),
			schema.ValueOf{Select: "$nope"},
		}},
	})
	doc := testutil.MustParseXML(t, orderDoc)

	var warnings []Warning
	rep, err := newTestEngine(sch).Run(context.Background(), doc,
		WithDiagnosticSink(func(w Warning) { warnings = append(warnings, w) }))
	require.NoError(t, err, "unbound placeholder is recoverable")

	require.Len(t, rep.Records, 1)
	assert.Equal(t, `value: <value-of select="$nope"/>`, rep.Records[0].Message)

	require.Len(t, warnings, 1)
	assert.Equal(t, WarnUnboundPlaceholder, warnings[0].Code)
	assert.Equal(t, "$nope", warnings[0].Expression)
}

func TestEngine_Run_MalformedPlaceholderFatal(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item[1]", schema.Assertion{
		Kind:    schema.KindAssert,
		ID:      "msg",
		Test:    "false()",
		Message: schema.Message{Parts: []schema.Part{schema.ValueOf{Select: "]["}}},
	})
	doc := testutil.MustParseXML(t, orderDoc)

	_, err := newTestEngine(sch).Run(context.Background(), doc)

	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, ErrCodeMessageEval, ee.Code)
	assert.True(t, IsAssertionEvaluation(err))
}

func TestEngine_Run_Diagnostics(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "item[@sku]", schema.Assertion{
		Kind:        schema.KindAssert,
		ID:          "with-diag",
		Test:        "false()",
		Message:     schema.TextMessage("failed"),
		Diagnostics: []string{"d1", "ghost"},
	})
	sch.Diagnostics = []schema.Diagnostic{{
		ID: "d1",
		Message: schema.Message{Parts: []schema.Part{
			schema.Text("sku is "),
			schema.ValueOf{Select: "string(@sku)"},
		}},
	}}
	doc := testutil.MustParseXML(t, `<order><item sku="a"/></order>`)

	var warnings []Warning
	rep, err := newTestEngine(sch).Run(context.Background(), doc,
		WithDiagnosticSink(func(w Warning) { warnings = append(warnings, w) }))
	require.NoError(t, err)

	require.Len(t, rep.Records, 1)
	require.Len(t, rep.Records[0].Diagnostics, 1)
	assert.Equal(t, DiagnosticText{ID: "d1", Text: "sku is a"}, rep.Records[0].Diagnostics[0])

	require.Len(t, warnings, 1)
	assert.Equal(t, WarnUnknownDiagnostic, warnings[0].Code)
	assert.Contains(t, warnings[0].Message, "ghost")
}

func TestEngine_Run_MessageNFCNormalized(t *testing.T) {
	// "e" followed by a combining acute accent normalizes to U+00E9.
	sch := testutil.SingleRuleSchema(t, "item[1]",
		testutil.Assert("", "false()", "cafe\u0301"))
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", rep.Records[0].Message)
}

func TestEngine_Run_AbstractRulesSkipped(t *testing.T) {
	sch := &schema.Schema{
		Title: "abstract",
		Patterns: []schema.Pattern{{
			ID: "p1",
			Rules: []schema.Rule{
				{ID: "base", Abstract: true,
					Assertions: []schema.Assertion{testutil.Assert("", "false()", "never runs")}},
				{ID: "concrete", Context: "/order",
					Assertions: []schema.Assertion{testutil.Assert("", "true()", "ok")}},
			},
		}},
	}
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, rep.Records, 1)
	assert.Equal(t, "concrete", rep.Records[0].RuleID)
}

func TestEngine_Run_RoleAndFlagCarried(t *testing.T) {
	sch := testutil.SingleRuleSchema(t, "/order", schema.Assertion{
		Kind:    schema.KindAssert,
		ID:      "tagged",
		Test:    "false()",
		Role:    "warning",
		Flag:    "review",
		Message: schema.TextMessage("tagged failure"),
	})
	doc := testutil.MustParseXML(t, orderDoc)

	rep, err := newTestEngine(sch).Run(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, rep.Records, 1)
	assert.Equal(t, "warning", rep.Records[0].Role)
	assert.Equal(t, "review", rep.Records[0].Flag)
}
