package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/antchfx/xmlquery"
	"golang.org/x/text/unicode/norm"

	"github.com/sentra/schematron/internal/query"
	"github.com/sentra/schematron/internal/schema"
)

// evaluateRule runs every assertion of the rule against one matched
// node, emitting one firing record per assertion in declaration order.
func (r *run) evaluateRule(ctx context.Context, pat schema.Pattern, rule schema.Rule, node *xmlquery.Node, env map[string]any) error {
	renv := env
	if len(rule.Lets) > 0 {
		renv = cloneEnv(env)
		for _, let := range rule.Lets {
			val, err := r.evalLetIn(ctx, pat.ID, rule.ID, let, node, renv)
			if err != nil {
				return err
			}
			renv[let.Name] = val
		}
	}

	location := query.Location(node)

	for _, a := range rule.Assertions {
		res, err := r.engine.eval.Evaluate(ctx, a.Test, node, renv)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return &EvaluationError{
				Code:        ErrCodeTestEval,
				PatternID:   pat.ID,
				RuleID:      rule.ID,
				AssertionID: a.ID,
				Expression:  a.Test,
				Message:     "test expression failed",
				Err:         err,
			}
		}
		outcome := query.Truth(res)

		msg, err := r.renderMessage(ctx, pat, rule, a, a.Message, node, renv)
		if err != nil {
			return err
		}

		diags, err := r.renderDiagnostics(ctx, pat, rule, a, node, renv)
		if err != nil {
			return err
		}

		r.builder.append(FiringRecord{
			PatternID:   pat.ID,
			RuleID:      rule.ID,
			RuleContext: rule.Context,
			AssertionID: a.ID,
			Kind:        a.Kind,
			Test:        a.Test,
			Location:    location,
			Outcome:     outcome,
			Message:     msg,
			Role:        a.Role,
			Flag:        a.Flag,
			Diagnostics: diags,
		})
	}

	return nil
}

// renderMessage substitutes each placeholder of the template with the
// string form of its expression's value at the matched node. An
// unbound variable in a placeholder is recoverable: the literal
// placeholder text is rendered and a warning goes to the sink. Any
// other placeholder failure is run-fatal.
//
// The rendered text is normalized to NFC so reports are byte-stable
// across differently-composed schema sources.
func (r *run) renderMessage(ctx context.Context, pat schema.Pattern, rule schema.Rule, a schema.Assertion, msg schema.Message, node *xmlquery.Node, env map[string]any) (string, error) {
	var b strings.Builder

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case schema.Text:
			b.WriteString(string(p))

		case schema.Name:
			b.WriteString(query.NodeName(node))

		case schema.ValueOf:
			res, err := r.engine.eval.Evaluate(ctx, p.Select, node, env)
			if err != nil {
				if cerr := ctx.Err(); cerr != nil {
					return "", cerr
				}
				if errors.Is(err, query.ErrUnboundVariable) {
					r.warn(Warning{
						Code:        WarnUnboundPlaceholder,
						PatternID:   pat.ID,
						RuleID:      rule.ID,
						AssertionID: a.ID,
						Expression:  p.Select,
						Message:     err.Error(),
					})
					b.WriteString(schema.PartSource(p))
					continue
				}
				return "", &EvaluationError{
					Code:        ErrCodeMessageEval,
					PatternID:   pat.ID,
					RuleID:      rule.ID,
					AssertionID: a.ID,
					Expression:  p.Select,
					Message:     "message placeholder failed",
					Err:         err,
				}
			}
			b.WriteString(query.Text(res))
		}
	}

	return norm.NFC.String(b.String()), nil
}

// renderDiagnostics renders the assertion's referenced diagnostics in
// reference order. An unknown diagnostic ID is recoverable: skipped
// with a warning.
func (r *run) renderDiagnostics(ctx context.Context, pat schema.Pattern, rule schema.Rule, a schema.Assertion, node *xmlquery.Node, env map[string]any) ([]DiagnosticText, error) {
	if len(a.Diagnostics) == 0 {
		return nil, nil
	}

	var out []DiagnosticText
	for _, id := range a.Diagnostics {
		diag, ok := r.engine.schema.Diagnostic(id)
		if !ok {
			r.warn(Warning{
				Code:        WarnUnknownDiagnostic,
				PatternID:   pat.ID,
				RuleID:      rule.ID,
				AssertionID: a.ID,
				Message:     "diagnostic not declared: " + id,
			})
			continue
		}
		text, err := r.renderMessage(ctx, pat, rule, a, diag.Message, node, env)
		if err != nil {
			return nil, err
		}
		out = append(out, DiagnosticText{ID: id, Text: text})
	}
	return out, nil
}

func (r *run) warn(w Warning) {
	if r.cfg.sink != nil {
		r.cfg.sink(w)
	}
}
