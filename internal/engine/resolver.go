package engine

import (
	"context"

	"github.com/antchfx/xmlquery"

	"github.com/sentra/schematron/internal/query"
	"github.com/sentra/schematron/internal/schema"
)

// run holds the state of a single validation run. All of it is local:
// nothing here is shared between runs.
type run struct {
	engine  *Engine
	cfg     runConfig
	builder *reportBuilder
}

// globalEnv evaluates schema globals and phase lets at the document
// root, applying caller bindings as overrides.
//
// Overrides replace a binding at its declaration point, so later lets
// that reference the overridden name see the caller's value. A caller
// binding that matches no declared name is a run-fatal error.
func (r *run) globalEnv(ctx context.Context, root *xmlquery.Node) (map[string]any, error) {
	overrides := make(map[string]any, len(r.cfg.bindings))
	used := make(map[string]bool, len(r.cfg.bindings))
	for _, b := range r.cfg.bindings {
		overrides[b.Name] = b.Value
		used[b.Name] = false
	}

	env := make(map[string]any)

	bind := func(lets []schema.Let) error {
		for _, let := range lets {
			if v, ok := overrides[let.Name]; ok {
				env[let.Name] = v
				used[let.Name] = true
				continue
			}
			val, err := r.evalLet(ctx, let, root, env)
			if err != nil {
				return err
			}
			env[let.Name] = val
		}
		return nil
	}

	if err := bind(r.engine.schema.Lets); err != nil {
		return nil, err
	}

	if phase, ok := r.engine.schema.Phase(r.engine.resolvePhase(r.cfg.phase)); ok {
		if err := bind(phase.Lets); err != nil {
			return nil, err
		}
	}

	// Bindings are ordered; report the first unconsumed name.
	for _, b := range r.cfg.bindings {
		if !used[b.Name] {
			return nil, &EvaluationError{
				Code:    ErrCodeUnknownParameter,
				Message: "binding does not override any declared variable: " + b.Name,
			}
		}
	}

	return env, nil
}

// runPattern evaluates every concrete rule of the pattern in
// declaration order with first-match suppression.
func (r *run) runPattern(ctx context.Context, pat schema.Pattern, root *xmlquery.Node, env map[string]any) error {
	penv := env
	if len(pat.Lets) > 0 {
		penv = cloneEnv(env)
		for _, let := range pat.Lets {
			val, err := r.evalLetIn(ctx, pat.ID, "", let, root, penv)
			if err != nil {
				return err
			}
			penv[let.Name] = val
		}
	}

	// First-match marking is per pattern; other patterns keep their own.
	matched := make(map[*xmlquery.Node]bool)

	for _, rule := range pat.Rules {
		if rule.Abstract {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		nodes, err := r.resolveContext(ctx, pat, rule, root, penv)
		if err != nil {
			return err
		}

		for _, node := range nodes {
			if err := ctx.Err(); err != nil {
				return err
			}
			if matched[node] {
				continue
			}
			matched[node] = true

			if err := r.evaluateRule(ctx, pat, rule, node, penv); err != nil {
				return err
			}
		}
	}

	return nil
}

// resolveContext evaluates the rule's context expression against the
// document root and returns the candidate node-set.
func (r *run) resolveContext(ctx context.Context, pat schema.Pattern, rule schema.Rule, root *xmlquery.Node, env map[string]any) (query.NodeSet, error) {
	expr := contextExpr(rule.Context)

	res, err := r.engine.eval.Evaluate(ctx, expr, root, env)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, &EvaluationError{
			Code:       ErrCodeContextEval,
			PatternID:  pat.ID,
			RuleID:     rule.ID,
			Expression: rule.Context,
			Message:    "context expression failed",
			Err:        err,
		}
	}

	nodes, ok := res.(query.NodeSet)
	if !ok {
		return nil, &EvaluationError{
			Code:       ErrCodeContextEval,
			PatternID:  pat.ID,
			RuleID:     rule.ID,
			Expression: rule.Context,
			Message:    "context expression did not select nodes",
		}
	}
	return nodes, nil
}

// contextExpr makes a rule context evaluable from the document root: a
// relative context matches anywhere in the document, the way Schematron
// rule contexts behave as match patterns.
func contextExpr(c string) string {
	if len(c) > 0 && c[0] == '/' {
		return c
	}
	return "//" + c
}

// evalLet evaluates a global let at the document root.
func (r *run) evalLet(ctx context.Context, let schema.Let, node *xmlquery.Node, env map[string]any) (any, error) {
	return r.evalLetIn(ctx, "", "", let, node, env)
}

// evalLetIn evaluates a let expression in the given scope and reduces
// the result to a bindable scalar (node-sets bind as their string
// value).
func (r *run) evalLetIn(ctx context.Context, patternID, ruleID string, let schema.Let, node *xmlquery.Node, env map[string]any) (any, error) {
	res, err := r.engine.eval.Evaluate(ctx, let.Value, node, env)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, &EvaluationError{
			Code:       ErrCodeLetEval,
			PatternID:  patternID,
			RuleID:     ruleID,
			Expression: let.Value,
			Message:    "binding expression failed for $" + let.Name,
			Err:        err,
		}
	}
	return bindingValue(res), nil
}

// bindingValue reduces an evaluation result to a value usable as a
// variable binding. Scalars bind as-is; node-sets bind as their string
// value, since the substituting evaluator cannot carry node-sets.
func bindingValue(res query.Result) any {
	if s, ok := res.(query.Scalar); ok {
		return s.Value
	}
	return query.Text(res)
}

func cloneEnv(env map[string]any) map[string]any {
	out := make(map[string]any, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
