package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/sentra/schematron/internal/schema"
)

// CompileError reports why a CUE rule document could not be compiled.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("line %d: %s: %s", e.Pos.Line(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileFile compiles the CUE rule document at path.
func CompileFile(path string) (*schema.Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	return CompileBytes(src, path)
}

// CompileBytes compiles a CUE rule document from source bytes.
func CompileBytes(src []byte, filename string) (*schema.Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileSchema(v.LookupPath(cue.ParsePath("schema")))
}

// CompileSchema parses the schema struct into the rule model.
func CompileSchema(v cue.Value) (*schema.Schema, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "schema", Message: "schema struct is required"}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	sch := &schema.Schema{}
	var err error

	if sch.Title, err = optString(v, "title"); err != nil {
		return nil, err
	}
	if sch.QueryBinding, err = optString(v, "queryBinding"); err != nil {
		return nil, err
	}
	if sch.DefaultPhase, err = optString(v, "defaultPhase"); err != nil {
		return nil, err
	}

	if ns := v.LookupPath(cue.ParsePath("ns")); ns.Exists() {
		iter, err := ns.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			uri, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			sch.Namespaces = append(sch.Namespaces, schema.Namespace{
				Prefix: iter.Selector().Unquoted(),
				URI:    uri,
			})
		}
	}

	if sch.Lets, err = compileLets(v); err != nil {
		return nil, err
	}

	if phases := v.LookupPath(cue.ParsePath("phase")); phases.Exists() {
		iter, err := phases.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			phase, err := compilePhase(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			sch.Phases = append(sch.Phases, phase)
		}
	}

	patterns := v.LookupPath(cue.ParsePath("pattern"))
	if patterns.Exists() {
		iter, err := patterns.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			pat, err := compilePattern(iter.Selector().Unquoted(), iter.Value())
			if err != nil {
				return nil, err
			}
			sch.Patterns = append(sch.Patterns, pat)
		}
	}

	if diags := v.LookupPath(cue.ParsePath("diagnostic")); diags.Exists() {
		iter, err := diags.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			text, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			sch.Diagnostics = append(sch.Diagnostics, schema.Diagnostic{
				ID:      iter.Selector().Unquoted(),
				Message: schema.TextMessage(text),
			})
		}
	}

	return sch, nil
}

func compilePhase(id string, v cue.Value) (schema.Phase, error) {
	phase := schema.Phase{ID: id}

	active := v.LookupPath(cue.ParsePath("active"))
	if !active.Exists() {
		return phase, &CompileError{
			Field:   "phase." + id,
			Message: "active pattern list is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := active.List()
	if err != nil {
		return phase, formatCUEError(err)
	}
	for iter.Next() {
		pat, err := iter.Value().String()
		if err != nil {
			return phase, formatCUEError(err)
		}
		phase.ActivePatterns = append(phase.ActivePatterns, pat)
	}

	if phase.Lets, err = compileLets(v); err != nil {
		return phase, err
	}
	return phase, nil
}

func compilePattern(id string, v cue.Value) (schema.Pattern, error) {
	pat := schema.Pattern{ID: id}
	var err error

	if pat.Title, err = optString(v, "title"); err != nil {
		return pat, err
	}
	if pat.Lets, err = compileLets(v); err != nil {
		return pat, err
	}

	rules := v.LookupPath(cue.ParsePath("rule"))
	if !rules.Exists() {
		return pat, &CompileError{
			Field:   "pattern." + id,
			Message: "rule list is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := rules.List()
	if err != nil {
		return pat, formatCUEError(err)
	}
	for iter.Next() {
		rule, err := compileRule(id, iter.Value())
		if err != nil {
			return pat, err
		}
		pat.Rules = append(pat.Rules, rule)
	}

	return pat, nil
}

func compileRule(patternID string, v cue.Value) (schema.Rule, error) {
	rule := schema.Rule{}
	var err error

	if rule.ID, err = optString(v, "id"); err != nil {
		return rule, err
	}
	rule.Context, err = optString(v, "context")
	if err != nil {
		return rule, err
	}
	if rule.Context == "" {
		return rule, &CompileError{
			Field:   "pattern." + patternID + ".rule",
			Message: "context is required",
			Pos:     v.Pos(),
		}
	}
	if rule.Lets, err = compileLets(v); err != nil {
		return rule, err
	}

	for _, kind := range []schema.Kind{schema.KindAssert, schema.KindReport} {
		list := v.LookupPath(cue.ParsePath(kind.String()))
		if !list.Exists() {
			continue
		}
		iter, err := list.List()
		if err != nil {
			return rule, formatCUEError(err)
		}
		for iter.Next() {
			a, err := compileAssertion(patternID, kind, iter.Value())
			if err != nil {
				return rule, err
			}
			rule.Assertions = append(rule.Assertions, a)
		}
	}

	return rule, nil
}

func compileAssertion(patternID string, kind schema.Kind, v cue.Value) (schema.Assertion, error) {
	a := schema.Assertion{Kind: kind}
	var err error

	a.Test, err = optString(v, "test")
	if err != nil {
		return a, err
	}
	if a.Test == "" {
		return a, &CompileError{
			Field:   "pattern." + patternID + "." + kind.String(),
			Message: "test is required",
			Pos:     v.Pos(),
		}
	}

	if a.ID, err = optString(v, "id"); err != nil {
		return a, err
	}
	if a.Role, err = optString(v, "role"); err != nil {
		return a, err
	}
	if a.Flag, err = optString(v, "flag"); err != nil {
		return a, err
	}

	msg, err := optString(v, "message")
	if err != nil {
		return a, err
	}
	a.Message = schema.TextMessage(msg)

	if diags := v.LookupPath(cue.ParsePath("diagnostics")); diags.Exists() {
		iter, err := diags.List()
		if err != nil {
			return a, formatCUEError(err)
		}
		for iter.Next() {
			ref, err := iter.Value().String()
			if err != nil {
				return a, formatCUEError(err)
			}
			a.Diagnostics = append(a.Diagnostics, ref)
		}
	}

	return a, nil
}

// compileLets reads the optional let struct of a scope, preserving
// declaration order.
func compileLets(v cue.Value) ([]schema.Let, error) {
	lets := v.LookupPath(cue.ParsePath("let"))
	if !lets.Exists() {
		return nil, nil
	}
	iter, err := lets.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []schema.Let
	for iter.Next() {
		val, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, schema.Let{Name: iter.Selector().Unquoted(), Value: val})
	}
	return out, nil
}

// optString reads an optional string field, "" when absent.
func optString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: "must be a string",
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// formatCUEError converts a CUE error into a CompileError with
// position information when available.
func formatCUEError(err error) error {
	var pos token.Pos
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		pos = errs[0].Position()
	}
	return &CompileError{
		Field:   "cue",
		Message: cueerrors.Details(err, nil),
		Pos:     pos,
	}
}
