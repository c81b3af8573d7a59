package loader

import (
	"strings"
	"unicode"

	"github.com/sentra/schematron/internal/schema"
)

// flatten resolves sch:extends and is-a pattern instantiation, then
// drops abstract constructs so the model holds only concrete patterns
// and rules.
func (p *parser) flatten(sch *schema.Schema) error {
	// Rule extension first: abstract pattern bodies may use extends too.
	for key, refs := range p.extends {
		rule := &sch.Patterns[key[0]].Rules[key[1]]
		expanded, err := p.expandRule(*rule, refs, map[string]bool{})
		if err != nil {
			return err
		}
		*rule = expanded
	}

	out := sch.Patterns[:0]
	for idx, pat := range sch.Patterns {
		if p.abstract[idx] {
			continue
		}
		if inst, ok := p.instances[idx]; ok {
			concrete, err := p.instantiate(inst)
			if err != nil {
				return err
			}
			out = append(out, concrete)
			continue
		}
		out = append(out, pat)
	}
	sch.Patterns = out
	return nil
}

// expandRule splices the lets and assertions of each extended abstract
// rule at its reference position, depth first. The visiting set guards
// against extension cycles.
func (p *parser) expandRule(rule schema.Rule, refs []string, visiting map[string]bool) (schema.Rule, error) {
	var lets []schema.Let
	var asserts []schema.Assertion

	for _, ref := range refs {
		if visiting[ref] {
			return rule, &LoadError{Element: "extends", Message: "extension cycle through rule " + ref}
		}
		base, ok := p.abstractRules[ref]
		if !ok {
			return rule, &LoadError{Element: "extends", Message: "extended rule not declared: " + ref}
		}

		visiting[ref] = true
		// Abstract rules may themselves extend others: resolve depth
		// first so the splice order matches source declaration order.
		resolved, err := p.expandRule(base.rule, base.ext, visiting)
		if err != nil {
			return rule, err
		}
		delete(visiting, ref)

		lets = append(lets, resolved.Lets...)
		asserts = append(asserts, resolved.Assertions...)
	}

	rule.Lets = append(lets, rule.Lets...)
	rule.Assertions = append(asserts, rule.Assertions...)
	return rule, nil
}

// instantiate produces a concrete pattern from an abstract one by
// substituting $param references in every expression position.
func (p *parser) instantiate(inst patternInstance) (schema.Pattern, error) {
	base, ok := p.abstractPatterns[inst.isA]
	if !ok {
		return schema.Pattern{}, &LoadError{Element: "pattern", Message: "abstract pattern not declared: " + inst.isA}
	}

	pat := schema.Pattern{
		ID:    inst.id,
		Title: inst.title,
	}
	if pat.Title == "" {
		pat.Title = base.Title
	}

	for _, let := range base.Lets {
		pat.Lets = append(pat.Lets, schema.Let{
			Name:  let.Name,
			Value: replaceParams(let.Value, inst.params),
		})
	}

	for _, rule := range base.Rules {
		r := schema.Rule{
			ID:      rule.ID,
			Context: replaceParams(rule.Context, inst.params),
		}
		for _, let := range rule.Lets {
			r.Lets = append(r.Lets, schema.Let{
				Name:  let.Name,
				Value: replaceParams(let.Value, inst.params),
			})
		}
		for _, a := range rule.Assertions {
			na := a
			na.Test = replaceParams(a.Test, inst.params)
			na.Message = replaceMessageParams(a.Message, inst.params)
			r.Assertions = append(r.Assertions, na)
		}
		pat.Rules = append(pat.Rules, r)
	}

	return pat, nil
}

func replaceMessageParams(msg schema.Message, params map[string]string) schema.Message {
	if len(msg.Parts) == 0 {
		return msg
	}
	out := schema.Message{Parts: make([]schema.Part, 0, len(msg.Parts))}
	for _, part := range msg.Parts {
		if v, ok := part.(schema.ValueOf); ok {
			part = schema.ValueOf{Select: replaceParams(v.Select, params)}
		}
		out.Parts = append(out.Parts, part)
	}
	return out
}

// replaceParams substitutes $name occurrences outside string literals
// with the raw parameter value. Names without a parameter are left
// untouched: they may be real runtime variables.
func replaceParams(expr string, params map[string]string) string {
	if len(params) == 0 || !strings.ContainsRune(expr, '$') {
		return expr
	}

	var b strings.Builder
	var quote rune
	runes := []rune(expr)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}

		switch {
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)

		case r == '$':
			name, width := scanParamName(runes[i+1:])
			if width == 0 {
				b.WriteRune(r)
				continue
			}
			if val, ok := params[name]; ok {
				b.WriteString(val)
			} else {
				b.WriteRune(r)
				b.WriteString(name)
			}
			i += width

		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

func scanParamName(runes []rune) (string, int) {
	if len(runes) == 0 {
		return "", 0
	}
	r := runes[0]
	if r != '_' && !unicode.IsLetter(r) {
		return "", 0
	}
	n := 1
	for n < len(runes) {
		r := runes[n]
		if r != '_' && r != '-' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		n++
	}
	return string(runes[:n]), n
}
