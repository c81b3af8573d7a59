package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/schematron/internal/schema"
)

const orderRules = `schema: {
	title:        "Order rules"
	queryBinding: "xslt"
	defaultPhase: "minimal"

	ns: o: "urn:orders"

	let: minPrice: "0"

	phase: minimal: {
		active: ["prices"]
		let: strict: "true()"
	}

	pattern: prices: {
		title: "Price checks"
		let: maxItems: "10"
		rule: [{
			context: "item"
			let: p: "number(price)"
			assert: [{
				id:      "positive"
				test:    "price > $minPrice"
				role:    "error"
				flag:    "pricing"
				message: "Price must exceed the minimum."
				diagnostics: ["d1", "d2"]
			}]
			report: [{
				test:    "price > 1000"
				message: "Suspiciously expensive item."
			}]
		}]
	}

	diagnostic: {
		d1: "Check the catalog."
		d2: "Contact pricing."
	}
}`

func TestCompileBytes(t *testing.T) {
	sch, err := CompileBytes([]byte(orderRules), "orders.cue")
	require.NoError(t, err)

	assert.Equal(t, "Order rules", sch.Title)
	assert.Equal(t, "xslt", sch.QueryBinding)
	assert.Equal(t, "minimal", sch.DefaultPhase)
	assert.Equal(t, []schema.Namespace{{Prefix: "o", URI: "urn:orders"}}, sch.Namespaces)
	assert.Equal(t, []schema.Let{{Name: "minPrice", Value: "0"}}, sch.Lets)

	require.Len(t, sch.Phases, 1)
	assert.Equal(t, "minimal", sch.Phases[0].ID)
	assert.Equal(t, []string{"prices"}, sch.Phases[0].ActivePatterns)
	assert.Equal(t, []schema.Let{{Name: "strict", Value: "true()"}}, sch.Phases[0].Lets)

	require.Len(t, sch.Patterns, 1)
	pat := sch.Patterns[0]
	assert.Equal(t, "prices", pat.ID)
	assert.Equal(t, "Price checks", pat.Title)
	assert.Equal(t, []schema.Let{{Name: "maxItems", Value: "10"}}, pat.Lets)

	require.Len(t, pat.Rules, 1)
	rule := pat.Rules[0]
	assert.Equal(t, "item", rule.Context)
	assert.Equal(t, []schema.Let{{Name: "p", Value: "number(price)"}}, rule.Lets)

	require.Len(t, rule.Assertions, 2)
	a := rule.Assertions[0]
	assert.Equal(t, schema.KindAssert, a.Kind)
	assert.Equal(t, "positive", a.ID)
	assert.Equal(t, "price > $minPrice", a.Test)
	assert.Equal(t, "error", a.Role)
	assert.Equal(t, "pricing", a.Flag)
	assert.Equal(t, []string{"d1", "d2"}, a.Diagnostics)
	assert.Equal(t, "Price must exceed the minimum.", a.Message.Source())

	r := rule.Assertions[1]
	assert.Equal(t, schema.KindReport, r.Kind)
	assert.Equal(t, "Suspiciously expensive item.", r.Message.Source())

	require.Len(t, sch.Diagnostics, 2)
	assert.Equal(t, "d1", sch.Diagnostics[0].ID)
	assert.Equal(t, "Check the catalog.", sch.Diagnostics[0].Message.Source())
}

func TestCompileBytes_QuotedPatternID(t *testing.T) {
	src := `schema: pattern: "price-bound": rule: [{
	context: "item"
	assert: [{test: "price > 0", message: "positive"}]
}]`

	sch, err := CompileBytes([]byte(src), "rules.cue")
	require.NoError(t, err)
	require.Len(t, sch.Patterns, 1)
	assert.Equal(t, "price-bound", sch.Patterns[0].ID)
}

func TestCompileBytes_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing schema struct",
			src:  `rules: {}`,
			want: "schema struct is required",
		},
		{
			name: "rule without context",
			src:  `schema: pattern: p: rule: [{assert: [{test: "true()"}]}]`,
			want: "context is required",
		},
		{
			name: "assert without test",
			src:  `schema: pattern: p: rule: [{context: "item", assert: [{message: "broken"}]}]`,
			want: "test is required",
		},
		{
			name: "phase without active list",
			src:  `schema: {phase: minimal: {}, pattern: p: rule: [{context: "a", assert: [{test: "true()"}]}]}`,
			want: "active pattern list is required",
		},
		{
			name: "pattern without rules",
			src:  `schema: pattern: p: title: "empty"`,
			want: "rule list is required",
		},
		{
			name: "title not a string",
			src:  `schema: {title: 42, pattern: p: rule: [{context: "a", assert: [{test: "true()"}]}]}`,
			want: "must be a string",
		},
		{
			name: "syntax error",
			src:  `schema: {`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileBytes([]byte(tt.src), "rules.cue")
			require.Error(t, err)

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			if tt.want != "" {
				assert.Contains(t, ce.Error(), tt.want)
			}
		})
	}
}

func TestCompileFile_NotFound(t *testing.T) {
	_, err := CompileFile("testdata/does-not-exist.cue")
	require.Error(t, err)
}
