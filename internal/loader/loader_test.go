package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/schematron/internal/schema"
)

const orderSchema = `<schema xmlns="http://purl.oclc.org/dsdl/schematron" queryBinding="xslt" defaultPhase="minimal">
  <title>Order   rules</title>
  <ns prefix="o" uri="urn:orders"/>
  <let name="minPrice" value="0"/>
  <phase id="minimal">
    <active pattern="prices"/>
    <let name="strict" value="true()"/>
  </phase>
  <pattern id="prices">
    <title>Price checks</title>
    <let name="maxItems" value="10"/>
    <rule context="item">
      <assert test="price &gt; $minPrice" id="positive" role="error" flag="pricing" diagnostics="d1 d2">Price of <name/> must exceed <value-of select="$minPrice"/>.</assert>
      <report test="price &gt; 1000">Suspiciously expensive item.</report>
    </rule>
  </pattern>
  <diagnostics>
    <diagnostic id="d1">Got <value-of select="string(price)"/>.</diagnostic>
    <diagnostic id="d2">Check the catalog.</diagnostic>
  </diagnostics>
</schema>`

func TestLoad_FullSchema(t *testing.T) {
	sch, err := Load(strings.NewReader(orderSchema))
	require.NoError(t, err)

	assert.Equal(t, "Order rules", sch.Title, "title whitespace collapses")
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

	require.Len(t, rule.Assertions, 2)
	a := rule.Assertions[0]
	assert.Equal(t, schema.KindAssert, a.Kind)
	assert.Equal(t, "positive", a.ID)
	assert.Equal(t, "price > $minPrice", a.Test)
	assert.Equal(t, "error", a.Role)
	assert.Equal(t, "pricing", a.Flag)
	assert.Equal(t, []string{"d1", "d2"}, a.Diagnostics)
	assert.Equal(t, []schema.Part{
		schema.Text("Price of "),
		schema.Name{},
		schema.Text(" must exceed "),
		schema.ValueOf{Select: "$minPrice"},
		schema.Text("."),
	}, a.Message.Parts)

	r := rule.Assertions[1]
	assert.Equal(t, schema.KindReport, r.Kind)
	assert.Equal(t, "Suspiciously expensive item.", r.Message.Source())

	require.Len(t, sch.Diagnostics, 2)
	assert.Equal(t, "d1", sch.Diagnostics[0].ID)
	assert.Equal(t, []schema.Part{
		schema.Text("Got "),
		schema.ValueOf{Select: "string(price)"},
		schema.Text("."),
	}, sch.Diagnostics[0].Message.Parts)
}

func TestLoad_ASCCNamespace(t *testing.T) {
	doc := `<sch:schema xmlns:sch="http://www.ascc.net/xml/schematron">
  <sch:pattern id="p">
    <sch:rule context="a"><sch:assert test="true()">ok</sch:assert></sch:rule>
  </sch:pattern>
</sch:schema>`

	sch, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, sch.Patterns, 1)
	assert.Equal(t, "p", sch.Patterns[0].ID)
}

func TestLoad_AutoPatternIDs(t *testing.T) {
	doc := `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <pattern><rule context="a"><assert test="true()">ok</assert></rule></pattern>
  <pattern><rule context="b"><assert test="true()">ok</assert></rule></pattern>
</schema>`

	sch, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, sch.Patterns, 2)
	assert.Equal(t, "pattern1", sch.Patterns[0].ID)
	assert.Equal(t, "pattern2", sch.Patterns[1].ID)
}

func TestLoad_LetValueFromBody(t *testing.T) {
	doc := `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <let name="expr">  count(//item)  </let>
  <pattern id="p"><rule context="a"><assert test="true()">ok</assert></rule></pattern>
</schema>`

	sch, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []schema.Let{{Name: "expr", Value: "count(//item)"}}, sch.Lets)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "not a schematron document",
			doc:  `<other xmlns="urn:x"/>`,
			want: "document element is not a schematron schema",
		},
		{
			name: "assert without test",
			doc: `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <pattern id="p"><rule context="a"><assert>broken</assert></rule></pattern>
</schema>`,
			want: "missing test attribute",
		},
		{
			name: "rule without context",
			doc: `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <pattern id="p"><rule><assert test="true()">ok</assert></rule></pattern>
</schema>`,
			want: "rule without context",
		},
		{
			name: "abstract rule without id",
			doc: `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <pattern id="p"><rule abstract="true"><assert test="true()">ok</assert></rule></pattern>
</schema>`,
			want: "abstract rule without id",
		},
		{
			name: "extends without rule",
			doc: `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <pattern id="p"><rule context="a"><extends/><assert test="true()">ok</assert></rule></pattern>
</schema>`,
			want: "missing rule attribute",
		},
		{
			name: "extends unknown rule",
			doc: `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <pattern id="p"><rule context="a"><extends rule="ghost"/></rule></pattern>
</schema>`,
			want: "extended rule not declared: ghost",
		},
		{
			name: "is-a unknown pattern",
			doc: `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <pattern id="p" is-a="ghost"><param name="x" value="1"/></pattern>
</schema>`,
			want: "abstract pattern not declared: ghost",
		},
		{
			name: "duplicate param",
			doc: `<schema xmlns="http://purl.oclc.org/dsdl/schematron">
  <pattern abstract="true" id="base"><rule context="$c"><assert test="true()">ok</assert></rule></pattern>
  <pattern id="p" is-a="base"><param name="c" value="a"/><param name="c" value="b"/></pattern>
</schema>`,
			want: "duplicate param c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)

			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, le.Error(), tt.want)
		})
	}
}
