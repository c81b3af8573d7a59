// Package svrl serializes validation reports as SVRL, the Schematron
// Validation Report Language.
//
// The writer follows SVRL's reduced view of a run: an active-pattern
// marker per pattern, a fired-rule marker per (rule, matched node)
// pair, and an element per failed assert or fired report. Passing
// assertions are present in the engine's report but have no SVRL
// representation. Output is deterministic byte for byte, which the
// golden tests rely on.
package svrl

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/sentra/schematron/internal/engine"
	"github.com/sentra/schematron/internal/schema"
)

// Namespace is the SVRL namespace URI.
const Namespace = "http://purl.oclc.org/dsdl/svrl"

// Write serializes the report as an SVRL document.
func Write(w io.Writer, rep *engine.Report) error {
	_, err := w.Write(Bytes(rep))
	return err
}

// Bytes serializes the report as an SVRL document.
func Bytes(rep *engine.Report) []byte {
	var b strings.Builder

	b.WriteString(xml.Header)
	b.WriteString(`<svrl:schematron-output xmlns:svrl="` + Namespace + `"`)
	writeAttr(&b, "title", rep.SchemaTitle)
	writeAttr(&b, "phase", rep.Phase)
	b.WriteString(">\n")

	cursor := 0
	for _, patternID := range rep.ActivePatterns {
		b.WriteString(`  <svrl:active-pattern`)
		writeAttr(&b, "id", patternID)
		b.WriteString("/>\n")

		firedContext := ""
		firedLocation := ""
		for cursor < len(rep.Records) && rep.Records[cursor].PatternID == patternID {
			rec := rep.Records[cursor]
			cursor++

			if rec.RuleContext != firedContext || rec.Location != firedLocation {
				firedContext, firedLocation = rec.RuleContext, rec.Location
				b.WriteString(`  <svrl:fired-rule`)
				writeAttr(&b, "context", rec.RuleContext)
				b.WriteString("/>\n")
			}

			if !rec.Failed() {
				continue
			}
			writeFailure(&b, rec)
		}
	}

	b.WriteString("</svrl:schematron-output>\n")
	return []byte(b.String())
}

// writeFailure emits a failed-assert or successful-report element.
func writeFailure(b *strings.Builder, rec engine.FiringRecord) {
	elem := "svrl:failed-assert"
	if rec.Kind == schema.KindReport {
		elem = "svrl:successful-report"
	}

	b.WriteString("  <" + elem)
	writeAttr(b, "id", rec.AssertionID)
	writeAttr(b, "test", rec.Test)
	writeAttr(b, "location", rec.Location)
	writeAttr(b, "role", rec.Role)
	writeAttr(b, "flag", rec.Flag)
	b.WriteString(">\n")

	for _, diag := range rec.Diagnostics {
		b.WriteString(`    <svrl:diagnostic-reference`)
		writeAttr(b, "diagnostic", diag.ID)
		b.WriteString(">")
		writeEscaped(b, diag.Text)
		b.WriteString("</svrl:diagnostic-reference>\n")
	}

	b.WriteString("    <svrl:text>")
	writeEscaped(b, rec.Message)
	b.WriteString("</svrl:text>\n")

	b.WriteString("  </" + elem + ">\n")
}

// writeAttr emits an attribute, skipping empty values.
func writeAttr(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteString(" " + name + `="`)
	writeEscaped(b, value)
	b.WriteString(`"`)
}

func writeEscaped(b *strings.Builder, s string) {
	// xml.EscapeText only fails on invalid writers; strings.Builder
	// never errors.
	_ = xml.EscapeText(b, []byte(s))
}
