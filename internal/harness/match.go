package harness

import (
	"fmt"
	"strings"

	"github.com/sentra/schematron/internal/engine"
)

// anyRecordMatches reports whether some firing record satisfies the
// expectation. Subset semantics: only set fields participate.
func anyRecordMatches(rep *engine.Report, want RecordExpectation) bool {
	for _, rec := range rep.Records {
		if recordMatches(rec, want) {
			return true
		}
	}
	return false
}

func recordMatches(rec engine.FiringRecord, want RecordExpectation) bool {
	if want.Pattern != "" && rec.PatternID != want.Pattern {
		return false
	}
	if want.Rule != "" && rec.RuleID != want.Rule {
		return false
	}
	if want.Assertion != "" && rec.AssertionID != want.Assertion {
		return false
	}
	if want.Kind != "" && rec.Kind.String() != want.Kind {
		return false
	}
	if want.Location != "" && rec.Location != want.Location {
		return false
	}
	if want.Outcome != nil && rec.Outcome != *want.Outcome {
		return false
	}
	if want.Message != "" && rec.Message != want.Message {
		return false
	}
	return true
}

func describeExpectation(want RecordExpectation) string {
	var parts []string
	add := func(name, v string) {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", name, v))
		}
	}
	add("pattern", want.Pattern)
	add("rule", want.Rule)
	add("assertion", want.Assertion)
	add("kind", want.Kind)
	add("location", want.Location)
	if want.Outcome != nil {
		parts = append(parts, fmt.Sprintf("outcome=%t", *want.Outcome))
	}
	add("message", want.Message)
	if len(parts) == 0 {
		return "{any}"
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
