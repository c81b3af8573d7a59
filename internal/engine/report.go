package engine

import "github.com/sentra/schematron/internal/schema"

// DiagnosticText is a rendered auxiliary message attached to a firing
// record via the assertion's diagnostic references.
type DiagnosticText struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// FiringRecord is one recorded outcome of evaluating one assertion at
// one matched node.
type FiringRecord struct {
	// Seq is the logical clock stamp; strictly increasing within a run.
	Seq int64 `json:"seq"`

	// PatternID and RuleID trace the record back to the schema.
	PatternID string `json:"pattern_id"`
	RuleID    string `json:"rule_id"`

	// RuleContext is the rule's context expression as declared.
	RuleContext string `json:"rule_context"`

	// AssertionID is the assertion's declared ID, may be empty.
	AssertionID string `json:"assertion_id,omitempty"`

	// Kind is assert or report.
	Kind schema.Kind `json:"kind"`

	// Test is the assertion's test expression as declared.
	Test string `json:"test"`

	// Location is the stable rooted path of the matched node.
	Location string `json:"location"`

	// Outcome is the raw boolean test result. Polarity is NOT applied
	// here: a report record with Outcome true means the report fired.
	// Verdict policies own the interpretation.
	Outcome bool `json:"outcome"`

	// Message is the rendered diagnostic text, placeholders substituted
	// and normalized to NFC.
	Message string `json:"message"`

	// Role and Flag are the assertion's free-form tags, uninterpreted.
	Role string `json:"role,omitempty"`
	Flag string `json:"flag,omitempty"`

	// Diagnostics are the rendered referenced diagnostics, in reference
	// order.
	Diagnostics []DiagnosticText `json:"diagnostics,omitempty"`
}

// Failed reports whether this record counts against validity under the
// default policy: a false assert or a fired report.
func (r FiringRecord) Failed() bool {
	if r.Kind == schema.KindReport {
		return r.Outcome
	}
	return !r.Outcome
}

// Report is the ordered result of one validation run. Immutable once
// the run completes; re-running produces a fresh report.
type Report struct {
	// RunToken uniquely identifies the run that produced this report.
	RunToken string `json:"run_token"`

	// SchemaTitle is the title of the schema that was applied.
	SchemaTitle string `json:"schema_title"`

	// Phase is the resolved phase selector the run used.
	Phase string `json:"phase"`

	// ActivePatterns lists the IDs of the patterns that were active, in
	// declaration order.
	ActivePatterns []string `json:"active_patterns"`

	// Records holds every firing record in emission order: document
	// order of matched nodes, then rule/assertion declaration order.
	Records []FiringRecord `json:"records"`
}

// FailedAsserts returns the assert records with a false outcome, in
// report order.
func (r *Report) FailedAsserts() []FiringRecord {
	var out []FiringRecord
	for _, rec := range r.Records {
		if rec.Kind == schema.KindAssert && !rec.Outcome {
			out = append(out, rec)
		}
	}
	return out
}

// FiredReports returns the report records with a true outcome, in
// report order.
func (r *Report) FiredReports() []FiringRecord {
	var out []FiringRecord
	for _, rec := range r.Records {
		if rec.Kind == schema.KindReport && rec.Outcome {
			out = append(out, rec)
		}
	}
	return out
}

// reportBuilder accumulates firing records in emission order. No
// deduplication, no reordering, no filtering: downstream consumers
// apply their own policy over the complete raw report.
type reportBuilder struct {
	clock   *Clock
	records []FiringRecord
}

func newReportBuilder() *reportBuilder {
	return &reportBuilder{clock: NewClock()}
}

// append stamps the record with the next clock seq and stores it.
func (b *reportBuilder) append(rec FiringRecord) {
	rec.Seq = b.clock.Next()
	b.records = append(b.records, rec)
}

// finalize seals the accumulated records into a Report. The records
// slice is handed over, not copied; the builder must not be used after.
func (b *reportBuilder) finalize(token, title, phase string, activePatterns []string) *Report {
	rep := &Report{
		RunToken:       token,
		SchemaTitle:    title,
		Phase:          phase,
		ActivePatterns: activePatterns,
		Records:        b.records,
	}
	b.records = nil
	return rep
}
