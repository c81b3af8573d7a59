// Package engine evaluates a compiled schema against a document and
// produces an ordered validation report with a verdict.
//
// ARCHITECTURE:
//
// A run is a sequential pipeline: context resolution -> assertion
// evaluation -> report building -> verdict. There is no internal
// concurrency and no shared mutable state between runs; the only shared
// input is the compiled Schema, which is read-only. The engine is safe
// to invoke concurrently from independent call sites against the same
// Schema.
//
// Determinism:
//   - Patterns and rules are evaluated in schema declaration order.
//   - Candidate nodes are processed in the order the query evaluator
//     returns them (document order for the default XPath evaluator).
//   - Every firing record is stamped with a per-run logical clock seq,
//     so two runs with identical inputs produce identical reports.
//
// First-match suppression applies per pattern: once a node is matched
// by a rule, later rules in the same pattern skip it. Patterns keep
// independent match marking, so a node may fire under several patterns.
//
// Error model: expression failures are run-fatal and surface as
// *EvaluationError with pattern/rule/expression context; a run never
// returns a partial report. Recoverable conditions (an unbound message
// placeholder, an unknown diagnostic reference) go to the diagnostic
// sink and evaluation continues. Cancellation surfaces as
// *CancelledError, checked at least once per matched node.
package engine
