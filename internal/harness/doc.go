// Package harness runs declarative validation scenarios.
//
// A scenario is a YAML file naming a schema, a document and the
// expected outcome: the verdict, optionally the record count and a
// subset of the firing records. Scenarios drive conformance tests
// without hand-writing engine plumbing per case, and pair with golden
// SVRL files for byte-exact report comparison.
package harness
