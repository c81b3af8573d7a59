// Package query defines the query-evaluation boundary the engine calls
// through, plus the default XPath 1.0 implementation over xmlquery
// documents.
//
// The engine only depends on the Evaluator interface. The default
// implementation compiles expressions with antchfx/xpath and resolves
// variable references by textual substitution before compilation, since
// the underlying XPath engine has no variable environment of its own.
// Only scalar bindings (string, number, boolean) can be substituted.
package query
