// Package schema defines the compiled rule model: phases, patterns,
// rules, assertions and variable bindings.
//
// A Schema is produced by one of the loading frontends (the XML loader
// in internal/loader or the CUE frontend in internal/compiler) and is
// immutable afterwards. The evaluation engine never mutates it, so one
// compiled Schema may be shared by any number of concurrent runs.
//
// Abstract rules and abstract patterns are a loading-time concern: the
// frontends flatten rule extension and pattern instantiation before
// constructing the model, so consumers only ever see concrete rules.
// The Abstract flag is retained on Rule because the engine skips such
// rules defensively rather than trusting every frontend.
package schema
