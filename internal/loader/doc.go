// Package loader parses ISO Schematron XML into the compiled rule
// model.
//
// The loader owns everything the evaluation engine assumes already
// resolved: rule extension (sch:extends) is spliced into the extending
// rule, abstract patterns (sch:pattern abstract="true") are
// instantiated at their is-a references with parameter substitution,
// and abstract source constructs are dropped from the output. The
// engine only ever sees concrete patterns and rules.
//
// Both the ISO namespace and the older ASCC namespace are accepted.
package loader
