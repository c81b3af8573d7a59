package engine

import "github.com/sentra/schematron/internal/schema"

// Option configures an Engine at construction.
type Option func(*Engine)

// WithRunTokenGenerator replaces the UUIDv7 run token generator. Tests
// pass a FixedGenerator for deterministic tokens.
func WithRunTokenGenerator(g RunTokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithValidator replaces the verdict policy used by Validate.
// Default: DefaultValidator.
func WithValidator(v Validator) Option {
	return func(e *Engine) {
		e.validator = v
	}
}

// Binding is one caller-supplied variable binding. Bindings are
// ordered: later bindings of the same name win.
type Binding struct {
	Name  string
	Value any
}

// Warning is a recoverable condition reported through the diagnostic
// sink while the run continues.
type Warning struct {
	Code        string
	PatternID   string
	RuleID      string
	AssertionID string
	Expression  string
	Message     string
}

// Warning codes.
const (
	// WarnUnboundPlaceholder: a message placeholder references a
	// variable with no binding; the literal placeholder text was
	// rendered instead.
	WarnUnboundPlaceholder = "UNBOUND_PLACEHOLDER"

	// WarnUnknownDiagnostic: an assertion references a diagnostic ID
	// the schema does not declare; the reference was skipped.
	WarnUnknownDiagnostic = "UNKNOWN_DIAGNOSTIC"
)

// DiagnosticSink receives non-fatal warnings during a run. May be nil.
type DiagnosticSink func(Warning)

// runConfig is the per-run configuration. Entirely local to one run;
// concurrent runs never share it.
type runConfig struct {
	phase    string
	bindings []Binding
	sink     DiagnosticSink
}

// RunOption configures a single validation run.
type RunOption func(*runConfig)

// WithPhase selects the active phase. Accepts a declared phase ID,
// schema.PhaseAll (the default) or schema.PhaseDefault.
func WithPhase(name string) RunOption {
	return func(c *runConfig) {
		c.phase = name
	}
}

// WithBinding supplies one variable binding, overriding the schema's
// global of the same name. Binding a name the schema never declares is
// a run-fatal error. Repeatable; order is preserved.
func WithBinding(name string, value any) RunOption {
	return func(c *runConfig) {
		c.bindings = append(c.bindings, Binding{Name: name, Value: value})
	}
}

// WithBindings supplies several bindings at once, in slice order.
func WithBindings(bindings ...Binding) RunOption {
	return func(c *runConfig) {
		c.bindings = append(c.bindings, bindings...)
	}
}

// WithDiagnosticSink installs the warning callback for this run.
func WithDiagnosticSink(sink DiagnosticSink) RunOption {
	return func(c *runConfig) {
		c.sink = sink
	}
}

func newRunConfig(opts []RunOption) runConfig {
	cfg := runConfig{phase: schema.PhaseAll}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
