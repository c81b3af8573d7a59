package schema

import (
	"encoding/json"
	"fmt"
)

// Phase selector sentinels accepted wherever a phase name is expected.
const (
	// PhaseAll activates every pattern regardless of phase declarations.
	PhaseAll = "ALL PHASES"

	// PhaseDefault activates the schema's declared default phase, or all
	// patterns when the schema declares none.
	PhaseDefault = "#DEFAULT"
)

// Kind distinguishes the two assertion polarities.
type Kind int

const (
	// KindAssert must hold: a false test outcome is a failure.
	KindAssert Kind = iota

	// KindReport fires to flag a condition: a true test outcome is what
	// the default validity policy treats as a failure.
	KindReport
)

// String returns the Schematron element name for the kind.
func (k Kind) String() string {
	switch k {
	case KindAssert:
		return "assert"
	case KindReport:
		return "report"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalJSON encodes the kind as its element name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes an element name back into a kind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "assert":
		*k = KindAssert
	case "report":
		*k = KindReport
	default:
		return fmt.Errorf("unknown kind %q", s)
	}
	return nil
}

// Let is a named variable binding. Value is a query expression, not a
// literal; it is evaluated by the engine in declaration order, with
// earlier bindings in scope.
type Let struct {
	Name  string
	Value string
}

// Namespace declares a prefix used by query expressions in the schema.
type Namespace struct {
	Prefix string
	URI    string
}

// Part is one segment of a diagnostic message template.
// Exactly three implementations exist: Text, ValueOf and Name.
type Part interface {
	part()
}

// Text is a literal message segment.
type Text string

func (Text) part() {}

// ValueOf is a placeholder substituted with the string form of the
// expression's value at the matched node.
type ValueOf struct {
	Select string
}

func (ValueOf) part() {}

// Name is a placeholder substituted with the name of the matched node.
type Name struct{}

func (Name) part() {}

// Message is an ordered sequence of template parts.
type Message struct {
	Parts []Part
}

// Diagnostic is a named auxiliary message referenced by assertions.
type Diagnostic struct {
	ID      string
	Message Message
}

// Assertion is a single test with inverse polarity for reports.
type Assertion struct {
	Kind        Kind
	ID          string
	Test        string
	Role        string // free-form severity tag, not interpreted by the engine
	Flag        string
	Message     Message
	Diagnostics []string // Diagnostic IDs referenced by this assertion
}

// Rule selects candidate nodes via its context expression and runs its
// assertions against each matched node in declaration order.
type Rule struct {
	ID         string
	Context    string
	Abstract   bool // abstract rules are never matched directly
	Lets       []Let
	Assertions []Assertion
}

// Pattern is an ordered group of rules. First-match suppression applies
// within a pattern; patterns are independent of each other.
type Pattern struct {
	ID    string
	Title string
	Lets  []Let
	Rules []Rule
}

// Phase names the subset of patterns active during a run.
type Phase struct {
	ID             string
	ActivePatterns []string
	Lets           []Let
}

// Schema is the compiled rule set. Read-only after construction.
type Schema struct {
	Title        string
	QueryBinding string // e.g. "xslt", "xpath2"; informational
	DefaultPhase string
	Namespaces   []Namespace
	Lets         []Let
	Phases       []Phase
	Patterns     []Pattern
	Diagnostics  []Diagnostic
}

// Phase returns the phase with the given ID.
func (s *Schema) Phase(id string) (Phase, bool) {
	for _, p := range s.Phases {
		if p.ID == id {
			return p, true
		}
	}
	return Phase{}, false
}

// Diagnostic returns the diagnostic with the given ID.
func (s *Schema) Diagnostic(id string) (Diagnostic, bool) {
	for _, d := range s.Diagnostics {
		if d.ID == id {
			return d, true
		}
	}
	return Diagnostic{}, false
}

// NamespaceMap returns the declared namespaces as a prefix -> URI map
// suitable for configuring a query evaluator.
func (s *Schema) NamespaceMap() map[string]string {
	if len(s.Namespaces) == 0 {
		return nil
	}
	m := make(map[string]string, len(s.Namespaces))
	for _, ns := range s.Namespaces {
		m[ns.Prefix] = ns.URI
	}
	return m
}

// PatternsForPhase resolves a phase selector to the ordered list of
// active patterns. The selector may be a declared phase ID, PhaseAll,
// PhaseDefault or "" (treated as PhaseAll).
//
// Pattern order is always schema declaration order, regardless of the
// order of activation entries inside the phase.
func (s *Schema) PatternsForPhase(selector string) ([]Pattern, error) {
	switch selector {
	case "", PhaseAll:
		return s.Patterns, nil
	case PhaseDefault:
		if s.DefaultPhase == "" {
			return s.Patterns, nil
		}
		selector = s.DefaultPhase
	}

	phase, ok := s.Phase(selector)
	if !ok {
		return nil, fmt.Errorf("unknown phase %q", selector)
	}

	active := make(map[string]bool, len(phase.ActivePatterns))
	for _, id := range phase.ActivePatterns {
		active[id] = true
	}

	var out []Pattern
	for _, p := range s.Patterns {
		if active[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}
