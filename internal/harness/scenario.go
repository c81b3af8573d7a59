package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one declarative validation case.
type Scenario struct {
	// Name uniquely identifies the scenario; also names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Schema is the path to the schema file. Resolved relative to the
	// scenario file. CUE schemas by .cue extension, Schematron XML
	// otherwise.
	Schema string `yaml:"schema"`

	// Document is the path to the XML document under validation.
	// Resolved relative to the scenario file.
	Document string `yaml:"document"`

	// Phase selects the active phase. Empty means all patterns.
	Phase string `yaml:"phase,omitempty"`

	// Token is the fixed run token. Defaults to the scenario name, which
	// keeps golden files stable across runs.
	Token string `yaml:"token,omitempty"`

	// Bindings override schema globals, in order.
	Bindings []ScenarioBinding `yaml:"bindings,omitempty"`

	// Expect is the expected outcome.
	Expect Expectation `yaml:"expect"`
}

// ScenarioBinding is one caller binding supplied to the run.
type ScenarioBinding struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// Expectation describes the outcome a scenario requires.
type Expectation struct {
	// Verdict is the expected verdict name: VALID, INVALID or
	// INVALID_UNEXPECTED_REPORT.
	Verdict string `yaml:"verdict"`

	// RecordCount, when set, is the exact number of firing records.
	RecordCount *int `yaml:"record_count,omitempty"`

	// Records lists record expectations matched against the report in
	// order of declaration. Subset semantics: every expectation must
	// match some record, unmatched report records are fine.
	Records []RecordExpectation `yaml:"records,omitempty"`
}

// RecordExpectation matches one firing record. Empty fields match
// anything; Outcome matches only when set.
type RecordExpectation struct {
	Pattern   string `yaml:"pattern,omitempty"`
	Rule      string `yaml:"rule,omitempty"`
	Assertion string `yaml:"assertion,omitempty"`
	Kind      string `yaml:"kind,omitempty"`
	Location  string `yaml:"location,omitempty"`
	Outcome   *bool  `yaml:"outcome,omitempty"`
	Message   string `yaml:"message,omitempty"`
}

// LoadScenario reads and validates a scenario YAML file. Schema and
// document paths are resolved relative to the scenario file's
// directory. Unknown YAML fields are rejected, which catches typos like
// "binding:" for "bindings:".
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	base := filepath.Dir(path)
	if sc.Schema != "" && !filepath.IsAbs(sc.Schema) {
		sc.Schema = filepath.Join(base, sc.Schema)
	}
	if sc.Document != "" && !filepath.IsAbs(sc.Document) {
		sc.Document = filepath.Join(base, sc.Document)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &sc, nil
}

func validateScenario(sc *Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if sc.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if sc.Document == "" {
		return fmt.Errorf("document is required")
	}
	if sc.Expect.Verdict == "" {
		return fmt.Errorf("expect.verdict is required")
	}
	for i, b := range sc.Bindings {
		if b.Name == "" {
			return fmt.Errorf("bindings[%d]: name is required", i)
		}
	}
	if sc.Expect.RecordCount != nil && *sc.Expect.RecordCount < 0 {
		return fmt.Errorf("expect.record_count must be non-negative")
	}
	return nil
}
