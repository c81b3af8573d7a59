package compiler

import (
	"fmt"
	"strings"

	"github.com/sentra/schematron/internal/schema"
)

// Validation error codes (E200-E299).
const (
	ErrDuplicatePatternID   = "E201" // pattern id declared twice
	ErrRuleMissingContext   = "E202" // concrete rule without context
	ErrAssertMissingTest    = "E203" // assertion without test
	ErrUnknownActivePattern = "E204" // phase activates unknown pattern
	ErrDuplicatePhaseID     = "E205" // phase id declared twice
	ErrUnknownDefaultPhase  = "E206" // defaultPhase names no phase
	ErrDuplicateLetName     = "E207" // let name declared twice in scope
	ErrUnknownDiagnostic    = "E208" // assertion references unknown diagnostic
	ErrDuplicateDiagnostic  = "E209" // diagnostic id declared twice
	ErrAbstractNotFlattened = "E210" // abstract rule survived flattening
)

// ValidationError is one structural defect in a compiled schema.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled schema for structural defects. Returns
// all errors found (does not fail-fast), so a caller can report every
// problem at once. Works on the output of any frontend.
func Validate(sch *schema.Schema) []ValidationError {
	var errs []ValidationError

	patternIDs := make(map[string]bool, len(sch.Patterns))
	diagnosticIDs := make(map[string]bool, len(sch.Diagnostics))

	for _, d := range sch.Diagnostics {
		if diagnosticIDs[d.ID] {
			errs = append(errs, ValidationError{
				Field:   "diagnostic." + d.ID,
				Message: "diagnostic id declared twice",
				Code:    ErrDuplicateDiagnostic,
			})
		}
		diagnosticIDs[d.ID] = true
	}

	errs = append(errs, validateLets("schema", sch.Lets)...)

	for _, pat := range sch.Patterns {
		field := "pattern." + pat.ID

		if patternIDs[pat.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "pattern id declared twice",
				Code:    ErrDuplicatePatternID,
			})
		}
		patternIDs[pat.ID] = true

		errs = append(errs, validateLets(field, pat.Lets)...)
		errs = append(errs, validatePattern(field, pat, diagnosticIDs)...)
	}

	phaseIDs := make(map[string]bool, len(sch.Phases))
	for _, phase := range sch.Phases {
		field := "phase." + phase.ID

		if phaseIDs[phase.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "phase id declared twice",
				Code:    ErrDuplicatePhaseID,
			})
		}
		phaseIDs[phase.ID] = true

		for _, ref := range phase.ActivePatterns {
			if !patternIDs[ref] {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: "activates unknown pattern " + ref,
					Code:    ErrUnknownActivePattern,
				})
			}
		}
		errs = append(errs, validateLets(field, phase.Lets)...)
	}

	if sch.DefaultPhase != "" && !phaseIDs[sch.DefaultPhase] {
		errs = append(errs, ValidationError{
			Field:   "defaultPhase",
			Message: "names unknown phase " + sch.DefaultPhase,
			Code:    ErrUnknownDefaultPhase,
		})
	}

	return errs
}

func validatePattern(field string, pat schema.Pattern, diagnosticIDs map[string]bool) []ValidationError {
	var errs []ValidationError

	for i, rule := range pat.Rules {
		rfield := field + ruleLabel(i, rule)

		if rule.Abstract {
			errs = append(errs, ValidationError{
				Field:   rfield,
				Message: "abstract rule present in compiled model",
				Code:    ErrAbstractNotFlattened,
			})
			continue
		}
		if strings.TrimSpace(rule.Context) == "" {
			errs = append(errs, ValidationError{
				Field:   rfield,
				Message: "rule context is required",
				Code:    ErrRuleMissingContext,
			})
		}
		errs = append(errs, validateLets(rfield, rule.Lets)...)

		for j, a := range rule.Assertions {
			if strings.TrimSpace(a.Test) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.%s[%d]", rfield, a.Kind, j),
					Message: "test expression is required",
					Code:    ErrAssertMissingTest,
				})
			}
			for _, ref := range a.Diagnostics {
				if !diagnosticIDs[ref] {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s.%s[%d]", rfield, a.Kind, j),
						Message: "references unknown diagnostic " + ref,
						Code:    ErrUnknownDiagnostic,
					})
				}
			}
		}
	}

	return errs
}

func validateLets(field string, lets []schema.Let) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(lets))
	for _, let := range lets {
		if seen[let.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "let $" + let.Name + " declared twice",
				Code:    ErrDuplicateLetName,
			})
		}
		seen[let.Name] = true
	}
	return errs
}

func ruleLabel(i int, rule schema.Rule) string {
	if rule.ID != "" {
		return ".rule." + rule.ID
	}
	return fmt.Sprintf(".rule[%d]", i)
}
