package engine

import (
	"fmt"

	"github.com/sentra/schematron/internal/schema"
)

// Verdict is the overall judgment a validity policy derives from a
// report. It is never stored independently of the report that produced
// it.
type Verdict int

const (
	// VerdictValid: every assert held and no report fired.
	VerdictValid Verdict = iota

	// VerdictInvalid: at least one assert failed.
	VerdictInvalid

	// VerdictInvalidUnexpectedReport: every assert held, but at least
	// one report fired. Reports flag conditions, so their firing is
	// itself the failure under a strict policy.
	VerdictInvalidUnexpectedReport
)

// String returns a stable name for the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "VALID"
	case VerdictInvalid:
		return "INVALID"
	case VerdictInvalidUnexpectedReport:
		return "INVALID_UNEXPECTED_REPORT"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// IsValid reports whether the verdict is VerdictValid.
func (v Verdict) IsValid() bool {
	return v == VerdictValid
}

// ParseVerdict maps a stable verdict name back to its value. Used by
// the run archive.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "VALID":
		return VerdictValid, nil
	case "INVALID":
		return VerdictInvalid, nil
	case "INVALID_UNEXPECTED_REPORT":
		return VerdictInvalidUnexpectedReport, nil
	default:
		return VerdictInvalid, fmt.Errorf("unknown verdict %q", s)
	}
}

// Validator reduces a finished report to a single verdict. Policies are
// caller-supplied: role tags are free-form strings the engine never
// interprets, so what counts as invalidating is a policy choice.
type Validator interface {
	Judge(rep *Report) Verdict
}

// DefaultValidator is the strict policy: valid iff every assert outcome
// is true and no report fired. An empty report (no rule ever matched
// any node) is judged VALID; callers that want "schema must apply"
// semantics need their own policy.
//
// A failed assert dominates: when both a failed assert and a fired
// report exist, the verdict is VerdictInvalid.
type DefaultValidator struct{}

// Judge implements Validator.
func (DefaultValidator) Judge(rep *Report) Verdict {
	verdict := VerdictValid
	for _, rec := range rep.Records {
		if !rec.Failed() {
			continue
		}
		if rec.Kind == schema.KindAssert {
			return VerdictInvalid
		}
		verdict = VerdictInvalidUnexpectedReport
	}
	return verdict
}

// RoleValidator invalidates only on records whose role tag is in its
// set. Useful when a schema mixes, say, "error" and "warning" roles and
// warnings should not fail the document.
type RoleValidator struct {
	// InvalidatingRoles lists the role tags that count as failures.
	InvalidatingRoles []string
}

// Judge implements Validator.
func (v RoleValidator) Judge(rep *Report) Verdict {
	verdict := VerdictValid
	for _, rec := range rep.Records {
		if !rec.Failed() || !v.invalidating(rec.Role) {
			continue
		}
		if rec.Kind == schema.KindAssert {
			return VerdictInvalid
		}
		verdict = VerdictInvalidUnexpectedReport
	}
	return verdict
}

func (v RoleValidator) invalidating(role string) bool {
	for _, r := range v.InvalidatingRoles {
		if r == role {
			return true
		}
	}
	return false
}
