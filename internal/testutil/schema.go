package testutil

import (
	"testing"

	"github.com/sentra/schematron/internal/schema"
)

// SingleRuleSchema builds a schema with one pattern holding one rule,
// the common shape for focused engine tests.
func SingleRuleSchema(t *testing.T, context string, assertions ...schema.Assertion) *schema.Schema {
	t.Helper()

	return &schema.Schema{
		Title: "test schema",
		Patterns: []schema.Pattern{{
			ID: "p1",
			Rules: []schema.Rule{{
				ID:         "r1",
				Context:    context,
				Assertions: assertions,
			}},
		}},
	}
}

// Assert builds an assert with a plain text message.
func Assert(id, test, message string) schema.Assertion {
	return schema.Assertion{
		Kind:    schema.KindAssert,
		ID:      id,
		Test:    test,
		Message: schema.TextMessage(message),
	}
}

// Report builds a report with a plain text message.
func Report(id, test, message string) schema.Assertion {
	return schema.Assertion{
		Kind:    schema.KindReport,
		ID:      id,
		Test:    test,
		Message: schema.TextMessage(message),
	}
}
