// Package testutil provides shared helpers for package tests.
package testutil

import (
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
)

// MustParseXML parses an XML document literal, failing the test on
// malformed input.
func MustParseXML(t *testing.T, doc string) *xmlquery.Node {
	t.Helper()

	n, err := xmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse xml: %v", err)
	}
	return n
}

// FindOne returns the first node matched by the XPath expression,
// failing the test when nothing matches.
func FindOne(t *testing.T, doc *xmlquery.Node, expr string) *xmlquery.Node {
	t.Helper()

	n := xmlquery.FindOne(doc, expr)
	if n == nil {
		t.Fatalf("no node matches %q", expr)
	}
	return n
}
