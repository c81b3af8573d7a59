package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Sentinel errors for the two failure classes of the evaluation
// boundary. Implementations wrap these with expression context.
var (
	// ErrInvalidExpression indicates the expression is malformed and can
	// never evaluate.
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrUnboundVariable indicates the expression references a variable
	// with no binding in scope.
	ErrUnboundVariable = errors.New("unbound variable")
)

// Result is the outcome of one expression evaluation: either a node-set
// or a scalar. Exactly two implementations exist: NodeSet and Scalar.
type Result interface {
	result()
}

// NodeSet is an ordered set of matched nodes. The default evaluator
// returns nodes in document order.
type NodeSet []*xmlquery.Node

func (NodeSet) result() {}

// Scalar holds a non-node value: bool, float64 or string.
type Scalar struct {
	Value any
}

func (Scalar) result() {}

// Evaluator evaluates one expression against one context node with the
// given variable bindings in scope. Implementations must be safe for
// concurrent use: the engine shares one Evaluator across runs.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, contextNode *xmlquery.Node, bindings map[string]any) (Result, error)
}

// Truth reduces a result to an XPath effective boolean value: a node-set
// is true when non-empty, a number when non-zero and not NaN, a string
// when non-empty.
func Truth(r Result) bool {
	switch t := r.(type) {
	case NodeSet:
		return len(t) > 0
	case Scalar:
		switch v := t.Value.(type) {
		case bool:
			return v
		case float64:
			return v != 0 && !math.IsNaN(v)
		case string:
			return v != ""
		}
	}
	return false
}

// Text reduces a result to its XPath string value: the string value of
// the first node for a node-set, number formatting without a trailing
// ".0" for integral floats, "true"/"false" for booleans.
func Text(r Result) string {
	switch t := r.(type) {
	case NodeSet:
		if len(t) == 0 {
			return ""
		}
		return t[0].InnerText()
	case Scalar:
		switch v := t.Value.(type) {
		case bool:
			return strconv.FormatBool(v)
		case float64:
			return formatNumber(v)
		case string:
			return v
		}
	}
	return ""
}

// formatNumber renders a float the way XPath string() does: integral
// values without a fractional part.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Location renders a stable rooted path for a node, with positional
// predicates among same-name siblings: /order[1]/item[2], /order[1]/@id.
// The document root renders as "/".
func Location(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == xmlquery.DocumentNode {
		return "/"
	}

	var segs []string
	for cur := n; cur != nil && cur.Type != xmlquery.DocumentNode; cur = cur.Parent {
		switch cur.Type {
		case xmlquery.ElementNode:
			segs = append(segs, fmt.Sprintf("%s[%d]", NodeName(cur), siblingIndex(cur)))
		case xmlquery.AttributeNode:
			segs = append(segs, "@"+NodeName(cur))
		case xmlquery.TextNode, xmlquery.CharDataNode:
			segs = append(segs, "text()")
		case xmlquery.CommentNode:
			segs = append(segs, "comment()")
		}
	}

	var b strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segs[i])
	}
	return b.String()
}

// NodeName returns the qualified name of an element or attribute node.
func NodeName(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

// siblingIndex returns the 1-based position of an element among siblings
// with the same qualified name.
func siblingIndex(n *xmlquery.Node) int {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == xmlquery.ElementNode && sib.Data == n.Data && sib.Prefix == n.Prefix {
			idx++
		}
	}
	return idx
}
