package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// XPath is the default Evaluator: XPath 1.0 over xmlquery documents.
//
// Variable references ($name) are resolved by substituting the bound
// value as a literal into the expression text before compilation.
// References inside string literals are left untouched.
//
// XPath is stateless apart from its namespace table and safe for
// concurrent use.
type XPath struct {
	namespaces map[string]string
}

// XPathOption configures an XPath evaluator.
type XPathOption func(*XPath)

// WithNamespaces sets the prefix -> URI table used when compiling
// expressions. Typically fed from schema.NamespaceMap().
func WithNamespaces(ns map[string]string) XPathOption {
	return func(x *XPath) {
		x.namespaces = ns
	}
}

// NewXPath creates the default XPath evaluator.
func NewXPath(opts ...XPathOption) *XPath {
	x := &XPath{}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Evaluate implements Evaluator.
func (x *XPath) Evaluate(ctx context.Context, expr string, contextNode *xmlquery.Node, bindings map[string]any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	expanded, err := substituteVariables(expr, bindings)
	if err != nil {
		return nil, err
	}

	compiled, err := x.compile(expanded)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w: %v", expr, ErrInvalidExpression, err)
	}

	nav := xmlquery.CreateXPathNavigator(contextNode)
	switch v := compiled.Evaluate(nav).(type) {
	case *xpath.NodeIterator:
		var nodes NodeSet
		for v.MoveNext() {
			if cur, ok := v.Current().(*xmlquery.NodeNavigator); ok {
				nodes = append(nodes, cur.Current())
			}
		}
		return nodes, nil
	default:
		return Scalar{Value: v}, nil
	}
}

// compile compiles with the namespace table when one is configured.
func (x *XPath) compile(expr string) (*xpath.Expr, error) {
	if len(x.namespaces) > 0 {
		return xpath.CompileWithNS(expr, x.namespaces)
	}
	return xpath.Compile(expr)
}

// substituteVariables replaces each $name reference outside string
// literals with the literal form of its binding. A reference with no
// binding is an ErrUnboundVariable.
func substituteVariables(expr string, bindings map[string]any) (string, error) {
	if !strings.ContainsRune(expr, '$') {
		return expr, nil
	}

	var b strings.Builder
	var quote rune // 0 when outside a string literal
	runes := []rune(expr)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}

		switch {
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)

		case r == '$':
			name, width := scanVarName(runes[i+1:])
			if width == 0 {
				// A lone "$" is left for the XPath compiler to reject.
				b.WriteRune(r)
				continue
			}
			val, ok := bindings[name]
			if !ok {
				return "", fmt.Errorf("variable $%s: %w", name, ErrUnboundVariable)
			}
			lit, err := literal(val)
			if err != nil {
				return "", fmt.Errorf("variable $%s: %w", name, err)
			}
			b.WriteString(lit)
			i += width

		default:
			b.WriteRune(r)
		}
	}

	return b.String(), nil
}

// scanVarName reads a variable name (NCName shape) and returns it with
// the number of runes consumed.
func scanVarName(runes []rune) (string, int) {
	if len(runes) == 0 || !isNameStart(runes[0]) {
		return "", 0
	}
	n := 1
	for n < len(runes) && isNamePart(runes[n]) {
		n++
	}
	return string(runes[:n]), n
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNamePart(r rune) bool {
	return isNameStart(r) || r == '-' || r == '.' || unicode.IsDigit(r)
}

// literal renders a bound value as an XPath 1.0 literal.
func literal(val any) (string, error) {
	switch v := val.(type) {
	case string:
		return stringLiteral(v)
	case bool:
		if v {
			return "true()", nil
		}
		return "false()", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported binding type %T", val)
	}
}

// stringLiteral quotes a string for XPath 1.0, which has no escape
// syntax inside literals.
func stringLiteral(s string) (string, error) {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'", nil
	case !strings.Contains(s, `"`):
		return `"` + s + `"`, nil
	default:
		return "", fmt.Errorf("string contains both quote kinds")
	}
}
