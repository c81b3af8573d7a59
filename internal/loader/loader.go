package loader

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/sentra/schematron/internal/schema"
)

// Accepted Schematron namespaces.
const (
	NamespaceISO  = "http://purl.oclc.org/dsdl/schematron"
	NamespaceASCC = "http://www.ascc.net/xml/schematron"
)

// LoadError describes why a schema document could not be loaded.
type LoadError struct {
	Element string
	Message string
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("load schematron: <%s>: %s", e.Element, e.Message)
	}
	return "load schematron: " + e.Message
}

// LoadFile parses the Schematron file at path.
func LoadFile(path string) (*schema.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load schematron: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a Schematron document and returns the flattened model.
func Load(r io.Reader) (*schema.Schema, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("load schematron: parse: %w", err)
	}

	root := documentElement(doc)
	if root == nil || root.Data != "schema" || !schematronNS(root) {
		return nil, &LoadError{Message: "document element is not a schematron schema"}
	}

	p := &parser{}
	sch, err := p.parseSchema(root)
	if err != nil {
		return nil, err
	}
	if err := p.flatten(sch); err != nil {
		return nil, err
	}
	return sch, nil
}

// parser accumulates the abstract constructs the flattening pass
// resolves after the structural parse.
type parser struct {
	// abstractRules maps rule ID -> rule body for sch:extends
	// resolution. Rule IDs are schema-global in practice, so one map
	// suffices.
	abstractRules map[string]abstractRule

	// extends maps a pattern index and rule index to the ordered list
	// of extended rule IDs.
	extends map[[2]int][]string

	// abstractPatterns maps pattern ID -> parsed abstract pattern.
	abstractPatterns map[string]schema.Pattern

	// instances records is-a instantiations in declaration position.
	instances map[int]patternInstance

	// abstract marks pattern indexes that must be dropped after
	// flattening.
	abstract map[int]bool
}

// abstractRule keeps an abstract rule body together with its own
// extends references, which resolve recursively.
type abstractRule struct {
	rule schema.Rule
	ext  []string
}

// patternInstance is a sch:pattern is-a="..." occurrence.
type patternInstance struct {
	id     string
	title  string
	isA    string
	params map[string]string
}

func (p *parser) parseSchema(root *xmlquery.Node) (*schema.Schema, error) {
	p.abstractRules = make(map[string]abstractRule)
	p.extends = make(map[[2]int][]string)
	p.abstractPatterns = make(map[string]schema.Pattern)
	p.instances = make(map[int]patternInstance)
	p.abstract = make(map[int]bool)

	sch := &schema.Schema{
		QueryBinding: attr(root, "queryBinding"),
		DefaultPhase: attr(root, "defaultPhase"),
	}

	for n := range elements(root) {
		switch n.Data {
		case "title":
			sch.Title = collapseSpace(n.InnerText())
		case "ns":
			sch.Namespaces = append(sch.Namespaces, schema.Namespace{
				Prefix: attr(n, "prefix"),
				URI:    attr(n, "uri"),
			})
		case "let":
			sch.Lets = append(sch.Lets, parseLet(n))
		case "phase":
			sch.Phases = append(sch.Phases, parsePhase(n))
		case "pattern":
			if err := p.parsePattern(sch, n); err != nil {
				return nil, err
			}
		case "diagnostics":
			for d := range elements(n) {
				if d.Data != "diagnostic" {
					continue
				}
				sch.Diagnostics = append(sch.Diagnostics, schema.Diagnostic{
					ID:      attr(d, "id"),
					Message: parseMessage(d),
				})
			}
		}
	}

	return sch, nil
}

func (p *parser) parsePattern(sch *schema.Schema, n *xmlquery.Node) error {
	idx := len(sch.Patterns)

	pat := schema.Pattern{ID: attr(n, "id")}
	if pat.ID == "" {
		pat.ID = fmt.Sprintf("pattern%d", idx+1)
	}

	if isA := attr(n, "is-a"); isA != "" {
		inst := patternInstance{
			id:     pat.ID,
			isA:    isA,
			params: make(map[string]string),
		}
		for c := range elements(n) {
			switch c.Data {
			case "title":
				inst.title = collapseSpace(c.InnerText())
			case "param":
				name := attr(c, "name")
				if _, dup := inst.params[name]; dup {
					return &LoadError{Element: "param", Message: "duplicate param " + name + " in pattern " + pat.ID}
				}
				inst.params[name] = attr(c, "value")
			}
		}
		p.instances[idx] = inst
		sch.Patterns = append(sch.Patterns, pat) // placeholder, replaced by flatten
		return nil
	}

	if attr(n, "abstract") == "true" {
		p.abstract[idx] = true
	}

	ruleIdx := 0
	for c := range elements(n) {
		switch c.Data {
		case "title":
			pat.Title = collapseSpace(c.InnerText())
		case "let":
			pat.Lets = append(pat.Lets, parseLet(c))
		case "rule":
			rule, ext, err := parseRule(c)
			if err != nil {
				return err
			}
			if rule.Abstract {
				if rule.ID == "" {
					return &LoadError{Element: "rule", Message: "abstract rule without id in pattern " + pat.ID}
				}
				p.abstractRules[rule.ID] = abstractRule{rule: rule, ext: ext}
				continue
			}
			if rule.Context == "" {
				return &LoadError{Element: "rule", Message: "rule without context in pattern " + pat.ID}
			}
			if len(ext) > 0 {
				p.extends[[2]int{idx, ruleIdx}] = ext
			}
			pat.Rules = append(pat.Rules, rule)
			ruleIdx++
		}
	}

	if p.abstract[idx] {
		if pat.ID == "" {
			return &LoadError{Element: "pattern", Message: "abstract pattern without id"}
		}
		p.abstractPatterns[pat.ID] = pat
	}

	sch.Patterns = append(sch.Patterns, pat)
	return nil
}

func parsePhase(n *xmlquery.Node) schema.Phase {
	phase := schema.Phase{ID: attr(n, "id")}
	for c := range elements(n) {
		switch c.Data {
		case "active":
			phase.ActivePatterns = append(phase.ActivePatterns, attr(c, "pattern"))
		case "let":
			phase.Lets = append(phase.Lets, parseLet(c))
		}
	}
	return phase
}

// parseRule returns the rule plus the ordered sch:extends references.
func parseRule(n *xmlquery.Node) (schema.Rule, []string, error) {
	rule := schema.Rule{
		ID:       attr(n, "id"),
		Context:  attr(n, "context"),
		Abstract: attr(n, "abstract") == "true",
	}

	var ext []string
	for c := range elements(n) {
		switch c.Data {
		case "extends":
			ref := attr(c, "rule")
			if ref == "" {
				return rule, nil, &LoadError{Element: "extends", Message: "missing rule attribute"}
			}
			ext = append(ext, ref)
		case "let":
			rule.Lets = append(rule.Lets, parseLet(c))
		case "assert", "report":
			a, err := parseAssertion(c)
			if err != nil {
				return rule, nil, err
			}
			rule.Assertions = append(rule.Assertions, a)
		}
	}

	return rule, ext, nil
}

func parseAssertion(n *xmlquery.Node) (schema.Assertion, error) {
	a := schema.Assertion{
		ID:      attr(n, "id"),
		Test:    attr(n, "test"),
		Role:    attr(n, "role"),
		Flag:    attr(n, "flag"),
		Message: parseMessage(n),
	}
	if n.Data == "report" {
		a.Kind = schema.KindReport
	}
	if a.Test == "" {
		return a, &LoadError{Element: n.Data, Message: "missing test attribute"}
	}
	if refs := strings.Fields(attr(n, "diagnostics")); len(refs) > 0 {
		a.Diagnostics = refs
	}
	return a, nil
}

// parseMessage turns mixed element content into a message template:
// text nodes become literal parts, sch:value-of and sch:name become
// placeholders. Whitespace inside literals collapses to single spaces;
// the assembled template is trimmed at both ends.
func parseMessage(n *xmlquery.Node) schema.Message {
	var parts []schema.Part
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode:
			if t := foldSpace(c.Data); t != "" {
				parts = append(parts, schema.Text(t))
			}
		case c.Type == xmlquery.ElementNode && schematronNS(c) && c.Data == "value-of":
			parts = append(parts, schema.ValueOf{Select: attr(c, "select")})
		case c.Type == xmlquery.ElementNode && schematronNS(c) && c.Data == "name":
			parts = append(parts, schema.Name{})
		case c.Type == xmlquery.ElementNode:
			// Foreign markup (e.g. emphasis) contributes its text only.
			if t := foldSpace(c.InnerText()); t != "" {
				parts = append(parts, schema.Text(t))
			}
		}
	}
	return schema.Message{Parts: trimParts(parts)}
}

func parseLet(n *xmlquery.Node) schema.Let {
	let := schema.Let{Name: attr(n, "name"), Value: attr(n, "value")}
	if let.Value == "" {
		let.Value = strings.TrimSpace(n.InnerText())
	}
	return let
}

// trimParts strips leading and trailing whitespace from the template
// edges and drops empty literals left behind.
func trimParts(parts []schema.Part) []schema.Part {
	if len(parts) == 0 {
		return nil
	}
	if t, ok := parts[0].(schema.Text); ok {
		parts[0] = schema.Text(strings.TrimLeft(string(t), " "))
	}
	if t, ok := parts[len(parts)-1].(schema.Text); ok {
		parts[len(parts)-1] = schema.Text(strings.TrimRight(string(t), " "))
	}
	out := parts[:0]
	for _, p := range parts {
		if t, ok := p.(schema.Text); ok && t == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// collapseSpace folds runs of whitespace into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// foldSpace collapses internal whitespace but keeps a single boundary
// space at either end, so text keeps its separation from adjacent
// placeholders. Whitespace-only text folds to one space.
func foldSpace(s string) string {
	t := collapseSpace(s)
	if t == "" {
		if s == "" {
			return ""
		}
		return " "
	}
	if strings.TrimLeft(s, " \t\r\n") != s {
		t = " " + t
	}
	if strings.TrimRight(s, " \t\r\n") != s {
		t += " "
	}
	return t
}

// documentElement returns the first element child of the document node.
func documentElement(doc *xmlquery.Node) *xmlquery.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

func schematronNS(n *xmlquery.Node) bool {
	return n.NamespaceURI == NamespaceISO || n.NamespaceURI == NamespaceASCC
}

// elements iterates the Schematron element children of n.
func elements(n *xmlquery.Node) func(yield func(*xmlquery.Node) bool) {
	return func(yield func(*xmlquery.Node) bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode && schematronNS(c) {
				if !yield(c) {
					return
				}
			}
		}
	}
}

func attr(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if a.Name.Local == name && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}
