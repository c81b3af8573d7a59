package schema

import "strings"

// Source renders the template back to its source form: literal text
// verbatim, placeholders as their markup. Used for display and as the
// fallback text when a placeholder cannot be substituted.
func (m Message) Source() string {
	var b strings.Builder
	for _, p := range m.Parts {
		b.WriteString(PartSource(p))
	}
	return b.String()
}

// PartSource renders a single template part to its source form.
func PartSource(p Part) string {
	switch t := p.(type) {
	case Text:
		return string(t)
	case ValueOf:
		return `<value-of select="` + t.Select + `"/>`
	case Name:
		return "<name/>"
	default:
		return ""
	}
}

// TextMessage builds a message consisting of a single literal segment.
// Convenience for tests and the CUE frontend, where messages are plain
// strings unless they opt into placeholders.
func TextMessage(s string) Message {
	return Message{Parts: []Part{Text(s)}}
}
