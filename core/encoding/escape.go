package encoding

import (
	"fmt"
	"strings"
	"unicode"
)

// EscapeXMLText escapes the basic XML entities for element content.
func EscapeXMLText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// EscapeXMLAttr escapes text for a double-quoted XML attribute. Whitespace
// and control characters become character references so attribute value
// normalization cannot fold them into spaces; marker strings such as "\t"
// or "\r\n" survive a write/read cycle.
func EscapeXMLAttr(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '&':
			sb.WriteString("&amp;")
		case r == '<':
			sb.WriteString("&lt;")
		case r == '>':
			sb.WriteString("&gt;")
		case r == '"':
			sb.WriteString("&quot;")
		case r == '\t' || r == '\n' || r == '\r' || unicode.IsControl(r):
			fmt.Fprintf(&sb, "&#%d;", r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Printable renders s for diagnostics, quoting markers that are invisible
// in a terminal.
func Printable(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\\':
			sb.WriteString(`\\`)
		case unicode.IsControl(r) || !unicode.IsPrint(r):
			fmt.Fprintf(&sb, `\u%04X`, r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
