package encoding

import "testing"

func TestEscapeXMLText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain text", "Hello World", "Hello World"},
		{"ampersand", "Tom & Jerry", "Tom &amp; Jerry"},
		{"less than", "a < b", "a &lt; b"},
		{"greater than", "a > b", "a &gt; b"},
		{"quotes preserved", `He said "hello"`, `He said "hello"`},
		{"all three", "<script>&</script>", "&lt;script&gt;&amp;&lt;/script&gt;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeXMLText(tt.input)
			if got != tt.want {
				t.Errorf("EscapeXMLText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEscapeXMLAttr(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", ";", ";"},
		{"quote", `"`, "&quot;"},
		{"ampersand and angle", "<&>", "&lt;&amp;&gt;"},
		{"tab", "\t", "&#9;"},
		{"crlf", "\r\n", "&#13;&#10;"},
		{"nul", "\x00", "&#0;"},
		{"unicode", "é|", "é|"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeXMLAttr(tt.input)
			if got != tt.want {
				t.Errorf("EscapeXMLAttr(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPrintable(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"abc", "abc"},
		{"\t", `\t`},
		{"a\r\nb", `a\r\nb`},
		{`\`, `\\`},
		{"\x01", `\u0001`},
	}
	for _, tt := range tests {
		if got := Printable(tt.input); got != tt.want {
			t.Errorf("Printable(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
