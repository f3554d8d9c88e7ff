package pagelem

import "testing"

func TestPrependXPath(t *testing.T) {
	tests := []struct {
		pre, xpath, glue, want string
	}{
		{"", "a", "", "a"},
		{"div", "//a", "/", "//a"},
		{"div/", "/span", "", "div/span"},
		{"div/", "./span", "", "div/span"},
		{"div", "./span", "", "div/span"},
		{"div", "span", "/", "div/span"},
		{"div", "span", "", "divspan"},
		{"div", "[1]", "/", "div[1]"},
		{".//", "a", "", ".//a"},
		{".//", "/a", "", ".//a"},
		{"//", ".//a", "", "//a"},
		{"./", "/a", "", "./a"},
		{"./", "./a", "", "./a"},
	}
	for _, tt := range tests {
		if got := PrependXPath(tt.pre, tt.xpath, tt.glue); got != tt.want {
			t.Errorf("PrependXPath(%q, %q, %q): got %q, want %q", tt.pre, tt.xpath, tt.glue, got, tt.want)
		}
	}
}

func TestTextEscape(t *testing.T) {
	tests := []struct{ in, want string }{
		{"abc", "'abc'"},
		{"it's", `"it's"`},
		{`say "hi"`, `'say "hi"'`},
		{`it's "x"`, `concat('it', "'", 's "x"')`},
	}
	for _, tt := range tests {
		if got := TextEscape(tt.in); got != tt.want {
			t.Errorf("TextEscape(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchClauseXPath(t *testing.T) {
	tests := []struct {
		val      string
		hasValue bool
		want     string
	}{
		{"", false, "@a"},
		{"!", true, "not(@a)"},
		{"x", true, "@a='x'"},
		{"!x", true, "not(@a='x')"},
		{"+x", true, "contains(@a,'x')"},
		{"+x y", true, "boolean(contains(@a,'x') and contains(@a,'y'))"},
		{"!+x y", true, "not(contains(@a,'x') and contains(@a,'y'))"},
	}
	for _, tt := range tests {
		if got := parseMatchValue(tt.val, tt.hasValue).xpath("a"); got != tt.want {
			t.Errorf("clause %q: got %q, want %q", tt.val, got, tt.want)
		}
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int }{
		{3, 2, 1},
		{-3, 2, -2},
		{-4, 2, -2},
		{0, 2, 0},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d): got %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestProtectRawText(t *testing.T) {
	tests := []struct{ in, want string }{
		{`<div>a<b</div>`, `<div>a<b</div>`},
		{`<pe-regex name="x">a<b>&</pe-regex>`, `<pe-regex name="x">a&lt;b&gt;&amp;</pe-regex>`},
		{`<PE-DATA name="d">{"t":"<i>"}</PE-DATA>`, `<PE-DATA name="d">{"t":"&lt;i&gt;"}</PE-DATA>`},
		{`<pe-data name="d" value="a>b"/><b>x</b>`, `<pe-data name="d" value="a>b"/><b>x</b>`},
		{`<pe-regexes>a<b</pe-regexes>`, `<pe-regexes>a<b</pe-regexes>`},
	}
	for _, tt := range tests {
		if got := string(protectRawText([]byte(tt.in))); got != tt.want {
			t.Errorf("protectRawText(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
