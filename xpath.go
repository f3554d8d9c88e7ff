package pagelem

import (
	"regexp"
	"strings"
	"unicode"
)

// attrScores is the specificity each matched attribute contributes to a
// node's locator score. Attributes not listed score defaultAttrScore.
var attrScores = map[string]int{
	"id":     100,
	"name":   80,
	"class":  50,
	"type":   50,
	"action": 60,
}

const (
	defaultAttrScore = 5
	// tagScore is added for a concrete tag name.
	tagScore = 10
	// textScore is consumed by a literal text clause.
	textScore = 20
	// locatorBudget is the budget a top-level locator starts with.
	locatorBudget = 100
	// foldFloor stops folding child clauses once the budget drops to it.
	foldFloor = -100
)

func scoreAttrs(names []string) int {
	total := 0
	for _, n := range names {
		if s, ok := attrScores[n]; ok {
			total += s
		} else {
			total += defaultAttrScore
		}
	}
	return total
}

// TextEscape quotes s as an XPath 1.0 string literal.
func TextEscape(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "concat('" + strings.Join(strings.Split(s, "'"), `', "'", '`) + "')"
}

// PrependXPath joins a prefix onto a relative path, merging the slashes
// at the seam. A non-empty glue is inserted between a prefix that does not
// end in "/" and a path starting with a letter.
func PrependXPath(pre, xpath, glue string) string {
	if pre == "" || strings.HasPrefix(xpath, "//") {
		return xpath
	}
	switch {
	case strings.HasSuffix(pre, "./"):
		if strings.HasPrefix(xpath, "./") {
			return pre[:len(pre)-2] + xpath
		} else if strings.HasPrefix(xpath, "/") {
			return pre[:len(pre)-1] + xpath
		}
	case strings.HasSuffix(pre, "//"):
		return pre + strings.TrimLeft(strings.TrimPrefix(xpath, "."), "/")
	case strings.HasSuffix(pre, "/") && strings.HasPrefix(xpath, "/"):
		return pre[:len(pre)-1] + xpath
	case strings.HasSuffix(pre, "/") && strings.HasPrefix(xpath, "./"):
		return pre + xpath[2:]
	case strings.HasPrefix(xpath, "./"):
		return pre + xpath[1:]
	case glue != "" && !strings.HasSuffix(pre, "/") && startsWithLetter(xpath):
		return pre + glue + xpath
	}
	return pre + xpath
}

func startsWithLetter(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r)
	}
	return false
}

// methodRe matches a fragment that starts with a function call, such as
// "contains(" or "text(", which must always be wrapped as a predicate.
var methodRe = regexp.MustCompile(`^\w+\(`)

// MatchClause is one accepted value of a matched attribute.
type MatchClause struct {
	Op    MatchOp
	Value string
	Words []string
}

// MatchOp is the comparison a MatchClause performs.
type MatchOp int

const (
	MatchExists MatchOp = iota
	MatchAbsent
	MatchEquals
	MatchNotEquals
	MatchContains
	MatchNotContains
)

// MatchAttr is an attribute and the clauses it accepts, combined with "or".
type MatchAttr struct {
	Name    string
	Clauses []MatchClause
}

// parseMatchValue interprets the value of a matched attribute. hasValue is
// false for a bare attribute.
func parseMatchValue(v string, hasValue bool) MatchClause {
	switch {
	case !hasValue:
		return MatchClause{Op: MatchExists}
	case v == "!":
		return MatchClause{Op: MatchAbsent}
	case strings.HasPrefix(v, "!+"):
		return MatchClause{Op: MatchNotContains, Words: strings.Fields(v[2:])}
	case strings.HasPrefix(v, "+"):
		return MatchClause{Op: MatchContains, Words: strings.Fields(v[1:])}
	case strings.HasPrefix(v, "!"):
		return MatchClause{Op: MatchNotEquals, Value: v[1:]}
	}
	return MatchClause{Op: MatchEquals, Value: v}
}

func (c MatchClause) xpath(attr string) string {
	at := "@" + attr
	switch c.Op {
	case MatchExists:
		return at
	case MatchAbsent:
		return "not(" + at + ")"
	case MatchNotEquals:
		return "not(" + at + "=" + TextEscape(c.Value) + ")"
	case MatchContains, MatchNotContains:
		parts := make([]string, len(c.Words))
		for i, w := range c.Words {
			parts[i] = "contains(" + at + "," + TextEscape(w) + ")"
		}
		if c.Op == MatchNotContains {
			return "not(" + strings.Join(parts, " and ") + ")"
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return "boolean(" + strings.Join(parts, " and ") + ")"
	}
	return at + "=" + TextEscape(c.Value)
}

// matchXPath renders the predicates for a list of matched attributes.
func matchXPath(attrs []MatchAttr) string {
	var b strings.Builder
	for _, a := range attrs {
		ors := make([]string, len(a.Clauses))
		for i, c := range a.Clauses {
			ors[i] = c.xpath(a.Name)
		}
		b.WriteString("[")
		b.WriteString(strings.Join(ors, " or "))
		b.WriteString("]")
	}
	return b.String()
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
