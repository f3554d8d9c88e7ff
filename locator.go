package pagelem

import "strings"

// compile computes the top-level locator of e and of every descendant.
// Locators are fixed once parsing ends, so a Template can be shared.
func compile(e *Element) {
	e.Walk(func(n *Element) bool {
		budget := locatorBudget
		path := xpathLocator(n, &budget, true)
		n.locator = Locator{Path: path, Score: locatorBudget - budget}
		return true
	})
}

// xpathLocator renders n as a path expression. score is the budget shared
// by the whole walk: each node spends its specificity and stops folding
// children once the budget is exhausted. Non-top nodes render as predicate
// clauses of their parent.
func xpathLocator(n *Element, score *int, top bool) string {
	switch n.Kind {
	case NodeAny, NodeNamed, NodeInput, NodeBody, NodeNot:
		if n.Optional && !top {
			return ""
		}
		loc := "*"
		if *score > 0 {
			loc = n.frag
			*score -= n.fragScore
		}
		var locs []string
		if *score > foldFloor {
			for _, c := range n.Children {
				if l := xpathLocator(c, score, false); l != "" && l != "*" {
					locs = append(locs, l)
				}
			}
		}
		if top || len(locs) > 1 || (len(locs) == 1 && methodRe.MatchString(locs[0])) {
			for _, l := range locs {
				loc += "[" + l + "]"
			}
		} else if len(locs) == 1 {
			loc += PrependXPath("/", locs[0], "")
		}
		if n.Kind == NodeNot && !top {
			return "not(" + loc + ")"
		}
		return loc

	case NodeText:
		if *score <= 0 {
			return ""
		}
		*score -= textScore
		if n.Exact {
			return "text()=" + TextEscape(n.Text)
		}
		return "contains(text(), " + TextEscape(strings.TrimSpace(n.Text)) + ")"

	case NodeGroup:
		if *score < foldFloor {
			return ""
		}
		var locs []string
		for _, c := range n.Children {
			if c.Optional {
				continue
			}
			l := xpathLocator(c, score, true)
			if l == "" || l == "*" {
				continue
			}
			// Only a plain step can follow an axis.
			if len(locs) > 0 && !startsWithLetter(l) {
				continue
			}
			locs = append(locs, l)
		}
		return strings.Join(locs, "/following-sibling::")

	case NodeDeep:
		if *score <= foldFloor {
			return ""
		}
		return deepLocator(n, score, ".//")

	case NodeRootReset:
		if !top {
			return ""
		}
		return deepLocator(n, score, "//")
	}
	return ""
}

func deepLocator(n *Element, score *int, prefix string) string {
	*score *= 2
	var locs []string
	for _, c := range n.Children {
		if l := xpathLocator(c, score, false); l != "" && l != "*" {
			locs = append(locs, deepStep(prefix, l))
		}
	}
	*score = floorDiv(*score, 2)
	switch len(locs) {
	case 0:
		*score -= 2
		return "*"
	case 1:
		return locs[0]
	}
	return "boolean(" + strings.Join(locs, " and ") + ")"
}

// deepStep turns a child clause into a clause matching at any depth.
func deepStep(prefix, l string) string {
	switch {
	case strings.HasPrefix(l, "text()"):
		return prefix + l
	case methodRe.MatchString(l):
		return prefix + "*[" + l + "]"
	}
	return PrependXPath(prefix, l, "")
}
