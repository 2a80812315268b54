package billparser

import (
	"regexp"
	"strings"
)

// Candidate is one scored match for a field. Candidates live only for the
// duration of a single selection.
type Candidate struct {
	Value   string
	Score   int
	Pattern string
	// Offset is the byte position of the value in the full document.
	Offset int
	// Line is the full source line the value was found on.
	Line string
}

// Anchor is the document position candidates are scored against.
// Offset is -1 when the document has no identifier.
type Anchor struct {
	Offset int
}

// Rule is one extraction pattern with its validator and scorer.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Group    int
	Validate func(Candidate) bool
	Score    func(Candidate, Anchor) int
}

// Engine applies a fixed list of rules and picks the best candidate.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine. Rule order breaks score ties.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// Collect returns every validated candidate in region, in rule order.
// base is the offset of region within the full document.
func (e *Engine) Collect(region string, base int, anchor Anchor) []Candidate {
	var out []Candidate
	for _, rule := range e.rules {
		for _, m := range rule.Pattern.FindAllStringSubmatchIndex(region, -1) {
			start, end := m[2*rule.Group], m[2*rule.Group+1]
			if start < 0 {
				continue
			}
			value := cleanValue(region[start:end])
			if value == "" {
				continue
			}
			c := Candidate{
				Value:   value,
				Pattern: rule.Name,
				Offset:  base + start,
				Line:    lineAt(region, start),
			}
			if rule.Validate != nil && !rule.Validate(c) {
				continue
			}
			if rule.Score != nil {
				c.Score = rule.Score(c, anchor)
			}
			out = append(out, c)
		}
	}
	return out
}

// Best returns the highest-scoring candidate. Ties keep the earlier one.
func (e *Engine) Best(region string, base int, anchor Anchor) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range e.Collect(region, base, anchor) {
		if !found || c.Score > best.Score {
			best = c
			found = true
		}
	}
	return best, found
}

// First returns the first validated candidate.
func (e *Engine) First(region string, base int) (Candidate, bool) {
	cands := e.Collect(region, base, Anchor{Offset: -1})
	if len(cands) == 0 {
		return Candidate{}, false
	}
	return cands[0], true
}

func lineAt(s string, pos int) string {
	start := strings.LastIndexByte(s[:pos], '\n') + 1
	end := strings.IndexByte(s[pos:], '\n')
	if end < 0 {
		return s[start:]
	}
	return s[start : pos+end]
}

func cleanValue(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " ,;:-")
}
