package aggregate

import (
	"strings"

	"golang.org/x/text/cases"
)

var caseFolder = cases.Fold()

// boilerplateTokens are sheet-header fragments that make identical floors or
// rooms look distinct across chunks ("Kitchen (cont.)" on a continuation
// sheet is the same kitchen).
var boilerplateTokens = []string{
	"(cont.)", "(cont)", "(continued)",
	"cont.", "continued",
	"sheet", "drawing",
	"(המשך)", "המשך", "גיליון",
}

// NormalizeLabel produces the merge key for floor and room labels: trimmed,
// case-folded, boilerplate stripped, inner whitespace collapsed.
func NormalizeLabel(label string) string {
	s := caseFolder.String(strings.TrimSpace(label))
	for _, tok := range boilerplateTokens {
		s = strings.ReplaceAll(s, caseFolder.String(tok), " ")
	}
	return collapseSpaces(s)
}

// NormalizeMaterial produces the merge key for material names.
func NormalizeMaterial(name string) string {
	return collapseSpaces(caseFolder.String(strings.TrimSpace(name)))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// displayTitle keeps the first-seen label for display but tidies whitespace.
func displayTitle(label string) string {
	return collapseSpaces(label)
}
