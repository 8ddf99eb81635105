package preparse

import (
	"regexp"
	"strings"
)

// Floor-label patterns for the two supported document languages. Construction
// drawings title their sheets with the floor in a page header, so any match
// near the start of a line is taken as an anchor.
var (
	englishFloorRe = regexp.MustCompile(`(?im)^\s*((?:ground|first|second|third)\s+floor|(?:floor|level|storey)\s*[-: ]?\s*[A-Za-z0-9]+|basement(?:\s+[0-9]+)?)\b`)
	hebrewFloorRe  = regexp.MustCompile(`(?m)(קומת?\s+[א-ת0-9]+|קומה\s*[-: ]?\s*[א-ת0-9]+|מרתף(?:\s+[0-9]+)?)`)
)

// FindFloorLabels returns distinct floor labels found in the text, in order
// of first appearance.
func FindFloorLabels(text string) []string {
	var labels []string
	seen := make(map[string]bool)

	add := func(matches []string) {
		for _, m := range matches {
			label := strings.TrimSpace(m)
			key := strings.ToLower(label)
			if label == "" || seen[key] {
				continue
			}
			seen[key] = true
			labels = append(labels, label)
		}
	}

	add(englishFloorRe.FindAllString(text, -1))
	add(hebrewFloorRe.FindAllString(text, -1))
	return labels
}
