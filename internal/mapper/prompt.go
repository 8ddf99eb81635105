package mapper

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/buildscan/qto/internal/preparse"
	"github.com/buildscan/qto/internal/recognize"
)

const systemPromptEnglish = `You extract construction quantity takeoffs from OCR output of building documents (floor plans, room schedules, bills of quantities).
Return strict JSON only, with this shape:
{"floors":[{"label":"Floor 2","rooms":[{"label":"Kitchen","items":[{"material":"concrete","quantity":"3.5","unit":"m3","confidence":0.9}]}]}]}
Rules:
- "quantity" is always a decimal number as a string. Never invent quantities.
- Use the document's own floor and room labels. Rooms without a floor heading go under the floor label "Unassigned".
- Typical English conventions: "Floor 1", "Ground Floor", "Level B1"; rooms like "Kitchen", "Bathroom", "Living Room"; units like m2, m3, pcs, kg, bags.
- "confidence" in [0,1] reflects how sure you are the item was really on the page.`

const systemPromptHebrew = `You extract construction quantity takeoffs from OCR output of Hebrew building documents (תוכניות קומה, לוחות חדרים, כתבי כמויות).
Return strict JSON only, with this shape:
{"floors":[{"label":"קומה 2","rooms":[{"label":"מטבח","items":[{"material":"בטון","quantity":"3.5","unit":"מ\"ק","confidence":0.9}]}]}]}
Rules:
- "quantity" is always a decimal number as a string. Never invent quantities.
- Use the document's own floor and room labels. Rooms without a floor heading go under the floor label "Unassigned".
- Typical Hebrew conventions: "קומה 1", "קומת קרקע", "מרתף"; rooms like "מטבח", "סלון", "חדר רחצה"; units like מ"ר, מ"ק, יח', ק"ג.
- "confidence" in [0,1] reflects how sure you are the item was really on the page.`

// systemPrompt returns the language-matched instructions. An unknown language
// falls back to English; wrong-language input degrades match quality but must
// never block processing.
func systemPrompt(lang Language) string {
	if lang == LanguageHebrew {
		return systemPromptHebrew
	}
	return systemPromptEnglish
}

// buildUserPrompt flattens the recognition result and pre-parse hints into
// one prompt body. Hints come last so the model treats them as confirmation
// of uncertain OCR, not as primary content.
func buildUserPrompt(rec *recognize.Result, hints preparse.Hints) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Document pages %d-%d.\n\nOCR TEXT BLOCKS:\n", rec.StartPage, rec.EndPage)
	currentPage := -1
	for _, b := range rec.Blocks {
		if b.Page != currentPage {
			fmt.Fprintf(&sb, "--- page %d ---\n", b.Page)
			currentPage = b.Page
		}
		fmt.Fprintf(&sb, "[conf %.2f] %s\n", b.Confidence, b.Text)
	}

	if len(rec.Tables) > 0 {
		sb.WriteString("\nOCR TABLES:\n")
		for _, t := range rec.Tables {
			fmt.Fprintf(&sb, "--- table on page %d ---\n", t.Page)
			for _, row := range t.Rows {
				sb.WriteString(strings.Join(row, "\t"))
				sb.WriteString("\n")
			}
		}
	}

	if !hints.Empty() {
		sb.WriteString("\nEMBEDDED TEXT HINTS (machine-readable layer, use to confirm uncertain OCR):\n")
		for _, a := range hints.Anchors {
			fmt.Fprintf(&sb, "floor label on page %d: %q\n", a.Page, a.Label)
		}
		for _, p := range hints.Pages {
			fmt.Fprintf(&sb, "--- embedded text, page %d (quality %.2f) ---\n%s\n", p.Page, p.Quality, truncate(p.Text, 2000))
		}
	}

	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary so Hebrew text is not cut mid-rune.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
