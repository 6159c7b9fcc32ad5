package generation

import (
	"fmt"
	"strings"
)

// PromptInput is what the analysis phase learned about the artwork.
type PromptInput struct {
	DetectedText string
	FontStyle    string
	CustomerNote string
	ImageType    string
}

// Template bodies keyed by classifier style. Wording mirrors what the
// production team uses when briefing a designer by hand.
var promptTemplates = map[string]string{
	"traditional_korean": "A traditional Korean seal (dojang) design: %s rendered in classical seal script, " +
		"balanced inside a round border, deep engraving strokes, single color, no shading.",
	"modern_logo": "A clean modern stamp design: %s as a bold geometric mark, " +
		"strong silhouette, single color, flat fill, crisp edges suitable for engraving.",
	"handwriting_style": "A handwritten-style stamp design: %s in natural brush handwriting, " +
		"organic stroke endings, single color, clear spacing between strokes.",
	"company_seal": "An official company seal design: %s arranged in a circular layout with an outer ring, " +
		"formal lettering, single color, engraving-safe line weights.",
}

const defaultTemplate = "traditional_korean"

// SelectTemplate maps a classifier style guess to a template key. Unknown
// styles use the traditional template, the safest default for seal orders.
func SelectTemplate(fontStyle string) string {
	key := strings.ToLower(strings.TrimSpace(fontStyle))
	if _, ok := promptTemplates[key]; ok {
		return key
	}
	return defaultTemplate
}

// BuildPrompt renders the generation prompt for one order.
func BuildPrompt(in PromptInput) string {
	subject := strings.TrimSpace(in.DetectedText)
	if subject == "" {
		subject = "the customer's artwork"
	}

	var b strings.Builder
	fmt.Fprintf(&b, promptTemplates[SelectTemplate(in.FontStyle)], subject)
	if note := strings.TrimSpace(in.CustomerNote); note != "" {
		fmt.Fprintf(&b, " Customer notes: %s.", note)
	}
	b.WriteString(" Output: high-contrast black artwork on a plain white background.")
	return b.String()
}
