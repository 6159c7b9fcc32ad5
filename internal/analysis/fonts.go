package analysis

import "strings"

// Font is one entry in the free-font catalog offered to customers whose
// artwork is text-only. All entries are OFL or public-domain licensed so the
// production team can engrave them without clearance.
type Font struct {
	Name    string `json:"name"`
	Style   string `json:"style"`
	License string `json:"license"`
	Sample  string `json:"sample,omitempty"`
}

// Catalog keyed by the style labels the vision classifier emits.
var freeFonts = map[string][]Font{
	"traditional_korean": {
		{Name: "Nanum Myeongjo", Style: "traditional_korean", License: "OFL"},
		{Name: "Song Myung", Style: "traditional_korean", License: "OFL"},
		{Name: "Gowun Batang", Style: "traditional_korean", License: "OFL"},
	},
	"modern_logo": {
		{Name: "Black Han Sans", Style: "modern_logo", License: "OFL"},
		{Name: "Jua", Style: "modern_logo", License: "OFL"},
		{Name: "Do Hyeon", Style: "modern_logo", License: "OFL"},
	},
	"handwriting_style": {
		{Name: "Nanum Pen Script", Style: "handwriting_style", License: "OFL"},
		{Name: "Gaegu", Style: "handwriting_style", License: "OFL"},
		{Name: "East Sea Dokdo", Style: "handwriting_style", License: "OFL"},
	},
	"company_seal": {
		{Name: "Gugi", Style: "company_seal", License: "OFL"},
		{Name: "Hahmlet", Style: "company_seal", License: "OFL"},
	},
}

// MatchFonts returns catalog entries for a classifier style guess. Unknown or
// empty guesses fall back to the traditional catalog, which is what most seal
// orders want.
func MatchFonts(styleGuess string) []Font {
	key := strings.ToLower(strings.TrimSpace(styleGuess))
	if fonts, ok := freeFonts[key]; ok {
		return append([]Font(nil), fonts...)
	}
	for k, fonts := range freeFonts {
		if key != "" && strings.Contains(k, key) {
			return append([]Font(nil), fonts...)
		}
	}
	return append([]Font(nil), freeFonts["traditional_korean"]...)
}

// KnownStyles lists the catalog keys, for validation of classifier output.
func KnownStyles() []string {
	return []string{"traditional_korean", "modern_logo", "handwriting_style", "company_seal"}
}
