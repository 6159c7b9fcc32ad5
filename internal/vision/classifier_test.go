package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopick/madstamp/constants"
)

func TestParseValidReply(t *testing.T) {
	raw := `{
		"image_type": "logo",
		"has_text": true,
		"detected_text": "GOOPICK",
		"font_style": "modern_logo",
		"intent_guess": "company stamp",
		"judgment_score": 87.5,
		"concerns": ["thin strokes"],
		"verdict": "producible",
		"reason": "clean silhouette",
		"confidence": 0.92
	}`
	res, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "GOOPICK", res.DetectedText)
	assert.Equal(t, 87.5, res.JudgmentScore)
	assert.Equal(t, constants.VerdictProducible, res.Verdict)
	assert.Equal(t, []string{"thin strokes"}, res.Concerns)
	assert.NotEmpty(t, res.Raw)
}

func TestParseStripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"image_type\":\"photo\",\"has_text\":false,\"judgment_score\":40,\"verdict\":\"needs_clarification\",\"confidence\":0.6}\n```"
	res, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, constants.VerdictNeedsClarification, res.Verdict)
}

func TestParseDropsUnknownFontStyle(t *testing.T) {
	raw := `{"image_type":"logo","has_text":true,"font_style":"art deco brutalism","judgment_score":70,"verdict":"producible","confidence":0.8}`
	res, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, res.FontStyle, "invented styles must not reach font matching")

	raw = `{"image_type":"logo","has_text":true,"font_style":" Handwriting_Style ","judgment_score":70,"verdict":"producible","confidence":0.8}`
	res, err = Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "handwriting_style", res.FontStyle)
}

func TestParseRejectsBadVerdict(t *testing.T) {
	raw := `{"image_type":"logo","has_text":false,"judgment_score":80,"verdict":"maybe","confidence":0.5}`
	_, err := Parse([]byte(raw))
	assert.Error(t, err)
}

func TestParseRejectsMissingFields(t *testing.T) {
	_, err := Parse([]byte(`{"image_type":"logo"}`))
	assert.Error(t, err)
}

func TestParseRejectsOutOfRangeScore(t *testing.T) {
	raw := `{"image_type":"logo","has_text":false,"judgment_score":140,"verdict":"producible","confidence":0.5}`
	_, err := Parse([]byte(raw))
	assert.Error(t, err)
}

func TestParseRejectsNonJSON(t *testing.T) {
	_, err := Parse([]byte("I think this would make a lovely stamp!"))
	assert.Error(t, err)
}
