// Package vision adapts the OpenRouter chat-completions API into the
// VisionClassifier contract. The model is forced into JSON-object mode and
// every reply is validated against a schema before the core sees it.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/analysis"
	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
)

const systemPrompt = `You judge whether customer artwork can be engraved as a physical stamp.
Reply with a single JSON object, no prose, matching exactly these keys:
image_type (string), has_text (bool), detected_text (string), font_style (one of
traditional_korean, modern_logo, handwriting_style, company_seal, or empty),
intent_guess (string), judgment_score (number 0-100), concerns (array of strings),
verdict (producible | needs_clarification | not_producible), reason (string),
confidence (number 0-1).`

const replySchema = `{
	"type": "object",
	"required": ["image_type", "has_text", "judgment_score", "verdict", "confidence"],
	"properties": {
		"image_type":     {"type": "string"},
		"has_text":       {"type": "boolean"},
		"detected_text":  {"type": "string"},
		"font_style":     {"type": "string"},
		"intent_guess":   {"type": "string"},
		"judgment_score": {"type": "number", "minimum": 0, "maximum": 100},
		"concerns":       {"type": "array", "items": {"type": "string"}},
		"verdict":        {"type": "string", "enum": ["producible", "needs_clarification", "not_producible"]},
		"reason":         {"type": "string"},
		"confidence":     {"type": "number", "minimum": 0, "maximum": 1}
	}
}`

var compiledSchema = jsonschema.MustCompileString("vision_reply.json", replySchema)

type reply struct {
	ImageType     string   `json:"image_type"`
	HasText       bool     `json:"has_text"`
	DetectedText  string   `json:"detected_text"`
	FontStyle     string   `json:"font_style"`
	IntentGuess   string   `json:"intent_guess"`
	JudgmentScore float64  `json:"judgment_score"`
	Concerns      []string `json:"concerns"`
	Verdict       string   `json:"verdict"`
	Reason        string   `json:"reason"`
	Confidence    float64  `json:"confidence"`
}

// Classifier calls OpenRouter, falling back to a second model when the
// primary fails or returns garbage.
type Classifier struct {
	client        *openai.Client
	model         string
	fallbackModel string
	log           *slog.Logger
}

func NewClassifier(cfg common.VisionConfig, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	return &Classifier{
		client:        openai.NewClientWithConfig(cc),
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		log:           log,
	}
}

var _ collab.VisionClassifier = (*Classifier)(nil)

func (c *Classifier) Classify(ctx context.Context, image []byte, mimeType, customerNote string) (collab.VisionResult, error) {
	res, err := c.classifyWith(ctx, c.model, image, mimeType, customerNote)
	if err == nil || c.fallbackModel == "" || c.fallbackModel == c.model {
		return res, err
	}
	c.log.Warn("vision.primary_failed", "model", c.model, "fallback", c.fallbackModel, "err", err)
	return c.classifyWith(ctx, c.fallbackModel, image, mimeType, customerNote)
}

func (c *Classifier) classifyWith(ctx context.Context, model string, image []byte, mimeType, customerNote string) (collab.VisionResult, error) {
	userText := "Judge this artwork for stamp production."
	if note := strings.TrimSpace(customerNote); note != "" {
		userText += " Customer request: " + note
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: userText},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailAuto,
					}},
				},
			},
		},
	})
	if err != nil {
		return collab.VisionResult{}, common.NewServiceError("vision.classify", err)
	}
	if len(resp.Choices) == 0 {
		return collab.VisionResult{}, common.NewServiceError("vision.classify", fmt.Errorf("model %s returned no choices", model))
	}

	return Parse([]byte(resp.Choices[0].Message.Content))
}

// Parse validates and normalizes a raw model reply. Exported so tests can
// feed captured responses directly.
func Parse(raw []byte) (collab.VisionResult, error) {
	// Some models wrap JSON in a markdown fence despite JSON mode.
	trimmed := strings.TrimSpace(string(raw))
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var generic any
	if err := json.Unmarshal([]byte(trimmed), &generic); err != nil {
		return collab.VisionResult{}, common.WrapError(err, "parse vision reply")
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return collab.VisionResult{}, common.WrapError(err, "validate vision reply")
	}

	var r reply
	if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
		return collab.VisionResult{}, common.WrapError(err, "decode vision reply")
	}

	return collab.VisionResult{
		ImageType:     r.ImageType,
		HasText:       r.HasText,
		DetectedText:  r.DetectedText,
		FontStyle:     normalizeFontStyle(r.FontStyle),
		IntentGuess:   r.IntentGuess,
		JudgmentScore: r.JudgmentScore,
		Concerns:      r.Concerns,
		Verdict:       constants.Producibility(r.Verdict),
		Reason:        r.Reason,
		Confidence:    r.Confidence,
		Raw:           []byte(trimmed),
	}, nil
}

// normalizeFontStyle keeps only the catalog styles font matching understands.
// Models occasionally invent labels; those are dropped rather than passed on.
func normalizeFontStyle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, known := range analysis.KnownStyles() {
		if s == known {
			return s
		}
	}
	return ""
}
