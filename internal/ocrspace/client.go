// Package ocrspace adapts the OCR.space parse API into the TextExtractor
// contract. The request rides a multipart form with the image inlined as a
// base64 data URL, which is the only upload mode the free tier supports.
package ocrspace

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
)

type parseResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
	ErrorMessage          any  `json:"ErrorMessage"` // string or []string depending on the failure
}

// Client calls OCR.space.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
	log      *slog.Logger
}

func NewClient(cfg common.OCRConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

var _ collab.TextExtractor = (*Client)(nil)

func (c *Client) ExtractText(ctx context.Context, image []byte, mimeType string) (collab.OCRResult, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"apikey":      c.apiKey,
		"language":    "kor",
		"OCREngine":   "2",
		"scale":       "true",
		"base64Image": fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image)),
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return collab.OCRResult{}, common.WrapError(err, "build ocr form")
		}
	}
	if err := form.Close(); err != nil {
		return collab.OCRResult{}, common.WrapError(err, "close ocr form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return collab.OCRResult{}, common.WrapError(err, "build ocr request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return collab.OCRResult{}, common.NewServiceError("ocr.extract", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return collab.OCRResult{}, common.NewServiceError("ocr.extract", err)
	}
	if resp.StatusCode != http.StatusOK {
		return collab.OCRResult{}, common.NewServiceError("ocr.extract",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var pr parseResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return collab.OCRResult{}, common.WrapError(err, "parse ocr response")
	}
	if pr.IsErroredOnProcessing {
		return collab.OCRResult{}, common.NewServiceError("ocr.extract",
			fmt.Errorf("provider error: %v", pr.ErrorMessage))
	}

	var parts []string
	for _, r := range pr.ParsedResults {
		if t := strings.TrimSpace(r.ParsedText); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, "\n")

	return collab.OCRResult{
		Text:           text,
		FontStyleGuess: guessStyle(text),
		Raw:            raw,
	}, nil
}

// guessStyle is a coarse hint the vision classifier can override: Hangul text
// defaults to the traditional catalog, Latin-only text to the logo catalog.
func guessStyle(text string) string {
	if text == "" {
		return ""
	}
	for _, r := range text {
		if unicode.Is(unicode.Hangul, r) {
			return "traditional_korean"
		}
	}
	return "modern_logo"
}
