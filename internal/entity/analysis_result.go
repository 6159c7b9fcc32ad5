package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
)

// AnalysisResult is one collaborator's verdict for one attachment. A
// re-analysis inserts a new record; rows are never updated.
type AnalysisResult struct {
	ID           uuid.UUID               `json:"id"`
	OrderID      uuid.UUID               `json:"order_id"`
	AttachmentID uuid.UUID               `json:"attachment_id"`
	Kind         constants.AnalysisKind  `json:"kind"`
	Raw          json.RawMessage         `json:"raw,omitempty"`
	Confidence   float64                 `json:"confidence"`
	Verdict      constants.Producibility `json:"verdict"`
	Reason       string                  `json:"reason,omitempty"`
	DetectedText string                  `json:"detected_text,omitempty"`
	FontStyle    string                  `json:"font_style,omitempty"`
	Quality      constants.ImageQuality  `json:"quality,omitempty"`
	Suggestions  []string                `json:"suggestions,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}
