package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
)

// GenerationResult is one try at the generation stage. Retries append a fresh
// record rather than mutating a failed one, so attempt history stays auditable.
type GenerationResult struct {
	ID           uuid.UUID                  `json:"id"`
	OrderID      uuid.UUID                  `json:"order_id"`
	Attempt      int                        `json:"attempt"`
	Prompt       string                     `json:"prompt"`
	RasterRef    string                     `json:"raster_ref,omitempty"`
	SVGRef       string                     `json:"svg_ref,omitempty"`
	EPSRef       string                     `json:"eps_ref,omitempty"`
	AIRef        string                     `json:"ai_ref,omitempty"`
	Status       constants.GenerationStatus `json:"status"`
	Elapsed      time.Duration              `json:"elapsed"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
}
