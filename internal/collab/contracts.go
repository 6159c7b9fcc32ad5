// Package collab declares the narrow contracts the core consumes from
// external collaborators. The core never sees vendor-specific response shapes;
// adapters normalize at this boundary.
package collab

import (
	"context"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
)

// VisionResult is the normalized vision-classifier response.
type VisionResult struct {
	ImageType     string
	HasText       bool
	DetectedText  string
	FontStyle     string
	IntentGuess   string
	JudgmentScore float64 // [0,100]
	Concerns      []string
	Verdict       constants.Producibility
	Reason        string
	Confidence    float64 // [0,1]
	Raw           []byte
}

// VisionClassifier judges whether an image can be made into a stamp.
type VisionClassifier interface {
	Classify(ctx context.Context, image []byte, mimeType, customerNote string) (VisionResult, error)
}

// OCRResult is the normalized OCR response.
type OCRResult struct {
	Text           string
	FontStyleGuess string
	Raw            []byte
}

// TextExtractor pulls text out of an image.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (OCRResult, error)
}

// GenerationHandle identifies one in-flight generation on the automation side.
type GenerationHandle string

// GenerationStatus is a poll response from the generation automation.
type GenerationStatus struct {
	Done      bool
	RasterRef string
	Error     string
}

// Generator drives the external generation automation.
type Generator interface {
	StartGeneration(ctx context.Context, prompt, referenceRef string) (GenerationHandle, error)
	PollStatus(ctx context.Context, handle GenerationHandle) (GenerationStatus, error)
}

// VectorArtifacts are the converted deliverables for one raster.
type VectorArtifacts struct {
	SVGRef string
	EPSRef string
	AIRef  string
}

// VectorConverter turns a raster artifact into print-ready vector files.
type VectorConverter interface {
	Convert(ctx context.Context, rasterRef string) (VectorArtifacts, error)
}

// Notifier delivers customer-facing notifications. Fire-and-forget from the
// core's perspective: delivery failure is the notifier's problem, the core
// only logs it.
type Notifier interface {
	Notify(ctx context.Context, orderID uuid.UUID, kind constants.NotificationKind, payload map[string]any) error
}

// ArtifactStore persists attachment bytes and generated artifacts, returning
// opaque refs the rest of the system passes around.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}
