package constants

// OrderStatus is the canonical status for rows in orders.
type OrderStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending            OrderStatus = "PENDING"             // accepted, not yet analyzed
	StatusAnalyzing          OrderStatus = "ANALYZING"           // analysis in progress
	StatusProducible         OrderStatus = "PRODUCIBLE"          // artwork can be made into a stamp
	StatusNeedsClarification OrderStatus = "NEEDS_CLARIFICATION" // waiting on the customer
	StatusNotProducible      OrderStatus = "NOT_PRODUCIBLE"      // terminal: artwork rejected
	StatusGenerating         OrderStatus = "GENERATING"          // external generation running
	StatusConverting         OrderStatus = "CONVERTING"          // vector conversion running
	StatusCompleted          OrderStatus = "COMPLETED"           // terminal success
	StatusFailed             OrderStatus = "FAILED"              // terminal failure
	StatusCancelled          OrderStatus = "CANCELLED"           // terminal cancel
)

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusNotProducible, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Producibility is the verdict derived from the suitability score.
type Producibility string

const (
	VerdictProducible         Producibility = "producible"
	VerdictNeedsClarification Producibility = "needs_clarification"
	VerdictNotProducible      Producibility = "not_producible"
)

// StatusForVerdict maps an analysis verdict to the order status it implies.
func StatusForVerdict(v Producibility) OrderStatus {
	switch v {
	case VerdictProducible:
		return StatusProducible
	case VerdictNeedsClarification:
		return StatusNeedsClarification
	default:
		return StatusNotProducible
	}
}

// AnalysisKind identifies which collaborator produced an analysis record.
type AnalysisKind string

const (
	AnalysisVision    AnalysisKind = "vision"
	AnalysisOCR       AnalysisKind = "ocr"
	AnalysisFontStyle AnalysisKind = "font_style"
)

// GenerationStatus is the status of one generation attempt record.
type GenerationStatus string

const (
	GenStarted     GenerationStatus = "STARTED"
	GenRasterReady GenerationStatus = "RASTER_READY"
	GenCompleted   GenerationStatus = "COMPLETED"
	GenFailed      GenerationStatus = "FAILED"
)

// ImageQuality buckets an attachment by usable resolution.
type ImageQuality string

const (
	QualityExcellent ImageQuality = "excellent" // 4K or better
	QualityGood      ImageQuality = "good"      // 1080p or better
	QualityFair      ImageQuality = "fair"      // 720p or better
	QualityPoor      ImageQuality = "poor"
)

// QualityForResolution buckets by the shorter image side, matching the
// thresholds the production team quotes to customers.
func QualityForResolution(width, height int) ImageQuality {
	short := width
	if height < short {
		short = height
	}
	switch {
	case short >= 2160:
		return QualityExcellent
	case short >= 1080:
		return QualityGood
	case short >= 720:
		return QualityFair
	default:
		return QualityPoor
	}
}
