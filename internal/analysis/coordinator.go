// Package analysis runs every quality signal for an order's attachments and
// reduces them to a single producibility outcome. Local image statistics are
// computed in-process; vision and OCR go out to collaborators in parallel,
// with retries, and degrade to a neutral signal instead of failing the order.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/entity"
	"github.com/goopick/madstamp/internal/scoring"
)

// Coordinator fans analysis out per attachment and reduces to an Outcome.
type Coordinator struct {
	vision collab.VisionClassifier
	ocr    collab.TextExtractor
	store  collab.ArtifactStore
	engine *scoring.Engine
	cfg    common.AnalysisConfig
	log    *slog.Logger
}

func NewCoordinator(vision collab.VisionClassifier, ocr collab.TextExtractor,
	store collab.ArtifactStore, engine *scoring.Engine, cfg common.AnalysisConfig, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{vision: vision, ocr: ocr, store: store, engine: engine, cfg: cfg, log: log}
}

// Outcome is the reduced analysis decision for an order. Verdict and Score
// come from the best-scoring attachment; a customer sends several photos of
// one artwork, so the best view decides.
type Outcome struct {
	Score           float64
	Verdict         constants.Producibility
	Recommendations []string
	DetectedText    string
	FontStyle       string
	Fonts           []Font
	Results         []entity.AnalysisResult
}

type attachmentFinding struct {
	att            entity.Attachment
	signals        scoring.Signals
	stats          Stats
	statsOK        bool
	vision         collab.VisionResult
	visionOK       bool
	ocr            collab.OCRResult
	ocrOK          bool
	externalFailed bool // both collaborators unreachable after retries
	fetchErr       error
}

// Analyze runs all signals for every attachment of the order. It fails only
// when an attachment cannot be fetched or when every external collaborator
// failed for every attachment; a partial signal set degrades to the neutral
// score instead.
func (c *Coordinator) Analyze(ctx context.Context, order *entity.Order, atts []entity.Attachment) (Outcome, error) {
	if len(atts) == 0 {
		return Outcome{}, common.ErrValidation
	}

	findings := make([]attachmentFinding, len(atts))
	var wg sync.WaitGroup
	for i, att := range atts {
		wg.Add(1)
		go func(i int, att entity.Attachment) {
			defer wg.Done()
			findings[i] = c.analyzeAttachment(ctx, order, att)
		}(i, att)
	}
	wg.Wait()

	allExternalFailed := true
	for i := range findings {
		if findings[i].fetchErr != nil {
			return Outcome{}, findings[i].fetchErr
		}
		if !findings[i].externalFailed {
			allExternalFailed = false
		}
	}
	if allExternalFailed {
		return Outcome{}, common.NewServiceError("analysis", errors.New("all collaborators unavailable"))
	}

	return c.reduce(order, findings), nil
}

func (c *Coordinator) analyzeAttachment(ctx context.Context, order *entity.Order, att entity.Attachment) attachmentFinding {
	f := attachmentFinding{att: att}

	data, err := c.store.Get(ctx, att.StorageRef)
	if err != nil {
		f.fetchErr = common.WrapError(err, "fetch attachment")
		return f
	}

	if stats, err := Measure(data); err == nil {
		f.stats, f.statsOK = stats, true
	} else {
		c.log.Warn("processor.analysis.stats_failed", "order_id", order.ID, "attachment_id", att.ID, "err", err)
	}

	var inner sync.WaitGroup
	inner.Add(2)
	go func() {
		defer inner.Done()
		err := c.withRetry(ctx, "vision.classify", func(ctx context.Context) error {
			res, err := c.vision.Classify(ctx, data, att.MimeType, order.Body)
			if err == nil {
				f.vision, f.visionOK = res, true
			}
			return err
		})
		if err != nil {
			c.log.Warn("processor.analysis.vision_failed", "order_id", order.ID, "attachment_id", att.ID, "err", err)
		}
	}()
	go func() {
		defer inner.Done()
		err := c.withRetry(ctx, "ocr.extract", func(ctx context.Context) error {
			res, err := c.ocr.ExtractText(ctx, data, att.MimeType)
			if err == nil {
				f.ocr, f.ocrOK = res, true
			}
			return err
		})
		if err != nil {
			c.log.Warn("processor.analysis.ocr_failed", "order_id", order.ID, "attachment_id", att.ID, "err", err)
		}
	}()
	inner.Wait()

	f.externalFailed = !f.visionOK && !f.ocrOK
	f.signals = c.toSignals(f)
	return f
}

func (c *Coordinator) toSignals(f attachmentFinding) scoring.Signals {
	n := c.cfg.NeutralScore
	s := scoring.Signals{
		Resolution:           n,
		EdgeClarity:          n,
		ColorSimplicity:      n,
		BackgroundSeparation: n,
		Complexity:           n,
		AIJudgment:           n,
	}
	if f.statsOK {
		s.Resolution = f.stats.Resolution
		s.EdgeClarity = f.stats.EdgeClarity
		s.ColorSimplicity = f.stats.ColorSimplicity
		s.BackgroundSeparation = f.stats.BackgroundSeparation
		s.Complexity = f.stats.Complexity
	}
	if f.visionOK {
		s.AIJudgment = f.vision.JudgmentScore
	}
	return s
}

func (c *Coordinator) reduce(order *entity.Order, findings []attachmentFinding) Outcome {
	best := 0
	bestResult := c.engine.Score(findings[0].signals)
	for i := 1; i < len(findings); i++ {
		if r := c.engine.Score(findings[i].signals); r.Score > bestResult.Score {
			best, bestResult = i, r
		}
	}

	out := Outcome{
		Score:           bestResult.Score,
		Verdict:         bestResult.Level,
		Recommendations: bestResult.Recommendations,
	}

	now := time.Now().UTC()
	for i := range findings {
		f := &findings[i]
		quality := constants.QualityForResolution(f.stats.Width, f.stats.Height)
		if f.visionOK {
			r := c.engine.Score(f.signals)
			out.Results = append(out.Results, entity.AnalysisResult{
				ID:           uuid.New(),
				OrderID:      order.ID,
				AttachmentID: f.att.ID,
				Kind:         constants.AnalysisVision,
				Raw:          f.vision.Raw,
				Confidence:   f.vision.Confidence,
				Verdict:      r.Level,
				Reason:       f.vision.Reason,
				DetectedText: f.vision.DetectedText,
				FontStyle:    f.vision.FontStyle,
				Quality:      quality,
				Suggestions:  r.Recommendations,
				CreatedAt:    now,
			})
		}
		if f.ocrOK {
			out.Results = append(out.Results, entity.AnalysisResult{
				ID:           uuid.New(),
				OrderID:      order.ID,
				AttachmentID: f.att.ID,
				Kind:         constants.AnalysisOCR,
				Raw:          f.ocr.Raw,
				DetectedText: f.ocr.Text,
				FontStyle:    f.ocr.FontStyleGuess,
				Quality:      quality,
				CreatedAt:    now,
			})
		}
	}

	bf := &findings[best]
	if bf.visionOK {
		out.DetectedText = bf.vision.DetectedText
		out.FontStyle = bf.vision.FontStyle
	}
	if out.DetectedText == "" && bf.ocrOK {
		out.DetectedText = bf.ocr.Text
	}
	if out.FontStyle == "" && bf.ocrOK {
		out.FontStyle = bf.ocr.FontStyleGuess
	}

	hasText := (bf.visionOK && bf.vision.HasText) || out.DetectedText != ""
	if hasText {
		out.Fonts = MatchFonts(out.FontStyle)
		out.Results = append(out.Results, entity.AnalysisResult{
			ID:           uuid.New(),
			OrderID:      order.ID,
			AttachmentID: bf.att.ID,
			Kind:         constants.AnalysisFontStyle,
			DetectedText: out.DetectedText,
			FontStyle:    out.FontStyle,
			CreatedAt:    now,
		})
	}

	c.log.Info("processor.analysis.reduced",
		"order_id", order.ID, "score", out.Score, "verdict", out.Verdict,
		"attachments", len(findings), "records", len(out.Results))
	return out
}

// withRetry runs fn up to MaxAttempts times with doubling, jittered backoff.
// Each call gets its own CallTimeout; the parent ctx cancels the whole loop.
func (c *Coordinator) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := c.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := c.cfg.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc = func() {}
		if c.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		}
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		c.log.Debug("processor.analysis.retrying", "op", op, "attempt", attempt, "err", err)
		jitter := time.Duration(rand.Int64N(int64(delay)/2 + 1))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return common.WrapError(err, op)
}
