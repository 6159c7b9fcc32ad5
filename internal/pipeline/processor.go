// Package pipeline coordinates one order through its current phase. A worker
// hands it an order id; the processor looks at the status and runs whichever
// stage is due next. Stage handoffs travel through the lifecycle machine's
// event sink, so each queue job does exactly one phase.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/analysis"
	"github.com/goopick/madstamp/internal/entity"
	"github.com/goopick/madstamp/internal/generation"
	"github.com/goopick/madstamp/internal/lifecycle"
	"github.com/goopick/madstamp/internal/repository"
)

// Analyzer runs the analysis phase. Satisfied by analysis.Coordinator.
type Analyzer interface {
	Analyze(ctx context.Context, order *entity.Order, atts []entity.Attachment) (analysis.Outcome, error)
}

// Producer runs the generation and conversion phases. Satisfied by
// generation.Coordinator.
type Producer interface {
	Produce(ctx context.Context, order *entity.Order, referenceRef string, in generation.PromptInput) error
}

// Processor dispatches one order to its due phase.
type Processor struct {
	orders   repository.OrderRepository
	analyses repository.AnalysisRepository
	machine  *lifecycle.Machine
	analyzer Analyzer
	producer Producer
	log      *slog.Logger
}

func NewProcessor(orders repository.OrderRepository, analyses repository.AnalysisRepository,
	machine *lifecycle.Machine, analyzer Analyzer, producer Producer, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		orders: orders, analyses: analyses, machine: machine,
		analyzer: analyzer, producer: producer, log: log,
	}
}

// ProcessOrder runs the phase the order's status calls for. Unknown or
// terminal statuses are skipped, not errors: a stale queue entry must not
// fail a worker.
func (p *Processor) ProcessOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := p.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case constants.StatusPending:
		if err := p.machine.BeginAnalysis(ctx, orderID); err != nil {
			return err
		}
		return p.runAnalysis(ctx, order)
	case constants.StatusAnalyzing:
		// Re-entry after a clarification reply.
		return p.runAnalysis(ctx, order)
	case constants.StatusProducible:
		return p.runProduction(ctx, order)
	default:
		p.log.Debug("processor.skip", "order_id", orderID, "status", order.Status)
		return nil
	}
}

func (p *Processor) runAnalysis(ctx context.Context, order *entity.Order) error {
	atts, err := p.orders.ListAttachments(ctx, order.ID)
	if err != nil {
		return err
	}

	outcome, err := p.analyzer.Analyze(ctx, order, atts)
	if err != nil {
		p.log.Error("processor.analysis.failed", "order_id", order.ID, "err", err)
		return p.machine.Fail(ctx, order.ID, "analysis unavailable")
	}

	if err := p.analyses.Insert(ctx, outcome.Results); err != nil {
		return err
	}

	return p.machine.ApplyAnalysis(ctx, order.ID, lifecycle.Decision{
		Score:           outcome.Score,
		Verdict:         outcome.Verdict,
		Recommendations: outcome.Recommendations,
		DetectedText:    outcome.DetectedText,
		FontStyle:       outcome.FontStyle,
	})
}

func (p *Processor) runProduction(ctx context.Context, order *entity.Order) error {
	atts, err := p.orders.ListAttachments(ctx, order.ID)
	if err != nil {
		return err
	}

	in := generation.PromptInput{CustomerNote: order.Body}
	if results, err := p.analyses.ListByOrder(ctx, order.ID); err == nil {
		// Latest record wins; analysis is append-only.
		for _, r := range results {
			if r.DetectedText != "" {
				in.DetectedText = r.DetectedText
			}
			if r.FontStyle != "" {
				in.FontStyle = r.FontStyle
			}
		}
	}

	return p.producer.Produce(ctx, order, bestReference(atts), in)
}

// ShouldEnqueue reports whether a committed transition needs a worker to pick
// the order up. PENDING and PRODUCIBLE always do; ANALYZING only when a
// clarification reply re-entered it, because the PENDING worker runs its own
// analysis inline.
func ShouldEnqueue(evt lifecycle.Event) bool {
	switch evt.To {
	case constants.StatusPending, constants.StatusProducible:
		return true
	case constants.StatusAnalyzing:
		return evt.From == constants.StatusNeedsClarification
	}
	return false
}

// bestReference picks the highest-resolution attachment as the generation
// reference.
func bestReference(atts []entity.Attachment) string {
	ref := ""
	bestArea := -1
	for _, a := range atts {
		area := a.Width * a.Height
		if area > bestArea {
			bestArea = area
			ref = a.StorageRef
		}
	}
	return ref
}
