// Package lifecycle owns the order state machine. Every status change goes
// through a Machine method, under a per-order lock, with a compare-and-set
// write; illegal transitions surface as ErrInvalidTransition instead of
// silently corrupting state.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/entity"
	"github.com/goopick/madstamp/internal/repository"
)

// Decision is the reduced analysis outcome the machine applies. Kept separate
// from the analysis package so the dependency points one way only.
type Decision struct {
	Score           float64
	Verdict         constants.Producibility
	Recommendations []string
	DetectedText    string
	FontStyle       string
}

// Event announces a committed status change. Emitted after the per-order lock
// is released, so a sink may block (queue backpressure) without deadlocking
// the machine.
type Event struct {
	OrderID uuid.UUID
	From    constants.OrderStatus
	To      constants.OrderStatus
}

// EventSink receives committed transitions. May block.
type EventSink func(Event)

// allowed is the transition table. Terminal states have no row.
var allowed = map[constants.OrderStatus][]constants.OrderStatus{
	constants.StatusPending:            {constants.StatusAnalyzing},
	constants.StatusAnalyzing:          {constants.StatusProducible, constants.StatusNeedsClarification, constants.StatusNotProducible},
	constants.StatusProducible:         {constants.StatusGenerating},
	constants.StatusNeedsClarification: {constants.StatusAnalyzing},
	constants.StatusGenerating:         {constants.StatusConverting},
	constants.StatusConverting:         {constants.StatusCompleted},
}

func legal(from, to constants.OrderStatus) bool {
	// FAILED and CANCELLED are reachable from any non-terminal state.
	if to == constants.StatusFailed || to == constants.StatusCancelled {
		return !from.Terminal()
	}
	for _, t := range allowed[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Machine coordinates all order transitions.
type Machine struct {
	orders       repository.OrderRepository
	notifier     collab.Notifier
	sink         EventSink
	locks        keyedMutex
	maxReminders int
	log          *slog.Logger
}

func NewMachine(orders repository.OrderRepository, notifier collab.Notifier, maxReminders int, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	if maxReminders <= 0 {
		maxReminders = 2
	}
	return &Machine{
		orders:       orders,
		notifier:     notifier,
		maxReminders: maxReminders,
		log:          log,
	}
}

// SetSink registers the transition sink. Call before the machine is shared.
func (m *Machine) SetSink(s EventSink) { m.sink = s }

// Submit persists a freshly ingested order and confirms receipt to the
// customer. The returned order is in PENDING.
func (m *Machine) Submit(ctx context.Context, order *entity.Order, atts []entity.Attachment) error {
	order.Status = constants.StatusPending
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	unlock := m.locks.lock(order.ID)
	err := m.orders.Create(ctx, order, atts)
	unlock()
	if err != nil {
		return err
	}

	m.log.Info("lifecycle.order.submitted", "order_id", order.ID, "attachments", len(atts))
	m.notify(ctx, order.ID, constants.NotifyConfirmation, map[string]any{
		"subject":     order.Subject,
		"attachments": len(atts),
	})
	m.emit(Event{OrderID: order.ID, To: constants.StatusPending})
	return nil
}

// BeginAnalysis moves PENDING to ANALYZING.
func (m *Machine) BeginAnalysis(ctx context.Context, id uuid.UUID) error {
	_, err := m.transition(ctx, id, constants.StatusPending, constants.StatusAnalyzing, false)
	return err
}

// ApplyAnalysis commits the analysis decision: score and verdict are stored
// and ANALYZING moves to the status the verdict implies. NOT_PRODUCIBLE is
// terminal and stamps completedAt.
func (m *Machine) ApplyAnalysis(ctx context.Context, id uuid.UUID, d Decision) error {
	to := constants.StatusForVerdict(d.Verdict)

	unlock := m.locks.lock(id)
	err := func() error {
		if err := m.orders.SetDecision(ctx, id, d.Score, d.Verdict); err != nil {
			return err
		}
		return m.cas(ctx, id, constants.StatusAnalyzing, to)
	}()
	unlock()
	if err != nil {
		return err
	}

	m.log.Info("lifecycle.analysis.applied", "order_id", id, "score", d.Score, "verdict", d.Verdict)
	switch to {
	case constants.StatusNeedsClarification:
		m.notify(ctx, id, constants.NotifyClarification, map[string]any{
			"score":           d.Score,
			"recommendations": d.Recommendations,
		})
	default:
		m.notify(ctx, id, constants.NotifyProgress, map[string]any{
			"score":   d.Score,
			"verdict": string(d.Verdict),
		})
	}
	m.emit(Event{OrderID: id, From: constants.StatusAnalyzing, To: to})
	return nil
}

// ApplyGeneration advances the production phase on a generation status report.
func (m *Machine) ApplyGeneration(ctx context.Context, id uuid.UUID, gs constants.GenerationStatus) error {
	switch gs {
	case constants.GenStarted:
		_, err := m.transition(ctx, id, constants.StatusProducible, constants.StatusGenerating, false)
		return err
	case constants.GenRasterReady:
		_, err := m.transition(ctx, id, constants.StatusGenerating, constants.StatusConverting, false)
		return err
	case constants.GenCompleted:
		evt, err := m.transition(ctx, id, constants.StatusConverting, constants.StatusCompleted, true)
		if err != nil {
			return err
		}
		m.notify(ctx, id, constants.NotifyDelivery, map[string]any{"status": string(evt.To)})
		return nil
	case constants.GenFailed:
		return m.Fail(ctx, id, "generation failed")
	default:
		return common.ErrValidation
	}
}

// ApplyClarificationReply re-enters analysis with the customer's answer
// appended to the order body. The reminder counter resets.
func (m *Machine) ApplyClarificationReply(ctx context.Context, id uuid.UUID, text string) error {
	unlock := m.locks.lock(id)
	err := func() error {
		if err := m.cas(ctx, id, constants.StatusNeedsClarification, constants.StatusAnalyzing); err != nil {
			return err
		}
		if text != "" {
			if err := m.orders.AppendBody(ctx, id, text); err != nil {
				return err
			}
		}
		return m.orders.ResetReminders(ctx, id)
	}()
	unlock()
	if err != nil {
		return err
	}

	m.log.Info("lifecycle.clarification.received", "order_id", id)
	m.emit(Event{OrderID: id, From: constants.StatusNeedsClarification, To: constants.StatusAnalyzing})
	return nil
}

// RemindOrCancel nudges a customer stuck in NEEDS_CLARIFICATION. After the
// reminder budget is spent the order is cancelled instead.
func (m *Machine) RemindOrCancel(ctx context.Context, id uuid.UUID) error {
	unlock := m.locks.lock(id)
	order, err := m.orders.GetByID(ctx, id)
	if err != nil {
		unlock()
		return err
	}
	if order.Status != constants.StatusNeedsClarification {
		unlock()
		return common.ErrInvalidTransition
	}
	count, err := m.orders.IncrementReminders(ctx, id)
	unlock()
	if err != nil {
		return err
	}

	if count > m.maxReminders {
		m.log.Info("lifecycle.reminders.exhausted", "order_id", id, "count", count)
		return m.Cancel(ctx, id, "no customer response")
	}
	m.log.Info("lifecycle.reminder.sent", "order_id", id, "count", count)
	m.notify(ctx, id, constants.NotifyClarification, map[string]any{
		"reminder":  count,
		"remaining": m.maxReminders - count,
	})
	return nil
}

// Fail moves any non-terminal order to FAILED, recording the causing reason
// on the aggregate. The CAS guarantees exactly one error notification even if
// two workers report the same fault.
func (m *Machine) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	evt, err := m.toTerminal(ctx, id, constants.StatusFailed, reason)
	if err != nil {
		return err
	}
	m.log.Warn("lifecycle.order.failed", "order_id", id, "from", evt.From, "reason", reason)
	m.notify(ctx, id, constants.NotifyError, map[string]any{"reason": reason})
	return nil
}

// Cancel moves any non-terminal order to CANCELLED, recording the reason.
func (m *Machine) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	evt, err := m.toTerminal(ctx, id, constants.StatusCancelled, reason)
	if err != nil {
		return err
	}
	m.log.Info("lifecycle.order.cancelled", "order_id", id, "from", evt.From, "reason", reason)
	m.notify(ctx, id, constants.NotifyProgress, map[string]any{
		"status": string(constants.StatusCancelled),
		"reason": reason,
	})
	return nil
}

// transition performs one locked CAS move and emits the event.
func (m *Machine) transition(ctx context.Context, id uuid.UUID, from, to constants.OrderStatus, terminal bool) (Event, error) {
	unlock := m.locks.lock(id)
	err := m.casT(ctx, id, from, to, terminal)
	unlock()
	if err != nil {
		return Event{}, err
	}
	evt := Event{OrderID: id, From: from, To: to}
	m.emit(evt)
	return evt, nil
}

// toTerminal reads the current status under lock, CASes it to a terminal
// state and records the reason on the aggregate. Caller must not hold the
// order lock.
func (m *Machine) toTerminal(ctx context.Context, id uuid.UUID, to constants.OrderStatus, reason string) (Event, error) {
	unlock := m.locks.lock(id)
	evt, err := func() (Event, error) {
		order, err := m.orders.GetByID(ctx, id)
		if err != nil {
			return Event{}, err
		}
		if order.Status.Terminal() {
			return Event{}, common.ErrInvalidTransition
		}
		if err := m.casT(ctx, id, order.Status, to, true); err != nil {
			return Event{}, err
		}
		// The transition is committed; a failed note write must not block the
		// exactly-once notification.
		if reason != "" {
			if err := m.orders.SetAdminNote(ctx, id, reason); err != nil {
				m.log.Warn("lifecycle.note.failed", "order_id", id, "err", err)
			}
		}
		return Event{OrderID: id, From: order.Status, To: to}, nil
	}()
	unlock()
	if err != nil {
		return Event{}, err
	}
	m.emit(evt)
	return evt, nil
}

func (m *Machine) cas(ctx context.Context, id uuid.UUID, from, to constants.OrderStatus) error {
	return m.casT(ctx, id, from, to, to.Terminal())
}

func (m *Machine) casT(ctx context.Context, id uuid.UUID, from, to constants.OrderStatus, terminal bool) error {
	if !legal(from, to) {
		return common.ErrInvalidTransition
	}
	var completedAt *time.Time
	if terminal {
		now := time.Now().UTC()
		completedAt = &now
	}
	ok, err := m.orders.UpdateStatus(ctx, id, from, to, completedAt)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrInvalidTransition
	}
	m.log.Debug("lifecycle.transition", "order_id", id, "from", from, "to", to)
	return nil
}

func (m *Machine) notify(ctx context.Context, id uuid.UUID, kind constants.NotificationKind, payload map[string]any) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, id, kind, payload); err != nil {
		m.log.Warn("lifecycle.notify.failed", "order_id", id, "kind", kind, "err", err)
	}
}

func (m *Machine) emit(evt Event) {
	if m.sink != nil {
		m.sink(evt)
	}
}
