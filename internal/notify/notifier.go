// Package notify delivers customer-facing notifications. The outbound email
// channel is operated by a separate system; this service emits structured
// notification records it consumes from the log stream.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
)

// LogNotifier writes each notification as one structured log record, tagged
// with the operating company so downstream templating can brand the message.
type LogNotifier struct {
	company common.CompanyConfig
	log     *slog.Logger
}

func NewLogNotifier(company common.CompanyConfig, log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{company: company, log: log}
}

var _ collab.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(_ context.Context, orderID uuid.UUID, kind constants.NotificationKind, payload map[string]any) error {
	n.log.Info("notification.emitted",
		"order_id", orderID,
		"kind", kind,
		"company", n.company.Name,
		"contact", n.company.ContactEmail,
		"payload", payload,
	)
	return nil
}

// Recorder captures notifications for tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Recorded
}

// Recorded is one captured notification.
type Recorded struct {
	OrderID uuid.UUID
	Kind    constants.NotificationKind
	Payload map[string]any
}

func NewRecorder() *Recorder { return &Recorder{} }

var _ collab.Notifier = (*Recorder)(nil)

func (r *Recorder) Notify(_ context.Context, orderID uuid.UUID, kind constants.NotificationKind, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Recorded{OrderID: orderID, Kind: kind, Payload: payload})
	return nil
}

// All returns a copy of the captured notifications.
func (r *Recorder) All() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.entries...)
}

// Count returns how many notifications of kind were captured.
func (r *Recorder) Count(kind constants.NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, e := range r.entries {
		if e.Kind == kind {
			c++
		}
	}
	return c
}
