// Package ingest turns inbound customer messages into orders. It validates
// the payload, claims the message identity against the deduplicator, stores
// attachment bytes, and hands the order to the lifecycle machine.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/analysis"
	"github.com/goopick/madstamp/internal/collab"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/dedup"
	"github.com/goopick/madstamp/internal/entity"
	"github.com/goopick/madstamp/internal/lifecycle"
)

// InboundMessage is one customer message as the mail hook delivers it.
type InboundMessage struct {
	MessageID   string              `json:"message_id"`
	ThreadID    string              `json:"thread_id"`
	FromEmail   string              `json:"from_email"`
	FromName    string              `json:"from_name,omitempty"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body"`
	Attachments []InboundAttachment `json:"attachments"`
}

// InboundAttachment carries raw attachment bytes.
type InboundAttachment struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// Result tells the caller what the message became.
type Result struct {
	OrderID   uuid.UUID `json:"order_id"`
	Duplicate bool      `json:"duplicate"`
	Reply     bool      `json:"reply"`
}

// Service wires dedup, storage and the machine together.
type Service struct {
	dedup   dedup.Deduplicator
	store   collab.ArtifactStore
	machine *lifecycle.Machine
	log     *slog.Logger
}

func NewService(d dedup.Deduplicator, store collab.ArtifactStore, machine *lifecycle.Machine, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{dedup: d, store: store, machine: machine, log: log}
}

// HandleInbound processes one inbound message. Redeliveries are acknowledged
// without side effects; a message on a known thread is routed as a
// clarification reply.
func (s *Service) HandleInbound(ctx context.Context, msg InboundMessage) (Result, error) {
	if err := validateIdentity(msg); err != nil {
		return Result{}, err
	}

	// Decide reply vs new order before claiming the identity, so a rejected
	// new order leaves no dangling claim behind.
	_, knownThread, err := s.dedup.ByThread(ctx, msg.ThreadID)
	if err != nil {
		return Result{}, err
	}
	if !knownThread {
		if err := validateNewOrder(msg); err != nil {
			return Result{}, err
		}
	}

	orderID := uuid.New()
	res, err := s.dedup.ResolveOrCreate(ctx, msg.MessageID, msg.ThreadID, orderID)
	if err != nil {
		return Result{}, err
	}
	if res.Duplicate {
		s.log.Info("ingest.duplicate_dropped", "message_id", msg.MessageID, "order_id", res.OrderID)
		return Result{OrderID: res.OrderID, Duplicate: true}, nil
	}
	if res.Reply {
		s.log.Info("ingest.routed_as_reply", "message_id", msg.MessageID, "order_id", res.OrderID)
		if err := s.machine.ApplyClarificationReply(ctx, res.OrderID, msg.Body); err != nil {
			return Result{}, err
		}
		return Result{OrderID: res.OrderID, Reply: true}, nil
	}

	order := &entity.Order{
		ID:        orderID,
		MessageID: msg.MessageID,
		ThreadID:  msg.ThreadID,
		FromEmail: msg.FromEmail,
		FromName:  msg.FromName,
		Subject:   msg.Subject,
		Body:      msg.Body,
	}

	atts, err := s.storeAttachments(ctx, orderID, msg.Attachments)
	if err != nil {
		return Result{}, err
	}

	if err := s.machine.Submit(ctx, order, atts); err != nil {
		return Result{}, err
	}
	return Result{OrderID: orderID}, nil
}

// HandleReply routes an explicit clarification reply by thread id, for
// channels that resolve threading themselves.
func (s *Service) HandleReply(ctx context.Context, threadID, body string) (uuid.UUID, error) {
	if threadID == "" {
		return uuid.Nil, common.ErrValidation
	}
	orderID, ok, err := s.dedup.ByThread(ctx, threadID)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, common.ErrNotFound
	}
	if err := s.machine.ApplyClarificationReply(ctx, orderID, body); err != nil {
		return uuid.Nil, err
	}
	return orderID, nil
}

func (s *Service) storeAttachments(ctx context.Context, orderID uuid.UUID, in []InboundAttachment) ([]entity.Attachment, error) {
	now := time.Now().UTC()
	atts := make([]entity.Attachment, 0, len(in))
	for i, a := range in {
		ext := constants.NormalizeExt(path.Ext(a.Filename))
		key := fmt.Sprintf("orders/%s/attachments/%02d.%s", orderID, i, ext)
		ref, err := s.store.Put(ctx, key, a.Data, constants.MimeForExt(ext))
		if err != nil {
			return nil, common.WrapError(err, "store attachment")
		}

		att := entity.Attachment{
			ID:         uuid.New(),
			OrderID:    orderID,
			Position:   i,
			Filename:   a.Filename,
			StorageRef: ref,
			ByteSize:   int64(len(a.Data)),
			MimeType:   constants.MimeForExt(ext),
			UploadedAt: now,
		}
		// Dimensions are best-effort; webp and bmp decode later, if at all.
		if w, h, err := analysis.Dimensions(a.Data); err == nil {
			att.Width, att.Height = w, h
		}
		atts = append(atts, att)
	}
	return atts, nil
}

func validateIdentity(msg InboundMessage) error {
	if msg.MessageID == "" || msg.ThreadID == "" {
		return common.NewAppError("INGEST_INVALID", "message_id and thread_id are required", common.ErrValidation)
	}
	if _, err := mail.ParseAddress(msg.FromEmail); err != nil {
		return common.NewAppError("INGEST_INVALID", "from_email is not a valid address", common.ErrValidation)
	}
	return nil
}

func validateNewOrder(msg InboundMessage) error {
	if len(msg.Attachments) == 0 {
		return common.NewAppError("INGEST_INVALID", "at least one artwork attachment is required", common.ErrValidation)
	}
	for _, a := range msg.Attachments {
		ext := constants.NormalizeExt(path.Ext(a.Filename))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			return common.NewAppError("INGEST_INVALID",
				fmt.Sprintf("attachment %q: extension %q not accepted", a.Filename, ext), common.ErrValidation)
		}
		if len(a.Data) == 0 {
			return common.NewAppError("INGEST_INVALID",
				fmt.Sprintf("attachment %q is empty", a.Filename), common.ErrValidation)
		}
		if len(a.Data) > constants.MaxAttachmentBytes {
			return common.NewAppError("INGEST_INVALID",
				fmt.Sprintf("attachment %q exceeds %d bytes", a.Filename, constants.MaxAttachmentBytes), common.ErrValidation)
		}
	}
	if strings.TrimSpace(msg.Body) == "" && strings.TrimSpace(msg.Subject) == "" {
		return common.NewAppError("INGEST_INVALID", "message has no subject or body", common.ErrValidation)
	}
	return nil
}
