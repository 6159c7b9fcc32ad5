package ingest

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/artifact"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/dedup"
	"github.com/goopick/madstamp/internal/lifecycle"
	"github.com/goopick/madstamp/internal/notify"
	"github.com/goopick/madstamp/internal/repository"
)

type rig struct {
	svc      *Service
	store    *repository.MemoryStore
	arts     *artifact.Memory
	recorder *notify.Recorder
}

func newRig(t *testing.T) *rig {
	t.Helper()
	store := repository.NewMemoryStore()
	arts := artifact.NewMemory()
	recorder := notify.NewRecorder()
	machine := lifecycle.NewMachine(store, recorder, 2, nil)
	return &rig{
		svc:      NewService(dedup.NewMemory(), arts, machine, nil),
		store:    store,
		arts:     arts,
		recorder: recorder,
	}
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func validMessage(t *testing.T) InboundMessage {
	return InboundMessage{
		MessageID: "msg-1",
		ThreadID:  "thread-1",
		FromEmail: "kim@example.com",
		Subject:   "stamp order",
		Body:      "please make a round seal",
		Attachments: []InboundAttachment{
			{Filename: "art.png", Data: tinyPNG(t)},
		},
	}
}

func TestHandleInboundCreatesOrder(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	res, err := r.svc.HandleInbound(ctx, validMessage(t))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.False(t, res.Reply)

	o, err := r.store.GetByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusPending, o.Status)
	assert.Equal(t, "kim@example.com", o.FromEmail)

	atts, err := r.store.ListAttachments(ctx, res.OrderID)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, 8, atts[0].Width)
	assert.Equal(t, "image/png", atts[0].MimeType)
	assert.Equal(t, 1, r.arts.Len(), "attachment bytes stored")
	assert.Equal(t, 1, r.recorder.Count(constants.NotifyConfirmation))
}

func TestHandleInboundDuplicateIsNoOp(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	first, err := r.svc.HandleInbound(ctx, validMessage(t))
	require.NoError(t, err)

	second, err := r.svc.HandleInbound(ctx, validMessage(t))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, r.arts.Len(), "duplicate must not store attachments again")
	assert.Equal(t, 1, r.recorder.Count(constants.NotifyConfirmation), "no second confirmation")
}

func TestHandleInboundThreadReplyRoutesToClarification(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	first, err := r.svc.HandleInbound(ctx, validMessage(t))
	require.NoError(t, err)

	// Walk the order into NEEDS_CLARIFICATION.
	machine := lifecycle.NewMachine(r.store, r.recorder, 2, nil)
	require.NoError(t, machine.BeginAnalysis(ctx, first.OrderID))
	require.NoError(t, machine.ApplyAnalysis(ctx, first.OrderID, lifecycle.Decision{
		Score: 60, Verdict: constants.VerdictNeedsClarification,
	}))

	reply := validMessage(t)
	reply.MessageID = "msg-2"
	reply.Body = "it should say Kim Chulsoo"
	res, err := r.svc.HandleInbound(ctx, reply)
	require.NoError(t, err)
	assert.True(t, res.Reply)
	assert.Equal(t, first.OrderID, res.OrderID)

	o, _ := r.store.GetByID(ctx, first.OrderID)
	assert.Equal(t, constants.StatusAnalyzing, o.Status)
	assert.Contains(t, o.Body, "Kim Chulsoo")
}

func TestHandleInboundValidation(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*InboundMessage)
	}{
		{"missing message id", func(m *InboundMessage) { m.MessageID = "" }},
		{"missing thread id", func(m *InboundMessage) { m.ThreadID = "" }},
		{"bad email", func(m *InboundMessage) { m.FromEmail = "not-an-email" }},
		{"no attachments", func(m *InboundMessage) { m.Attachments = nil }},
		{"bad extension", func(m *InboundMessage) { m.Attachments[0].Filename = "virus.exe" }},
		{"empty attachment", func(m *InboundMessage) { m.Attachments[0].Data = nil }},
		{"oversize attachment", func(m *InboundMessage) {
			m.Attachments[0].Data = make([]byte, constants.MaxAttachmentBytes+1)
		}},
		{"no text at all", func(m *InboundMessage) { m.Subject, m.Body = "", "  " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := validMessage(t)
			tc.mutate(&msg)
			_, err := r.svc.HandleInbound(ctx, msg)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestHandleReply(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	first, err := r.svc.HandleInbound(ctx, validMessage(t))
	require.NoError(t, err)

	machine := lifecycle.NewMachine(r.store, r.recorder, 2, nil)
	require.NoError(t, machine.BeginAnalysis(ctx, first.OrderID))
	require.NoError(t, machine.ApplyAnalysis(ctx, first.OrderID, lifecycle.Decision{
		Score: 55, Verdict: constants.VerdictNeedsClarification,
	}))

	id, err := r.svc.HandleReply(ctx, "thread-1", "make it square")
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, id)

	_, err = r.svc.HandleReply(ctx, "unknown-thread", "hello")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestHandleReplyWrongStateSurfacesTransitionError(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	first, err := r.svc.HandleInbound(ctx, validMessage(t))
	require.NoError(t, err)

	// Order is PENDING, not waiting on the customer.
	_, err = r.svc.HandleReply(ctx, "thread-1", "any news?")
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
	_ = first
}
