package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/artifact"
	"github.com/goopick/madstamp/internal/dedup"
	"github.com/goopick/madstamp/internal/export"
	"github.com/goopick/madstamp/internal/ingest"
	"github.com/goopick/madstamp/internal/lifecycle"
	"github.com/goopick/madstamp/internal/notify"
	"github.com/goopick/madstamp/internal/repository"
)

type apiRig struct {
	handler http.Handler
	store   *repository.MemoryStore
	machine *lifecycle.Machine
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	store := repository.NewMemoryStore()
	machine := lifecycle.NewMachine(store, notify.NewRecorder(), 2, nil)
	ing := ingest.NewService(dedup.NewMemory(), artifact.NewMemory(), machine, nil)
	exp := export.NewService(store, store.Generations(), nil)
	srv := New(ing, store, store, store.Generations(), machine, exp, nil)
	return &apiRig{handler: srv.Router(), store: store, machine: machine}
}

func (r *apiRig) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func inboundBody(t *testing.T, messageID string) ingest.InboundMessage {
	return ingest.InboundMessage{
		MessageID: messageID,
		ThreadID:  "thread-1",
		FromEmail: "kim@example.com",
		Subject:   "stamp order",
		Body:      "round seal",
		Attachments: []ingest.InboundAttachment{
			{Filename: "art.png", Data: pngBytes(t)},
		},
	}
}

func TestInboundEndpoint(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.do(t, http.MethodPost, "/v1/inbound", inboundBody(t, "msg-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEqual(t, uuid.Nil, res.OrderID)

	// Redelivery answers 200, not 201.
	rec = rig.do(t, http.MethodPost, "/v1/inbound", inboundBody(t, "msg-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var dup ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dup))
	assert.True(t, dup.Duplicate)
	assert.Equal(t, res.OrderID, dup.OrderID)
}

func TestInboundValidationMapsTo400(t *testing.T) {
	rig := newAPIRig(t)
	msg := inboundBody(t, "msg-1")
	msg.FromEmail = "nope"
	rec := rig.do(t, http.MethodPost, "/v1/inbound", msg)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodPost, "/v1/inbound", inboundBody(t, "msg-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var res ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	rec = rig.do(t, http.MethodGet, "/v1/orders/"+res.OrderID.String()+"/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
		Attachments []json.RawMessage `json:"attachments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "PENDING", payload.Order.Status)
	assert.Len(t, payload.Attachments, 1)
}

func TestGetOrderNotFound(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodGet, "/v1/orders/"+uuid.NewString()+"/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderBadID(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodGet, "/v1/orders/not-a-uuid/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemindConflictWhenNotWaiting(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodPost, "/v1/inbound", inboundBody(t, "msg-1"))
	var res ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	// PENDING orders are not waiting on the customer.
	rec = rig.do(t, http.MethodPost, "/v1/orders/"+res.OrderID.String()+"/remind", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodPost, "/v1/inbound", inboundBody(t, "msg-1"))
	var res ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	rec = rig.do(t, http.MethodPost, "/v1/orders/"+res.OrderID.String()+"/cancel",
		map[string]string{"reason": "customer changed mind"})
	require.Equal(t, http.StatusOK, rec.Code)

	o, err := rig.store.GetByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusCancelled, o.Status)

	// Cancelling again conflicts.
	rec = rig.do(t, http.MethodPost, "/v1/orders/"+res.OrderID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	rig := newAPIRig(t)
	rig.do(t, http.MethodPost, "/v1/inbound", inboundBody(t, "msg-1"))

	rec := rig.do(t, http.MethodGet, "/v1/orders/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = rig.do(t, http.MethodGet, "/v1/orders/export?from=bad-date", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	rig := newAPIRig(t)
	rec := rig.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
