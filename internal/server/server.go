// Package server exposes the HTTP API: the inbound mail hook, order lookup,
// the operator actions, and the XLSX export.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/export"
	"github.com/goopick/madstamp/internal/ingest"
	"github.com/goopick/madstamp/internal/lifecycle"
	"github.com/goopick/madstamp/internal/repository"
)

// Server bundles the API dependencies.
type Server struct {
	ingest   *ingest.Service
	orders   repository.OrderRepository
	analyses repository.AnalysisRepository
	attempts repository.GenerationRepository
	machine  *lifecycle.Machine
	export   *export.Service
	log      *slog.Logger
}

func New(ing *ingest.Service, orders repository.OrderRepository, analyses repository.AnalysisRepository,
	attempts repository.GenerationRepository, machine *lifecycle.Machine, exp *export.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		ingest: ing, orders: orders, analyses: analyses, attempts: attempts,
		machine: machine, export: exp, log: log,
	}
}

// Router builds the chi mux.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/inbound", s.handleInbound)
		r.Post("/replies", s.handleReply)
		r.Route("/orders", func(r chi.Router) {
			r.Get("/export", s.handleExport)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", s.handleGetOrder)
				r.Post("/remind", s.handleRemind)
				r.Post("/cancel", s.handleCancel)
			})
		})
	})
	return r
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	var msg ingest.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.writeError(w, common.WrapError(common.ErrValidation, "malformed request body"))
		return
	}
	res, err := s.ingest.HandleInbound(r.Context(), msg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate || res.Reply {
		status = http.StatusOK
	}
	s.writeJSON(w, status, res)
}

type replyRequest struct {
	ThreadID string `json:"thread_id"`
	Body     string `json:"body"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, common.WrapError(common.ErrValidation, "malformed request body"))
		return
	}
	orderID, err := s.ingest.HandleReply(r.Context(), req.ThreadID, req.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, common.WrapError(common.ErrValidation, "order id must be a uuid"))
		return
	}
	ctx := r.Context()

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	atts, err := s.orders.ListAttachments(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	analyses, err := s.analyses.ListByOrder(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	attempts, err := s.attempts.ListByOrder(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"order":       order,
		"attachments": atts,
		"analyses":    analyses,
		"attempts":    attempts,
	})
}

func (s *Server) handleRemind(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, common.WrapError(common.ErrValidation, "order id must be a uuid"))
		return
	}
	if err := s.machine.RemindOrCancel(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, common.WrapError(common.ErrValidation, "order id must be a uuid"))
		return
	}
	var req cancelRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}
	if err := s.machine.Cancel(r.Context(), id, req.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.writeError(w, common.WrapError(common.ErrValidation, "from must be YYYY-MM-DD"))
			return
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.writeError(w, common.WrapError(common.ErrValidation, "to must be YYYY-MM-DD"))
			return
		}
		to = &t
	}

	data, err := s.export.ExportOrdersXLSX(r.Context(), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="orders-%s.xlsx"`, time.Now().UTC().Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("server.encode_failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrInvalidTransition):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error("server.request_failed", "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
