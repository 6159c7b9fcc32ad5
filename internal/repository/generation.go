package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/entity"
)

// GenerationRepository stores generation attempt records. Attempts append;
// AttachVectors is the only in-place update and only fills artifact refs on
// the successful attempt.
type GenerationRepository interface {
	Insert(ctx context.Context, res *entity.GenerationResult) error
	AttachVectors(ctx context.Context, attemptID uuid.UUID, svgRef, epsRef, aiRef string) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.GenerationResult, error)
	NextAttempt(ctx context.Context, orderID uuid.UUID) (int, error)
}

type generationRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewGenerationRepository(db *sql.DB, log *slog.Logger) GenerationRepository {
	if log == nil {
		log = slog.Default()
	}
	return &generationRepo{db: db, log: log}
}

func (r *generationRepo) Insert(ctx context.Context, res *entity.GenerationResult) error {
	_, err := r.db.ExecContext(ctx, rebind(`
		INSERT INTO generation_results (id, order_id, attempt, prompt, raster_ref, svg_ref,
			eps_ref, ai_ref, status, elapsed_ms, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		res.ID.String(), res.OrderID.String(), res.Attempt, res.Prompt, res.RasterRef,
		res.SVGRef, res.EPSRef, res.AIRef, string(res.Status),
		res.Elapsed.Milliseconds(), res.ErrorMessage, res.CreatedAt)
	if err != nil {
		r.log.Error("generation insert failed", "order_id", res.OrderID, "attempt", res.Attempt, "err", err)
		return common.WrapError(err, "insert generation result")
	}
	r.log.Info("generation attempt recorded",
		"order_id", res.OrderID, "attempt", res.Attempt, "status", res.Status)
	return nil
}

func (r *generationRepo) AttachVectors(ctx context.Context, attemptID uuid.UUID, svgRef, epsRef, aiRef string) error {
	_, err := r.db.ExecContext(ctx, rebind(`
		UPDATE generation_results SET svg_ref = ?, eps_ref = ?, ai_ref = ?, status = ?
		WHERE id = ?`),
		svgRef, epsRef, aiRef, string(constants.GenCompleted), attemptID.String())
	return common.WrapError(err, "attach vectors")
}

func (r *generationRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.GenerationResult, error) {
	rows, err := r.db.QueryContext(ctx, rebind(`
		SELECT id, order_id, attempt, prompt, raster_ref, svg_ref, eps_ref, ai_ref,
			status, elapsed_ms, error_message, created_at
		FROM generation_results WHERE order_id = ? ORDER BY attempt`), orderID.String())
	if err != nil {
		return nil, common.WrapError(err, "list generation results")
	}
	defer rows.Close()

	var out []entity.GenerationResult
	for rows.Next() {
		var res entity.GenerationResult
		var id, oid, status string
		var elapsedMS int64
		if err := rows.Scan(&id, &oid, &res.Attempt, &res.Prompt, &res.RasterRef, &res.SVGRef,
			&res.EPSRef, &res.AIRef, &status, &elapsedMS, &res.ErrorMessage, &res.CreatedAt); err != nil {
			return nil, common.WrapError(err, "scan generation result")
		}
		res.ID, _ = uuid.Parse(id)
		res.OrderID, _ = uuid.Parse(oid)
		res.Status = constants.GenerationStatus(status)
		res.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *generationRepo) NextAttempt(ctx context.Context, orderID uuid.UUID) (int, error) {
	var n sql.NullInt64
	err := r.db.QueryRowContext(ctx, rebind(`
		SELECT MAX(attempt) FROM generation_results WHERE order_id = ?`), orderID.String()).Scan(&n)
	if err != nil {
		return 0, common.WrapError(err, "next attempt")
	}
	return int(n.Int64) + 1, nil
}
