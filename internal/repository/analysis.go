package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/entity"
)

// AnalysisRepository stores per-attachment analysis records. Append-only: a
// re-analysis inserts new rows, it never overwrites.
type AnalysisRepository interface {
	Insert(ctx context.Context, results []entity.AnalysisResult) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.AnalysisResult, error)
}

type analysisRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewAnalysisRepository(db *sql.DB, log *slog.Logger) AnalysisRepository {
	if log == nil {
		log = slog.Default()
	}
	return &analysisRepo{db: db, log: log}
}

func (r *analysisRepo) Insert(ctx context.Context, results []entity.AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	for _, res := range results {
		_, err := tx.ExecContext(ctx, rebind(`
			INSERT INTO analysis_results (id, order_id, attachment_id, kind, raw, confidence,
				verdict, reason, detected_text, font_style, quality, suggestions, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			res.ID.String(), res.OrderID.String(), res.AttachmentID.String(), string(res.Kind),
			string(res.Raw), res.Confidence, string(res.Verdict), res.Reason,
			res.DetectedText, res.FontStyle, string(res.Quality),
			strings.Join(res.Suggestions, "\n"), res.CreatedAt)
		if err != nil {
			r.log.Error("analysis insert failed", "order_id", res.OrderID, "kind", res.Kind, "err", err)
			return common.WrapError(err, "insert analysis result")
		}
	}
	return common.WrapError(tx.Commit(), "commit analysis insert")
}

func (r *analysisRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]entity.AnalysisResult, error) {
	rows, err := r.db.QueryContext(ctx, rebind(`
		SELECT id, order_id, attachment_id, kind, raw, confidence, verdict, reason,
			detected_text, font_style, quality, suggestions, created_at
		FROM analysis_results WHERE order_id = ? ORDER BY created_at`), orderID.String())
	if err != nil {
		return nil, common.WrapError(err, "list analysis results")
	}
	defer rows.Close()

	var out []entity.AnalysisResult
	for rows.Next() {
		var res entity.AnalysisResult
		var id, oid, aid, kind, verdict, quality, raw, suggestions string
		if err := rows.Scan(&id, &oid, &aid, &kind, &raw, &res.Confidence, &verdict, &res.Reason,
			&res.DetectedText, &res.FontStyle, &quality, &suggestions, &res.CreatedAt); err != nil {
			return nil, common.WrapError(err, "scan analysis result")
		}
		res.ID, _ = uuid.Parse(id)
		res.OrderID, _ = uuid.Parse(oid)
		res.AttachmentID, _ = uuid.Parse(aid)
		res.Kind = constants.AnalysisKind(kind)
		res.Verdict = constants.Producibility(verdict)
		res.Quality = constants.ImageQuality(quality)
		if raw != "" {
			res.Raw = []byte(raw)
		}
		if suggestions != "" {
			res.Suggestions = strings.Split(suggestions, "\n")
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
