package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/constants"
	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/entity"
)

// OrderRepository persists the order aggregate. UpdateStatus is the only
// mutation of status and is compare-and-set, so concurrent writers cannot
// corrupt the state machine.
type OrderRepository interface {
	Create(ctx context.Context, o *entity.Order, atts []entity.Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	ListAttachments(ctx context.Context, orderID uuid.UUID) ([]entity.Attachment, error)
	// UpdateStatus moves id from `from` to `to` atomically. Returns false when
	// the row's current status is not `from`.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to constants.OrderStatus, completedAt *time.Time) (bool, error)
	SetDecision(ctx context.Context, id uuid.UUID, score float64, verdict constants.Producibility) error
	SetAdminNote(ctx context.Context, id uuid.UUID, note string) error
	AppendBody(ctx context.Context, id uuid.UUID, text string) error
	IncrementReminders(ctx context.Context, id uuid.UUID) (int, error)
	ResetReminders(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, from, to *time.Time) ([]entity.Order, error)
}

type orderRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewOrderRepository(db *sql.DB, log *slog.Logger) OrderRepository {
	if log == nil {
		log = slog.Default()
	}
	return &orderRepo{db: db, log: log}
}

const orderColumns = `id, message_id, thread_id, from_email, from_name, subject, body,
	status, admin_note, reminders, score, verdict, created_at, updated_at, completed_at`

func (r *orderRepo) Create(ctx context.Context, o *entity.Order, atts []entity.Attachment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return common.WrapError(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, rebind(`
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		o.ID.String(), o.MessageID, o.ThreadID, o.FromEmail, o.FromName, o.Subject, o.Body,
		string(o.Status), o.AdminNote, o.Reminders, o.Score, string(o.Verdict),
		o.CreatedAt, o.UpdatedAt, o.CompletedAt)
	if err != nil {
		r.log.Error("order create failed", "order_id", o.ID, "err", err)
		return common.WrapError(err, "insert order")
	}

	for _, a := range atts {
		_, err = tx.ExecContext(ctx, rebind(`
			INSERT INTO attachments (id, order_id, position, filename, storage_ref, byte_size, mime_type, width, height, uploaded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			a.ID.String(), a.OrderID.String(), a.Position, a.Filename, a.StorageRef,
			a.ByteSize, a.MimeType, a.Width, a.Height, a.UploadedAt)
		if err != nil {
			return common.WrapError(err, "insert attachment")
		}
	}

	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "commit order create")
	}
	r.log.Info("order created", "order_id", o.ID, "message_id", o.MessageID, "attachments", len(atts))
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	row := r.db.QueryRowContext(ctx, rebind(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id.String())
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return o, err
}

func (r *orderRepo) ListAttachments(ctx context.Context, orderID uuid.UUID) ([]entity.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, rebind(`
		SELECT id, order_id, position, filename, storage_ref, byte_size, mime_type, width, height, uploaded_at
		FROM attachments WHERE order_id = ? ORDER BY position`), orderID.String())
	if err != nil {
		return nil, common.WrapError(err, "list attachments")
	}
	defer rows.Close()

	var out []entity.Attachment
	for rows.Next() {
		var a entity.Attachment
		var id, oid string
		if err := rows.Scan(&id, &oid, &a.Position, &a.Filename, &a.StorageRef,
			&a.ByteSize, &a.MimeType, &a.Width, &a.Height, &a.UploadedAt); err != nil {
			return nil, common.WrapError(err, "scan attachment")
		}
		a.ID, _ = uuid.Parse(id)
		a.OrderID, _ = uuid.Parse(oid)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to constants.OrderStatus, completedAt *time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, rebind(`
		UPDATE orders SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(to), completedAt, time.Now().UTC(), id.String(), string(from))
	if err != nil {
		r.log.Error("order status update failed", "order_id", id, "from", from, "to", to, "err", err)
		return false, common.WrapError(err, "update status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, common.WrapError(err, "rows affected")
	}
	return n == 1, nil
}

func (r *orderRepo) SetDecision(ctx context.Context, id uuid.UUID, score float64, verdict constants.Producibility) error {
	_, err := r.db.ExecContext(ctx, rebind(`UPDATE orders SET score = ?, verdict = ?, updated_at = ? WHERE id = ?`),
		score, string(verdict), time.Now().UTC(), id.String())
	return common.WrapError(err, "set decision")
}

func (r *orderRepo) SetAdminNote(ctx context.Context, id uuid.UUID, note string) error {
	_, err := r.db.ExecContext(ctx, rebind(`UPDATE orders SET admin_note = ?, updated_at = ? WHERE id = ?`),
		note, time.Now().UTC(), id.String())
	return common.WrapError(err, "set admin note")
}

func (r *orderRepo) AppendBody(ctx context.Context, id uuid.UUID, text string) error {
	_, err := r.db.ExecContext(ctx, rebind(`UPDATE orders SET body = body || ?, updated_at = ? WHERE id = ?`),
		"\n\n"+text, time.Now().UTC(), id.String())
	return common.WrapError(err, "append body")
}

func (r *orderRepo) IncrementReminders(ctx context.Context, id uuid.UUID) (int, error) {
	if _, err := r.db.ExecContext(ctx, rebind(`UPDATE orders SET reminders = reminders + 1, updated_at = ? WHERE id = ?`),
		time.Now().UTC(), id.String()); err != nil {
		return 0, common.WrapError(err, "increment reminders")
	}
	var n int
	err := r.db.QueryRowContext(ctx, rebind(`SELECT reminders FROM orders WHERE id = ?`), id.String()).Scan(&n)
	return n, common.WrapError(err, "read reminders")
}

func (r *orderRepo) ResetReminders(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, rebind(`UPDATE orders SET reminders = 0, updated_at = ? WHERE id = ?`),
		time.Now().UTC(), id.String())
	return common.WrapError(err, "reset reminders")
}

func (r *orderRepo) List(ctx context.Context, from, to *time.Time) ([]entity.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	var conds []string
	var args []any
	if from != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *from)
	}
	if to != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *to)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, rebind(q), args...)
	if err != nil {
		return nil, common.WrapError(err, "list orders")
	}
	defer rows.Close()

	var out []entity.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*entity.Order, error) {
	var o entity.Order
	var id, status, verdict string
	var completed sql.NullTime
	err := row.Scan(&id, &o.MessageID, &o.ThreadID, &o.FromEmail, &o.FromName, &o.Subject, &o.Body,
		&status, &o.AdminNote, &o.Reminders, &o.Score, &verdict,
		&o.CreatedAt, &o.UpdatedAt, &completed)
	if err != nil {
		return nil, err
	}
	o.ID, _ = uuid.Parse(id)
	o.Status = constants.OrderStatus(status)
	o.Verdict = constants.Producibility(verdict)
	if completed.Valid {
		t := completed.Time
		o.CompletedAt = &t
	}
	return &o, nil
}

// rebind rewrites ? placeholders to $n for the pgx driver; sqlite accepts ?
// natively and pgx's stdlib driver accepts $n only.
var rebindToDollar = false

// SetPostgresPlaceholders switches SQL placeholder style for the process.
// Called once at startup when the DSN selects postgres.
func SetPostgresPlaceholders(on bool) { rebindToDollar = on }

// Rebind rewrites ? placeholders for the active driver. Exposed for packages
// that query message_identities directly.
func Rebind(q string) string { return rebind(q) }

func rebind(q string) string {
	if !rebindToDollar {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return itoa(n/10) + string(rune('0'+n%10))
}
