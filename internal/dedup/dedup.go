// Package dedup resolves inbound message identities to orders. Every inbound
// message carries a provider message id and a thread id; the first message of
// a thread claims a fresh order, later messages in the thread are replies, and
// a redelivered message id is a duplicate.
package dedup

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/goopick/madstamp/internal/common"
	"github.com/goopick/madstamp/internal/repository"
)

// Resolution is the outcome of claiming a message identity.
type Resolution struct {
	OrderID   uuid.UUID
	Duplicate bool // exact message id seen before
	Reply     bool // thread already bound to an order
}

type Deduplicator interface {
	// ResolveOrCreate claims (messageID, threadID) atomically. When the
	// identity is new it is bound to newOrderID and the caller owns creating
	// the order; otherwise the existing order id is returned with Duplicate
	// or Reply set.
	ResolveOrCreate(ctx context.Context, messageID, threadID string, newOrderID uuid.UUID) (Resolution, error)
	// ByThread returns the order bound to a thread, if any.
	ByThread(ctx context.Context, threadID string) (uuid.UUID, bool, error)
}

type sqlDedup struct {
	db *sql.DB
}

func NewSQL(db *sql.DB) Deduplicator { return &sqlDedup{db: db} }

func (d *sqlDedup) ResolveOrCreate(ctx context.Context, messageID, threadID string, newOrderID uuid.UUID) (Resolution, error) {
	if messageID == "" || threadID == "" {
		return Resolution{}, common.ErrValidation
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Resolution{}, common.WrapError(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	var oid string
	err = tx.QueryRowContext(ctx,
		repository.Rebind(`SELECT order_id FROM message_identities WHERE message_id = ?`),
		messageID).Scan(&oid)
	switch {
	case err == nil:
		id, perr := uuid.Parse(oid)
		if perr != nil {
			return Resolution{}, common.WrapError(perr, "parse bound order id")
		}
		return Resolution{OrderID: id, Duplicate: true}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return Resolution{}, common.WrapError(err, "lookup message id")
	}

	err = tx.QueryRowContext(ctx,
		repository.Rebind(`SELECT order_id FROM message_identities WHERE thread_id = ? ORDER BY seen_at LIMIT 1`),
		threadID).Scan(&oid)
	reply := false
	boundID := newOrderID
	switch {
	case err == nil:
		id, perr := uuid.Parse(oid)
		if perr != nil {
			return Resolution{}, common.WrapError(perr, "parse bound order id")
		}
		reply = true
		boundID = id
	case !errors.Is(err, sql.ErrNoRows):
		return Resolution{}, common.WrapError(err, "lookup thread id")
	}

	// DO NOTHING absorbs the race where a concurrent delivery of the same
	// message id commits between our lookup and this insert; the loser then
	// resolves to whatever the winner bound.
	res, err := tx.ExecContext(ctx,
		repository.Rebind(`INSERT INTO message_identities (message_id, thread_id, order_id, seen_at)
			VALUES (?, ?, ?, ?) ON CONFLICT (message_id) DO NOTHING`),
		messageID, threadID, boundID.String(), time.Now().UTC())
	if err != nil {
		return Resolution{}, common.WrapError(err, "bind message identity")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Resolution{}, common.WrapError(err, "bind message identity")
	}
	if n == 0 {
		err = tx.QueryRowContext(ctx,
			repository.Rebind(`SELECT order_id FROM message_identities WHERE message_id = ?`),
			messageID).Scan(&oid)
		if err != nil {
			return Resolution{}, common.WrapError(err, "lookup raced message id")
		}
		id, perr := uuid.Parse(oid)
		if perr != nil {
			return Resolution{}, common.WrapError(perr, "parse bound order id")
		}
		if cerr := tx.Commit(); cerr != nil {
			return Resolution{}, common.WrapError(cerr, "commit identity")
		}
		return Resolution{OrderID: id, Duplicate: true}, nil
	}
	if err := tx.Commit(); err != nil {
		return Resolution{}, common.WrapError(err, "commit identity")
	}
	return Resolution{OrderID: boundID, Reply: reply}, nil
}

func (d *sqlDedup) ByThread(ctx context.Context, threadID string) (uuid.UUID, bool, error) {
	var oid string
	err := d.db.QueryRowContext(ctx,
		repository.Rebind(`SELECT order_id FROM message_identities WHERE thread_id = ? ORDER BY seen_at LIMIT 1`),
		threadID).Scan(&oid)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, common.WrapError(err, "lookup thread id")
	}
	id, perr := uuid.Parse(oid)
	if perr != nil {
		return uuid.Nil, false, common.WrapError(perr, "parse bound order id")
	}
	return id, true, nil
}
