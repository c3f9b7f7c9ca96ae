package nexusdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RegisterOutgoing implements payment.register_outgoing (§4.7): idempotent
// on message-id, atomically reconciling with an initiated payment of the
// same request-uid when one exists.
func (db *DB) RegisterOutgoing(ctx context.Context, p OutgoingPayment) (RegisterResult, error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("register outgoing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	row := tx.QueryRow(ctx, `
		INSERT INTO outgoing_payments (amount_val, amount_frac, currency, execution_time, message_id, creditor_payto)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id`,
		p.Amount.Value, p.Amount.Frac, p.Amount.Currency, p.ExecutionTime, p.MessageID, p.CreditorPayto)

	isNew := true
	if err := row.Scan(&id); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return RegisterResult{}, fmt.Errorf("register outgoing: insert: %w", err)
		}
		isNew = false
		if err := tx.QueryRow(ctx, `SELECT id FROM outgoing_payments WHERE message_id = $1`, p.MessageID).Scan(&id); err != nil {
			return RegisterResult{}, fmt.Errorf("register outgoing: lookup existing: %w", err)
		}
	}

	initiated := false
	if isNew {
		tag, err := tx.Exec(ctx, `
			UPDATE initiated_payments
			SET submission_state = $2, order_id = COALESCE(order_id, $3)
			WHERE request_uid = $1 AND submission_state != $2`,
			p.MessageID, StateSuccess, p.MessageID)
		if err != nil {
			return RegisterResult{}, fmt.Errorf("register outgoing: reconcile initiated: %w", err)
		}
		initiated = tag.RowsAffected() > 0
	}

	if err := tx.Commit(ctx); err != nil {
		return RegisterResult{}, fmt.Errorf("register outgoing: commit: %w", err)
	}
	return RegisterResult{ID: id, Initiated: initiated, New: isNew}, nil
}
