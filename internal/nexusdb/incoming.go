package nexusdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"nexus/internal/amount"
)

// RegisterIncomingAndTalerable implements payment.register_incoming_and_talerable
// (§4.7): idempotent on bank-id, attaching the decoded reserve public key.
func (db *DB) RegisterIncomingAndTalerable(ctx context.Context, p IncomingPayment, reservePub string) (IncomingResult, error) {
	var id uuid.UUID
	row := db.QueryRow(ctx, `
		INSERT INTO incoming_payments
			(amount_val, amount_frac, currency, debtor_payto, subject, execution_time, bank_id, reserve_pub)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (bank_id) DO NOTHING
		RETURNING id`,
		p.Amount.Value, p.Amount.Frac, p.Amount.Currency, p.DebtorPayto, p.Subject, p.ExecutionTime, p.BankID, reservePub)

	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := db.QueryRow(ctx, `SELECT id FROM incoming_payments WHERE bank_id = $1`, p.BankID).Scan(&id); err != nil {
				return IncomingResult{}, fmt.Errorf("register talerable incoming: lookup existing: %w", err)
			}
			return IncomingResult{ID: id, New: false}, nil
		}
		return IncomingResult{}, fmt.Errorf("register talerable incoming: %w", err)
	}
	return IncomingResult{ID: id, New: true}, nil
}

// RegisterIncomingAndBounce implements payment.register_incoming_and_bounce
// (§4.7): the incoming payment is stored without a reserve-pub and a
// refundable bounce record is scheduled for `now`.
func (db *DB) RegisterIncomingAndBounce(ctx context.Context, p IncomingPayment, bounceAmount amount.Amount, now time.Time) (IncomingResult, error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return IncomingResult{}, fmt.Errorf("register bounce: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	row := tx.QueryRow(ctx, `
		INSERT INTO incoming_payments
			(amount_val, amount_frac, currency, debtor_payto, subject, execution_time, bank_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bank_id) DO NOTHING
		RETURNING id`,
		p.Amount.Value, p.Amount.Frac, p.Amount.Currency, p.DebtorPayto, p.Subject, p.ExecutionTime, p.BankID)

	isNew := true
	if err := row.Scan(&id); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return IncomingResult{}, fmt.Errorf("register bounce: insert: %w", err)
		}
		isNew = false
		if err := tx.QueryRow(ctx, `SELECT id FROM incoming_payments WHERE bank_id = $1`, p.BankID).Scan(&id); err != nil {
			return IncomingResult{}, fmt.Errorf("register bounce: lookup existing: %w", err)
		}
	}

	var bounceID *uuid.UUID
	if isNew {
		var bid uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO bounced_incoming_payments (incoming_id, bounce_amount_val, bounce_amount_frac, scheduled_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			id, bounceAmount.Value, bounceAmount.Frac, now).Scan(&bid); err != nil {
			return IncomingResult{}, fmt.Errorf("register bounce: insert bounce record: %w", err)
		}
		bounceID = &bid
	}

	if err := tx.Commit(ctx); err != nil {
		return IncomingResult{}, fmt.Errorf("register bounce: commit: %w", err)
	}
	return IncomingResult{ID: id, BounceID: bounceID, New: isNew}, nil
}
