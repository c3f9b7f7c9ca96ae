package nexusdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListIncoming implements the Wire Gateway's GET /history/incoming: a page
// of booked CRDT entries for currency, newest-first, keyset-paginated on
// (execution_time, id) starting strictly after afterID when given.
func (db *DB) ListIncoming(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]IncomingPayment, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if afterID == nil {
		rows, err = db.Query(ctx, `
			SELECT id, amount_val, amount_frac, currency, debtor_payto, subject, execution_time, bank_id, reserve_pub
			FROM incoming_payments
			WHERE currency = $1
			ORDER BY execution_time DESC, id DESC
			LIMIT $2`,
			currency, limit)
	} else {
		rows, err = db.Query(ctx, `
			SELECT id, amount_val, amount_frac, currency, debtor_payto, subject, execution_time, bank_id, reserve_pub
			FROM incoming_payments
			WHERE currency = $1
			  AND (execution_time, id) < (SELECT execution_time, id FROM incoming_payments WHERE id = $2)
			ORDER BY execution_time DESC, id DESC
			LIMIT $3`,
			currency, *afterID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list incoming: %w", err)
	}
	defer rows.Close()

	var out []IncomingPayment
	for rows.Next() {
		var p IncomingPayment
		if err := rows.Scan(&p.ID, &p.Amount.Value, &p.Amount.Frac, &p.Amount.Currency,
			&p.DebtorPayto, &p.Subject, &p.ExecutionTime, &p.BankID, &p.ReservePub); err != nil {
			return nil, fmt.Errorf("list incoming: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incoming: %w", err)
	}
	return out, nil
}

// ListOutgoing implements the Wire Gateway's GET /history/outgoing: the
// DBIT counterpart of ListIncoming, same keyset-pagination convention.
func (db *DB) ListOutgoing(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]OutgoingPayment, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if afterID == nil {
		rows, err = db.Query(ctx, `
			SELECT id, amount_val, amount_frac, currency, execution_time, message_id, creditor_payto
			FROM outgoing_payments
			WHERE currency = $1
			ORDER BY execution_time DESC, id DESC
			LIMIT $2`,
			currency, limit)
	} else {
		rows, err = db.Query(ctx, `
			SELECT id, amount_val, amount_frac, currency, execution_time, message_id, creditor_payto
			FROM outgoing_payments
			WHERE currency = $1
			  AND (execution_time, id) < (SELECT execution_time, id FROM outgoing_payments WHERE id = $2)
			ORDER BY execution_time DESC, id DESC
			LIMIT $3`,
			currency, *afterID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list outgoing: %w", err)
	}
	defer rows.Close()

	var out []OutgoingPayment
	for rows.Next() {
		var p OutgoingPayment
		if err := rows.Scan(&p.ID, &p.Amount.Value, &p.Amount.Frac, &p.Amount.Currency,
			&p.ExecutionTime, &p.MessageID, &p.CreditorPayto); err != nil {
			return nil, fmt.Errorf("list outgoing: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outgoing: %w", err)
	}
	return out, nil
}
