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

// CreateInitiated implements initiated.create (§4.7). RequestUID reuse is
// the integrity-class outcome of §7, surfaced as a result field rather than
// a generic error.
func (db *DB) CreateInitiated(ctx context.Context, p InitiatedPayment) (CreateResult, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO initiated_payments
			(amount_val, amount_frac, currency, creditor_payto, subject, initiation_time, request_uid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_uid) DO NOTHING
		RETURNING id`,
		p.Amount.Value, p.Amount.Frac, p.Amount.Currency, p.CreditorPayto, p.Subject, p.InitiationTime, p.RequestUID)

	var id uuid.UUID
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreateResult{RequestUIDReuse: true}, nil
		}
		return CreateResult{}, fmt.Errorf("create initiated payment: %w", err)
	}
	return CreateResult{ID: id}, nil
}

// SubmissionSuccess records a successful C9 upload: state moves to success,
// the bank-assigned order-id is stored for later HAC resolution.
func (db *DB) SubmissionSuccess(ctx context.Context, id uuid.UUID, at time.Time, orderID string) error {
	return db.Exec(ctx, `
		UPDATE initiated_payments
		SET submission_state = $2,
		    last_submission_time = $3,
		    order_id = $4,
		    submission_counter = submission_counter + 1,
		    failure_message = NULL
		WHERE id = $1`,
		id, StateSuccess, at, orderID)
}

// SubmissionFailure records a failed C9 upload attempt: transient failures
// are retried on a later tick, permanent failures are terminal (§4.9).
func (db *DB) SubmissionFailure(ctx context.Context, id uuid.UUID, at time.Time, transient bool, msg string) error {
	state := StatePermanentFailure
	if transient {
		state = StateTransientFailure
	}
	return db.Exec(ctx, `
		UPDATE initiated_payments
		SET submission_state = $2,
		    last_submission_time = $3,
		    submission_counter = submission_counter + 1,
		    failure_message = $4
		WHERE id = $1 AND submission_state != $5`,
		id, state, at, msg, StateSuccess)
}

// BankMessage attaches an informational note from a later bank message
// without changing submission state.
func (db *DB) BankMessage(ctx context.Context, requestUID, msg string) error {
	return db.Exec(ctx, `
		UPDATE initiated_payments SET failure_message = $2 WHERE request_uid = $1`,
		requestUID, msg)
}

// BankFailure marks the initiated payment identified by requestUID
// permanently failed, attaching the bank's message.
func (db *DB) BankFailure(ctx context.Context, requestUID, msg string) error {
	res, err := db.ExecResult(ctx, `
		UPDATE initiated_payments
		SET submission_state = $2, failure_message = $3
		WHERE request_uid = $1`,
		requestUID, StatePermanentFailure, msg)
	if err != nil {
		return fmt.Errorf("bank failure for %s: %w", requestUID, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("bank failure for %s: no such initiated payment", requestUID)
	}
	return nil
}

// Reversal implements the non-monotonic edge of §9: a payment already
// success is moved to permanent_failure by a later camt reversal. This is
// the one transition allowed to override a terminal state.
func (db *DB) Reversal(ctx context.Context, requestUID, msg string) error {
	res, err := db.ExecResult(ctx, `
		UPDATE initiated_payments
		SET submission_state = $2, failure_message = $3
		WHERE request_uid = $1 AND submission_state = $4`,
		requestUID, StatePermanentFailure, msg, StateSuccess)
	if err != nil {
		return fmt.Errorf("reversal for %s: %w", requestUID, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("reversal for %s: not in success state", requestUID)
	}
	return nil
}

// LogSuccess resolves a HAC ORDER_HAC_FINAL_POS order-id to its initiated
// payment, confirming the submission as accepted.
func (db *DB) LogSuccess(ctx context.Context, orderID string) (*LogResolution, error) {
	return db.resolveLog(ctx, orderID, StateSuccess, "")
}

// LogFailure resolves a HAC ORDER_HAC_FINAL_NEG order-id to its initiated
// payment, marking it permanently failed.
func (db *DB) LogFailure(ctx context.Context, orderID string) (*LogResolution, error) {
	return db.resolveLog(ctx, orderID, StatePermanentFailure, "rejected by bank (HAC)")
}

func (db *DB) resolveLog(ctx context.Context, orderID string, newState SubmissionState, msg string) (*LogResolution, error) {
	var requestUID string
	var prevMsg *string
	row := db.QueryRow(ctx, `
		WITH prev AS (
			SELECT id, failure_message FROM initiated_payments WHERE order_id = $1
		)
		UPDATE initiated_payments AS ip
		SET submission_state = $2,
		    failure_message = COALESCE(NULLIF($3, ''), ip.failure_message)
		FROM prev
		WHERE ip.id = prev.id
		RETURNING ip.request_uid, prev.failure_message`,
		orderID, newState, msg)
	if err := row.Scan(&requestUID, &prevMsg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve log for order %s: %w", orderID, err)
	}
	return &LogResolution{RequestUID: requestUID, PreviousMsg: prevMsg}, nil
}

// Submittable implements the retry policy of §4.7: unsubmitted payments
// oldest-first, then transient_failure payments ordered by last submission
// time, so every unsubmitted payment gets a chance before any retry.
func (db *DB) Submittable(ctx context.Context, currency string) ([]InitiatedPayment, error) {
	rows, err := db.Query(ctx, `
		SELECT id, amount_val, amount_frac, currency, creditor_payto, subject,
		       initiation_time, request_uid, submission_state, last_submission_time,
		       failure_message, order_id, submission_counter
		FROM initiated_payments
		WHERE currency = $1 AND submission_state IN ($2, $3)
		ORDER BY
			CASE submission_state WHEN $2 THEN 0 ELSE 1 END,
			CASE submission_state WHEN $2 THEN initiation_time ELSE last_submission_time END ASC`,
		currency, StateUnsubmitted, StateTransientFailure)
	if err != nil {
		return nil, fmt.Errorf("submittable query: %w", err)
	}
	defer rows.Close()

	var out []InitiatedPayment
	for rows.Next() {
		var p InitiatedPayment
		var a amount.Amount
		a.Currency = currency
		if err := rows.Scan(&p.ID, &a.Value, &a.Frac, &a.Currency, &p.CreditorPayto, &p.Subject,
			&p.InitiationTime, &p.RequestUID, &p.SubmissionState, &p.LastSubmissionTime,
			&p.FailureMessage, &p.OrderID, &p.SubmissionCounter); err != nil {
			return nil, fmt.Errorf("scan submittable row: %w", err)
		}
		p.Amount = a
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("submittable rows: %w", err)
	}
	return out, nil
}
