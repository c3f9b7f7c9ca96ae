package nexusdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nexus/internal/amount"
)

// SubmissionState is the lifecycle of an initiated payment (§3).
type SubmissionState string

const (
	StateUnsubmitted      SubmissionState = "unsubmitted"
	StateTransientFailure SubmissionState = "transient_failure"
	StatePermanentFailure SubmissionState = "permanent_failure"
	StateSuccess          SubmissionState = "success"
)

// InitiatedPayment is a payment-initiation request accepted from the Wire
// Gateway facade, tracked through submission to the bank.
type InitiatedPayment struct {
	ID                 uuid.UUID
	Amount             amount.Amount
	CreditorPayto      string
	Subject            string
	InitiationTime     time.Time
	RequestUID         string
	SubmissionState    SubmissionState
	LastSubmissionTime *time.Time
	FailureMessage     *string
	OrderID            *string
	SubmissionCounter  int
}

// IncomingPayment is a CRDT camt.054 entry booked at the host account.
type IncomingPayment struct {
	ID            uuid.UUID
	Amount        amount.Amount
	DebtorPayto   string
	Subject       string
	ExecutionTime time.Time
	BankID        string
	ReservePub    *string
}

// OutgoingPayment is a DBIT camt.054 entry booked at the host account,
// possibly reconciling with an InitiatedPayment of the same MsgId.
type OutgoingPayment struct {
	ID            uuid.UUID
	Amount        amount.Amount
	ExecutionTime time.Time
	MessageID     string
	CreditorPayto *string
}

// CreateResult is the outcome of Create: RequestUIDReuse signals the §3
// uniqueness invariant was violated rather than surfacing a generic error,
// matching the integrity-class outcome of §7.
type CreateResult struct {
	ID             uuid.UUID
	RequestUIDReuse bool
}

// RegisterResult is the outcome of RegisterOutgoing: idempotent on
// message-id, and reports whether it reconciled an initiated payment.
type RegisterResult struct {
	ID        uuid.UUID
	Initiated bool
	New       bool
}

// IncomingResult is the outcome of RegisterIncomingAndTalerable /
// RegisterIncomingAndBounce: idempotent on bank-id.
type IncomingResult struct {
	ID       uuid.UUID
	BounceID *uuid.UUID
	New      bool
}

// LogResolution is what initiated.log_success/log_failure resolve an
// order-id back to.
type LogResolution struct {
	RequestUID   string
	PreviousMsg  *string
}

// Database is the typed persistence port the core consumes (§4.7). It is
// the only boundary between the EBICS/ISO 20022 engine and PostgreSQL; every
// method is idempotent on its documented natural key.
type Database interface {
	// CreateInitiated inserts a new initiated payment. Reuse of RequestUID
	// is reported via CreateResult.RequestUIDReuse rather than an error.
	CreateInitiated(ctx context.Context, p InitiatedPayment) (CreateResult, error)

	// SubmissionSuccess and SubmissionFailure are mutually exclusive
	// terminal/retry transitions recorded after a C9 upload attempt.
	SubmissionSuccess(ctx context.Context, id uuid.UUID, at time.Time, orderID string) error
	SubmissionFailure(ctx context.Context, id uuid.UUID, at time.Time, transient bool, msg string) error

	// BankMessage and BankFailure attach a non-terminal or terminal note
	// from a later bank message (HAC, payment-status) to the initiated
	// payment identified by its RequestUID.
	BankMessage(ctx context.Context, requestUID, msg string) error
	BankFailure(ctx context.Context, requestUID, msg string) error

	// Reversal is the non-monotonic transition of §9: a payment already
	// success moves to permanent_failure on a later camt reversal.
	Reversal(ctx context.Context, requestUID, msg string) error

	// LogSuccess and LogFailure resolve a HAC order-id back to the
	// initiated payment that produced it, mutating state as a side effect.
	LogSuccess(ctx context.Context, orderID string) (*LogResolution, error)
	LogFailure(ctx context.Context, orderID string) (*LogResolution, error)

	// Submittable returns the retry-ordered queue for a currency: every
	// unsubmitted payment (created-time order) before any transient_failure
	// (last-submission-time order).
	Submittable(ctx context.Context, currency string) ([]InitiatedPayment, error)

	// RegisterOutgoing is called by the fetch orchestrator for each DBIT
	// camt.054 entry; it atomically reconciles with an initiated payment
	// of the same request-uid/message-id.
	RegisterOutgoing(ctx context.Context, p OutgoingPayment) (RegisterResult, error)

	// RegisterIncomingAndTalerable and RegisterIncomingAndBounce are
	// called by the fetch orchestrator for each CRDT camt.054 entry,
	// depending on whether a valid reserve-pub was found in the subject.
	RegisterIncomingAndTalerable(ctx context.Context, p IncomingPayment, reservePub string) (IncomingResult, error)
	RegisterIncomingAndBounce(ctx context.Context, p IncomingPayment, bounceAmount amount.Amount, now time.Time) (IncomingResult, error)

	// ListIncoming and ListOutgoing back the Wire Gateway's history
	// endpoints: a page of booked entries newest-first, starting strictly
	// after afterID when non-nil (keyset pagination on execution_time, id).
	ListIncoming(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]IncomingPayment, error)
	ListOutgoing(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]OutgoingPayment, error)
}
