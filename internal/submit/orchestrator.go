// Package submit implements the submit orchestrator (C9, §4.9): per tick,
// every submittable initiated payment is built into a pain.001 and
// uploaded to the bank, with the outcome recorded back through
// nexusdb.Database.
package submit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nexus/internal/amount"
	"nexus/internal/ebicsmsg"
	"nexus/internal/ebicstransport"
	"nexus/internal/iso20022"
	"nexus/internal/nexusdb"
)

// Options configures the submit orchestrator's ticker.
type Options struct {
	Interval time.Duration
}

// DefaultOptions returns the submit tick interval used when none is
// configured.
func DefaultOptions() Options {
	return Options{Interval: 30 * time.Second}
}

// TickResult summarizes one submit tick across every submittable payment.
type TickResult struct {
	Submitted int
	Rejected  int // client-side reject, stage "pain" — never reached the bank
	Transient int
	Permanent int
}

// Orchestrator drives the submit loop: one active submitter per
// subscriber, serialized by its own ticker (§5 — no competing worker
// pool).
type Orchestrator struct {
	transport *ebicstransport.Client
	header    ebicsmsg.Header
	keys      ebicstransport.Keys
	db        nexusdb.Database
	currency  string

	debtorName string
	debtorIBAN string
	debtorBIC  string

	opts   Options
	logger *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewOrchestrator builds a submit orchestrator for one host account,
// identified by debtorName/debtorIBAN/debtorBIC (debtorBIC may be empty).
// A zero Options uses DefaultOptions(); a nil logger defaults to
// slog.Default().
func NewOrchestrator(transport *ebicstransport.Client, header ebicsmsg.Header, keys ebicstransport.Keys, db nexusdb.Database, currency, debtorName, debtorIBAN, debtorBIC string, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Interval == 0 {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		transport: transport, header: header, keys: keys, db: db, currency: currency,
		debtorName: debtorName, debtorIBAN: debtorIBAN, debtorBIC: debtorBIC,
		opts: opts, logger: logger, stopCh: make(chan struct{}),
	}
}

// Start runs the submit ticker until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stopCh:
				return
			case <-ticker.C:
				if _, err := o.Tick(ctx); err != nil {
					o.logger.Error("submit: tick failed", "error", err)
				}
			}
		}
	}()
}

// Stop signals the ticker goroutine to exit and waits for it.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
	o.wg.Wait()
}

// Tick runs one submit pass (§4.9): iterate nexusdb's submittable queue for
// the configured currency, submitting each payment in turn.
func (o *Orchestrator) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult
	payments, err := o.db.Submittable(ctx, o.currency)
	if err != nil {
		return result, err
	}
	for _, p := range payments {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		o.submitOne(ctx, p, &result)
	}
	return result, nil
}

func (o *Orchestrator) submitOne(ctx context.Context, p nexusdb.InitiatedPayment, result *TickResult) {
	creditor, err := amount.ParsePayto(p.CreditorPayto)
	if err != nil || creditor.ReceiverName == "" {
		result.Rejected++
		msg := "creditor payto missing receiver name"
		if err != nil {
			msg = "invalid creditor payto: " + err.Error()
		}
		if ferr := o.db.SubmissionFailure(ctx, p.ID, time.Now(), false, msg); ferr != nil {
			o.logger.Error("submit: record client-side rejection failed", "id", p.ID, "error", ferr)
		}
		o.logger.Warn("submit: rejected at client", "id", p.ID, "reason", msg)
		return
	}

	now := time.Now()
	doc, err := iso20022.EmitPain001(iso20022.Pain001Request{
		RequestUID:     p.RequestUID,
		InitiationTime: now,
		Amount:         p.Amount,
		DebtorName:     o.debtorName,
		DebtorIBAN:     o.debtorIBAN,
		DebtorBIC:      o.debtorBIC,
		CreditorName:   creditor.ReceiverName,
		CreditorPayto:  creditor,
		Subject:        p.Subject,
	})
	if err != nil {
		result.Rejected++
		if ferr := o.db.SubmissionFailure(ctx, p.ID, now, false, err.Error()); ferr != nil {
			o.logger.Error("submit: record pain.001 build failure failed", "id", p.ID, "error", ferr)
		}
		return
	}

	orderID, err := o.transport.Upload(ctx, o.header, ebicsmsg.BTUpload, "pain001.xml", doc, o.keys)
	if err != nil {
		var terr *ebicstransport.Error
		transient := errors.As(err, &terr) && terr.Class == ebicstransport.ClassReachability
		if transient {
			result.Transient++
		} else {
			result.Permanent++
		}
		if ferr := o.db.SubmissionFailure(ctx, p.ID, time.Now(), transient, err.Error()); ferr != nil {
			o.logger.Error("submit: record submission failure failed", "id", p.ID, "error", ferr)
		}
		o.logger.Warn("submit: upload failed", "id", p.ID, "request_uid", p.RequestUID, "transient", transient, "error", err)
		return
	}

	if err := o.db.SubmissionSuccess(ctx, p.ID, time.Now(), orderID); err != nil {
		o.logger.Error("submit: record submission success failed", "id", p.ID, "order_id", orderID, "error", err)
		return
	}
	result.Submitted++
	o.logger.Info("submit: submitted", "id", p.ID, "request_uid", p.RequestUID, "order_id", orderID)
}
