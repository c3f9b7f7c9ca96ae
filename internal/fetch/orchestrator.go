package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"nexus/internal/ebicsmsg"
	"nexus/internal/ebicstransport"
	"nexus/internal/filelog"
	"nexus/internal/iso20022"
	"nexus/internal/nexusdb"
)

// KindResult is one kind's outcome within a tick.
type KindResult struct {
	Kind       Kind
	Documents  int
	Parsed     int
	ParseFails int
	Aborted    bool  // an ebics-permanent error stopped this kind early
	Err        error // set when Aborted
}

// Result is the outcome of one fetch tick across every configured kind.
type Result struct {
	Kinds   []KindResult
	Success bool // false if any kind aborted or any document failed to parse
}

// Orchestrator drives one tick of the fetch/ingest pipeline (§4.8): for each
// configured kind it downloads via ebicstransport, unzips (except the bare
// HAC document), parses via iso20022, and reconciles against nexusdb.
type Orchestrator struct {
	Transport *ebicstransport.Client
	Header    ebicsmsg.Header
	Keys      ebicstransport.Keys
	DB        nexusdb.Database
	Currency  string
	Kinds     []Kind
	Dumper    *filelog.Dumper // optional
	Logger    *slog.Logger

	since map[Kind]time.Time
}

// NewOrchestrator builds a fetch orchestrator. A nil kinds slice defaults to
// DefaultKinds(); a nil logger defaults to slog.Default().
func NewOrchestrator(transport *ebicstransport.Client, header ebicsmsg.Header, keys ebicstransport.Keys, db nexusdb.Database, currency string, kinds []Kind, dumper *filelog.Dumper, logger *slog.Logger) *Orchestrator {
	if kinds == nil {
		kinds = DefaultKinds()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Transport: transport, Header: header, Keys: keys, DB: db, Currency: currency,
		Kinds: kinds, Dumper: dumper, Logger: logger, since: make(map[Kind]time.Time),
	}
}

// SetSince pins the effective lastExecutionTime a kind resumes from, e.g.
// from a persisted checkpoint or an operator-supplied start timestamp.
func (o *Orchestrator) SetSince(k Kind, at time.Time) {
	o.since[k] = at
}

// Run executes one tick (§5: ticks never overlap for the same subcommand;
// that guarantee is the caller's responsibility, not this method's). It
// processes kinds in order, sequentially, stopping immediately on a
// reachability error — the next tick re-polls from the same
// lastExecutionTime since nothing in this tick committed past that point.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	result := Result{Success: true}
	for _, k := range o.Kinds {
		kr, err := o.runKind(ctx, k)
		result.Kinds = append(result.Kinds, kr)
		if kr.Aborted || kr.ParseFails > 0 {
			result.Success = false
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (o *Orchestrator) runKind(ctx context.Context, k Kind) (KindResult, error) {
	kr := KindResult{Kind: k}

	doc, err := o.Transport.Download(ctx, o.Header, k.descriptor(), o.since[k], o.Keys)
	if err != nil {
		var terr *ebicstransport.Error
		if errors.As(err, &terr) && terr.Class == ebicstransport.ClassReachability {
			return kr, fmt.Errorf("fetch: download %s: %w", k, err)
		}
		kr.Aborted = true
		kr.Err = err
		o.Logger.Error("fetch: kind aborted on ebics-permanent error", "kind", k, "error", err)
		return kr, nil
	}
	if doc == nil {
		return kr, nil
	}

	entries, err := o.splitEntries(k, doc)
	if err != nil {
		kr.Aborted = true
		kr.Err = err
		o.Logger.Error("fetch: unzip failed", "kind", k, "error", err)
		return kr, nil
	}
	kr.Documents = len(entries)

	for i, entry := range entries {
		if o.Dumper != nil {
			if derr := o.Dumper.Dump(time.Now(), string(k), i+1, entry); derr != nil {
				o.Logger.Warn("fetch: debug dump failed", "kind", k, "segment", i+1, "error", derr)
			}
		}
		if err := o.ingest(ctx, k, entry); err != nil {
			kr.ParseFails++
			o.Logger.Error("fetch: ingest document failed", "kind", k, "segment", i+1, "error", err)
			continue
		}
		kr.Parsed++
	}

	o.since[k] = time.Now()
	return kr, nil
}

func (o *Orchestrator) splitEntries(k Kind, doc []byte) ([][]byte, error) {
	if k.bareDocument() {
		return [][]byte{doc}, nil
	}
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}
	var entries [][]byte
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip entry %s: %w", f.Name, err)
		}
		entries = append(entries, data)
	}
	return entries, nil
}

func (o *Orchestrator) ingest(ctx context.Context, k Kind, data []byte) error {
	switch k {
	case KindNotification, KindReport, KindStatement:
		return o.ingestCamt054(ctx, data)
	case KindStatus:
		return o.ingestPaymentStatus(ctx, data)
	case KindAcknowledgement:
		return o.ingestHAC(ctx, data)
	default:
		return fmt.Errorf("fetch: no ingester for kind %s", k)
	}
}

func (o *Orchestrator) ingestCamt054(ctx context.Context, data []byte) error {
	result, err := iso20022.ParseCamt054(data, o.Currency)
	if err != nil {
		return fmt.Errorf("parse camt.054: %w", err)
	}
	for _, skipped := range result.Skipped {
		o.Logger.Info("fetch: skipped entry", "reason", skipped.Reason)
	}
	for _, candidate := range result.Incoming {
		if err := o.reconcileIncoming(ctx, candidate); err != nil {
			return err
		}
	}
	for _, candidate := range result.Outgoing {
		if err := o.reconcileOutgoing(ctx, candidate); err != nil {
			return err
		}
	}
	for _, candidate := range result.Reversals {
		if err := o.DB.Reversal(ctx, candidate.MessageID, candidate.AdditionalInfo); err != nil {
			return fmt.Errorf("reconcile reversal %s: %w", candidate.MessageID, err)
		}
		o.Logger.Info("fetch: reversal", "message_id", candidate.MessageID)
	}
	return nil
}

func (o *Orchestrator) reconcileIncoming(ctx context.Context, candidate iso20022.IncomingCandidate) error {
	incoming := nexusdb.IncomingPayment{
		Amount: candidate.Amount, DebtorPayto: candidate.DebtorPayto,
		Subject: candidate.Subject, ExecutionTime: candidate.ExecutionTime, BankID: candidate.BankID,
	}
	if reservePub, ok := findReservePub(candidate.Subject); ok {
		incoming.ReservePub = &reservePub
		res, err := o.DB.RegisterIncomingAndTalerable(ctx, incoming, reservePub)
		if err != nil {
			return fmt.Errorf("register talerable incoming %s: %w", candidate.BankID, err)
		}
		if res.New {
			o.Logger.Info("fetch: new incoming (talerable)", "bank_id", candidate.BankID, "reserve_pub", reservePub)
		}
		return nil
	}

	res, err := o.DB.RegisterIncomingAndBounce(ctx, incoming, candidate.Amount, time.Now())
	if err != nil {
		return fmt.Errorf("register bounced incoming %s: %w", candidate.BankID, err)
	}
	if res.New {
		o.Logger.Info("fetch: new incoming (bounced, no reserve-pub)", "bank_id", candidate.BankID)
	}
	return nil
}

func (o *Orchestrator) reconcileOutgoing(ctx context.Context, candidate iso20022.OutgoingCandidate) error {
	outgoing := nexusdb.OutgoingPayment{
		Amount: candidate.Amount, ExecutionTime: candidate.ExecutionTime, MessageID: candidate.MessageID,
	}
	res, err := o.DB.RegisterOutgoing(ctx, outgoing)
	if err != nil {
		return fmt.Errorf("register outgoing %s: %w", candidate.MessageID, err)
	}
	if res.New {
		o.Logger.Info("fetch: new outgoing", "message_id", candidate.MessageID, "reconciled", res.Initiated)
	}
	return nil
}

func (o *Orchestrator) ingestPaymentStatus(ctx context.Context, data []byte) error {
	statuses, err := iso20022.ParsePaymentStatus(data)
	if err != nil {
		return fmt.Errorf("parse payment-status: %w", err)
	}
	for _, status := range statuses {
		if status.EffectiveCode() == "RJCT" {
			msg := "payment rejected"
			if len(status.Reasons) > 0 {
				msg = joinReasons(status.Reasons)
			}
			if err := o.DB.BankFailure(ctx, status.MsgID, msg); err != nil {
				return fmt.Errorf("record bank failure for %s: %w", status.MsgID, err)
			}
			o.Logger.Warn("fetch: payment rejected", "msg_id", status.MsgID, "reasons", msg)
			continue
		}
		if err := o.DB.BankMessage(ctx, status.MsgID, status.EffectiveCode()); err != nil {
			return fmt.Errorf("record bank message for %s: %w", status.MsgID, err)
		}
	}
	return nil
}

func (o *Orchestrator) ingestHAC(ctx context.Context, data []byte) error {
	acks, err := iso20022.ParseHAC(data)
	if err != nil {
		return fmt.Errorf("parse HAC: %w", err)
	}
	for _, ack := range acks {
		if ack.OrderID == nil {
			continue
		}
		switch ack.Action {
		case iso20022.ActionOrderHACFinalPos:
			res, err := o.DB.LogSuccess(ctx, *ack.OrderID)
			if err != nil {
				return fmt.Errorf("log success for order %s: %w", *ack.OrderID, err)
			}
			if res != nil {
				o.Logger.Info("fetch: order accepted", "order_id", *ack.OrderID, "request_uid", res.RequestUID)
			}
		case iso20022.ActionOrderHACFinalNeg:
			res, err := o.DB.LogFailure(ctx, *ack.OrderID)
			if err != nil {
				return fmt.Errorf("log failure for order %s: %w", *ack.OrderID, err)
			}
			if res != nil {
				o.Logger.Warn("fetch: order rejected", "order_id", *ack.OrderID, "request_uid", res.RequestUID)
			}
		}
	}
	return nil
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += ", " + r
	}
	return out
}
