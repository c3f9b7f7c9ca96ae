package wiregateway

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"nexus/internal/amount"
	"nexus/internal/nexusdb"
)

// handler groups the Wire Gateway's route handlers behind the persistence
// port; it has no other dependency, matching §6's framing of this facade as
// an external collaborator of the core rather than part of it.
type handler struct {
	db nexusdb.Database
}

// transferRequest is the POST /transfer body: an exchange asking nexus to
// pay out to a payto:// account.
type transferRequest struct {
	RequestUID    string `json:"request_uid"`
	Amount        string `json:"amount"`
	CreditorPayto string `json:"creditor_payto"`
	Subject       string `json:"subject"`
}

type transferResponse struct {
	ID              uuid.UUID `json:"id"`
	RequestUIDReuse bool      `json:"request_uid_reuse"`
}

func (h *handler) Transfer(c fiber.Ctx) error {
	var req transferRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}
	if req.RequestUID == "" || req.CreditorPayto == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "request_uid and creditor_payto are required"})
	}

	amt, err := amount.Parse(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := h.db.CreateInitiated(c.Context(), nexusdb.InitiatedPayment{
		Amount:         amt,
		CreditorPayto:  req.CreditorPayto,
		Subject:        req.Subject,
		InitiationTime: time.Now(),
		RequestUID:     req.RequestUID,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not create payment"})
	}

	return c.Status(fiber.StatusOK).JSON(transferResponse{ID: result.ID, RequestUIDReuse: result.RequestUIDReuse})
}

// historyIncomingEntry and historyOutgoingEntry are the Wire Gateway's wire
// form for a booked payment: amount rendered "value.frac", no internal ids
// leaked beyond the cursor needed for the next page.
type historyIncomingEntry struct {
	RowID         uuid.UUID `json:"row_id"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	DebtorPayto   string    `json:"debtor_payto"`
	Subject       string    `json:"subject"`
	ExecutionTime time.Time `json:"execution_time"`
	ReservePub    *string   `json:"reserve_pub,omitempty"`
}

type historyOutgoingEntry struct {
	RowID         uuid.UUID `json:"row_id"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	CreditorPayto *string   `json:"creditor_payto,omitempty"`
	ExecutionTime time.Time `json:"execution_time"`
}

func (h *handler) HistoryIncoming(c fiber.Ctx) error {
	currency := c.Query("currency")
	if currency == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "currency is required"})
	}
	afterID, limit, err := parsePageParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	payments, err := h.db.ListIncoming(c.Context(), currency, afterID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not list incoming payments"})
	}

	entries := make([]historyIncomingEntry, 0, len(payments))
	for _, p := range payments {
		entries = append(entries, historyIncomingEntry{
			RowID: p.ID, Amount: p.Amount.String(), Currency: p.Amount.Currency,
			DebtorPayto: p.DebtorPayto, Subject: p.Subject, ExecutionTime: p.ExecutionTime,
			ReservePub: p.ReservePub,
		})
	}
	return c.JSON(fiber.Map{"incoming_transactions": entries})
}

func (h *handler) HistoryOutgoing(c fiber.Ctx) error {
	currency := c.Query("currency")
	if currency == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "currency is required"})
	}
	afterID, limit, err := parsePageParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	payments, err := h.db.ListOutgoing(c.Context(), currency, afterID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not list outgoing payments"})
	}

	entries := make([]historyOutgoingEntry, 0, len(payments))
	for _, p := range payments {
		entries = append(entries, historyOutgoingEntry{
			RowID: p.ID, Amount: p.Amount.String(), Currency: p.Amount.Currency,
			CreditorPayto: p.CreditorPayto, ExecutionTime: p.ExecutionTime,
		})
	}
	return c.JSON(fiber.Map{"outgoing_transactions": entries})
}

// adminAddIncomingRequest lets an operator or test harness inject a
// synthetic incoming payment without waiting on a real bank statement —
// useful running against a sandbox bank that has no inbound traffic of its
// own (§5).
type adminAddIncomingRequest struct {
	Amount      string `json:"amount"`
	DebtorPayto string `json:"debtor_payto"`
	Subject     string `json:"subject"`
	ReservePub  string `json:"reserve_pub"`
}

func (h *handler) AdminAddIncoming(c fiber.Ctx) error {
	var req adminAddIncomingRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request body"})
	}
	if req.DebtorPayto == "" || req.ReservePub == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "debtor_payto and reserve_pub are required"})
	}

	amt, err := amount.Parse(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := h.db.RegisterIncomingAndTalerable(c.Context(), nexusdb.IncomingPayment{
		Amount:        amt,
		DebtorPayto:   req.DebtorPayto,
		Subject:       req.Subject,
		ExecutionTime: time.Now(),
		BankID:        "admin-" + uuid.NewString(),
	}, req.ReservePub)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "could not register incoming payment"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"row_id": result.ID, "new": result.New})
}

// parsePageParams reads the Wire Gateway's keyset-pagination query
// parameters: "start" is the row id to page after, "delta" is the page size.
func parsePageParams(c fiber.Ctx) (*uuid.UUID, int, error) {
	limit := 20
	if v := c.Query("delta"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, 0, fiber.NewError(fiber.StatusBadRequest, "delta must be a positive integer")
		}
		limit = n
	}

	var afterID *uuid.UUID
	if v := c.Query("start"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, 0, fiber.NewError(fiber.StatusBadRequest, "start must be a valid id")
		}
		afterID = &id
	}
	return afterID, limit, nil
}
