package wiregateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/amount"
	"nexus/internal/config"
	"nexus/internal/nexusdb"
	"nexus/internal/wiregateway"
)

const testJWTSecret = "test-wire-gateway-secret-at-least-32-bytes-long"

type fakeDB struct {
	initiated []nexusdb.InitiatedPayment
	incoming  []nexusdb.IncomingPayment
	outgoing  []nexusdb.OutgoingPayment
}

func (f *fakeDB) CreateInitiated(ctx context.Context, p nexusdb.InitiatedPayment) (nexusdb.CreateResult, error) {
	for _, existing := range f.initiated {
		if existing.RequestUID == p.RequestUID {
			return nexusdb.CreateResult{ID: existing.ID, RequestUIDReuse: true}, nil
		}
	}
	p.ID = uuid.New()
	f.initiated = append(f.initiated, p)
	return nexusdb.CreateResult{ID: p.ID}, nil
}
func (f *fakeDB) SubmissionSuccess(ctx context.Context, id uuid.UUID, at time.Time, orderID string) error {
	return nil
}
func (f *fakeDB) SubmissionFailure(ctx context.Context, id uuid.UUID, at time.Time, transient bool, msg string) error {
	return nil
}
func (f *fakeDB) BankMessage(ctx context.Context, requestUID, msg string) error { return nil }
func (f *fakeDB) BankFailure(ctx context.Context, requestUID, msg string) error { return nil }
func (f *fakeDB) Reversal(ctx context.Context, requestUID, msg string) error    { return nil }
func (f *fakeDB) LogSuccess(ctx context.Context, orderID string) (*nexusdb.LogResolution, error) {
	return nil, nil
}
func (f *fakeDB) LogFailure(ctx context.Context, orderID string) (*nexusdb.LogResolution, error) {
	return nil, nil
}
func (f *fakeDB) Submittable(ctx context.Context, currency string) ([]nexusdb.InitiatedPayment, error) {
	return nil, nil
}
func (f *fakeDB) RegisterOutgoing(ctx context.Context, p nexusdb.OutgoingPayment) (nexusdb.RegisterResult, error) {
	return nexusdb.RegisterResult{}, nil
}
func (f *fakeDB) RegisterIncomingAndTalerable(ctx context.Context, p nexusdb.IncomingPayment, reservePub string) (nexusdb.IncomingResult, error) {
	p.ID = uuid.New()
	p.ReservePub = &reservePub
	f.incoming = append(f.incoming, p)
	return nexusdb.IncomingResult{ID: p.ID, New: true}, nil
}
func (f *fakeDB) RegisterIncomingAndBounce(ctx context.Context, p nexusdb.IncomingPayment, bounceAmount amount.Amount, now time.Time) (nexusdb.IncomingResult, error) {
	return nexusdb.IncomingResult{}, nil
}
func (f *fakeDB) ListIncoming(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]nexusdb.IncomingPayment, error) {
	return f.incoming, nil
}
func (f *fakeDB) ListOutgoing(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]nexusdb.OutgoingPayment, error) {
	return f.outgoing, nil
}

func testToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func newTestServer() (*wiregateway.Server, *fakeDB) {
	db := &fakeDB{}
	cfg := &config.ProcessConfig{
		Server: config.ServerConfig{Port: "0"},
		Auth:   config.AuthConfig{JWTSecret: testJWTSecret},
	}
	return wiregateway.New(cfg, db), db
}

func TestTransfer_RejectsMissingBearerToken(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest("POST", "/transfer", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestTransfer_CreatesInitiatedPayment(t *testing.T) {
	srv, db := newTestServer()
	body := `{"request_uid":"REQ1","amount":"EUR:10.00","creditor_payto":"payto://iban/DE89370400440532013000","subject":"invoice"}`
	req := httptest.NewRequest("POST", "/transfer", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken(t))

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out struct {
		ID              uuid.UUID `json:"id"`
		RequestUIDReuse bool      `json:"request_uid_reuse"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.RequestUIDReuse)
	require.Len(t, db.initiated, 1)
	assert.Equal(t, "REQ1", db.initiated[0].RequestUID)
}

func TestTransfer_ReportsRequestUIDReuse(t *testing.T) {
	srv, _ := newTestServer()
	body := `{"request_uid":"REQ2","amount":"EUR:1.00","creditor_payto":"payto://iban/DE89370400440532013000","subject":"s"}`

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/transfer", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+testToken(t))
		resp, err := srv.App().Test(req)
		require.NoError(t, err)
		var out struct {
			RequestUIDReuse bool `json:"request_uid_reuse"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		if i == 1 {
			assert.True(t, out.RequestUIDReuse)
		}
	}
}

func TestHistoryIncoming_RequiresCurrency(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest("GET", "/history/incoming", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t))

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHistoryIncoming_ListsRegisteredPayments(t *testing.T) {
	srv, db := newTestServer()
	db.incoming = []nexusdb.IncomingPayment{
		{ID: uuid.New(), Amount: mustAmount(t, "EUR:1.00"), DebtorPayto: "payto://iban/DE1", ExecutionTime: time.Now()},
	}
	req := httptest.NewRequest("GET", "/history/incoming?currency=EUR", nil)
	req.Header.Set("Authorization", "Bearer "+testToken(t))

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var out struct {
		Incoming []map[string]any `json:"incoming_transactions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Incoming, 1)
}

func TestAdminAddIncoming_RegistersSyntheticPayment(t *testing.T) {
	srv, db := newTestServer()
	body := `{"amount":"EUR:5.00","debtor_payto":"payto://iban/DE2","subject":"test","reserve_pub":"ABCDEF"}`
	req := httptest.NewRequest("POST", "/admin/add-incoming", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken(t))

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, db.incoming, 1)
	assert.Equal(t, "ABCDEF", *db.incoming[0].ReservePub)
}

func mustAmount(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(s)
	require.NoError(t, err)
	return a
}
