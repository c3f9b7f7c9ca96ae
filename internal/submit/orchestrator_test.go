package submit_test

import (
	"context"
	"crypto/rsa"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/amount"
	"nexus/internal/ebicscrypto"
	"nexus/internal/ebicsmsg"
	"nexus/internal/ebicstransport"
	"nexus/internal/ebicsxml"
	"nexus/internal/nexusdb"
	"nexus/internal/submit"
)

const bankEndpoint = "https://bank.example.test/ebics"

func genKeys(t *testing.T) (subscriberSig, subscriberEnc, bankAuth *rsa.PrivateKey) {
	t.Helper()
	var err error
	subscriberSig, err = ebicscrypto.GenerateKey(2048)
	require.NoError(t, err)
	subscriberEnc, err = ebicscrypto.GenerateKey(2048)
	require.NoError(t, err)
	bankAuth, err = ebicscrypto.GenerateKey(2048)
	require.NoError(t, err)
	return
}

func uploadResponse(t *testing.T, bankAuthKey *rsa.PrivateKey, returnCode, orderID string) []byte {
	t.Helper()
	b := ebicsxml.NewBuilder("ebicsResponse")
	b.El("header").Attr("authenticate", "true")
	header := b.Current()
	b.At(header).El("static/TransactionID").Text("SUBTX1")
	b.At(header).El("mutable/TransactionPhase").Text("Initialisation")
	b.At(header).El("mutable/ReturnCode").Text(returnCode)
	if orderID != "" {
		b.At(header).El("mutable/OrderID").Text(orderID)
	}
	b.At(header).El("AuthSignature")
	b.At(b.Root()).El("body/ReturnCode").Text(returnCode)

	root := b.Build()
	require.NoError(t, ebicsxml.Sign(root, "header/AuthSignature", bankAuthKey, ebicscrypto.SignA006))
	return ebicsxml.Marshal(root)
}

type fakeDB struct {
	submittable []nexusdb.InitiatedPayment
	successes   map[uuid.UUID]string
	failures    map[uuid.UUID]struct {
		transient bool
		msg       string
	}
}

func newFakeDB(payments ...nexusdb.InitiatedPayment) *fakeDB {
	return &fakeDB{
		submittable: payments,
		successes:   make(map[uuid.UUID]string),
		failures: make(map[uuid.UUID]struct {
			transient bool
			msg       string
		}),
	}
}

func (f *fakeDB) CreateInitiated(ctx context.Context, p nexusdb.InitiatedPayment) (nexusdb.CreateResult, error) {
	return nexusdb.CreateResult{}, nil
}
func (f *fakeDB) SubmissionSuccess(ctx context.Context, id uuid.UUID, at time.Time, orderID string) error {
	f.successes[id] = orderID
	return nil
}
func (f *fakeDB) SubmissionFailure(ctx context.Context, id uuid.UUID, at time.Time, transient bool, msg string) error {
	f.failures[id] = struct {
		transient bool
		msg       string
	}{transient, msg}
	return nil
}
func (f *fakeDB) BankMessage(ctx context.Context, requestUID, msg string) error  { return nil }
func (f *fakeDB) BankFailure(ctx context.Context, requestUID, msg string) error  { return nil }
func (f *fakeDB) Reversal(ctx context.Context, requestUID, msg string) error     { return nil }
func (f *fakeDB) LogSuccess(ctx context.Context, orderID string) (*nexusdb.LogResolution, error) {
	return nil, nil
}
func (f *fakeDB) LogFailure(ctx context.Context, orderID string) (*nexusdb.LogResolution, error) {
	return nil, nil
}
func (f *fakeDB) Submittable(ctx context.Context, currency string) ([]nexusdb.InitiatedPayment, error) {
	return f.submittable, nil
}
func (f *fakeDB) RegisterOutgoing(ctx context.Context, p nexusdb.OutgoingPayment) (nexusdb.RegisterResult, error) {
	return nexusdb.RegisterResult{}, nil
}
func (f *fakeDB) RegisterIncomingAndTalerable(ctx context.Context, p nexusdb.IncomingPayment, reservePub string) (nexusdb.IncomingResult, error) {
	return nexusdb.IncomingResult{}, nil
}
func (f *fakeDB) RegisterIncomingAndBounce(ctx context.Context, p nexusdb.IncomingPayment, bounceAmount amount.Amount, now time.Time) (nexusdb.IncomingResult, error) {
	return nexusdb.IncomingResult{}, nil
}
func (f *fakeDB) ListIncoming(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]nexusdb.IncomingPayment, error) {
	return nil, nil
}
func (f *fakeDB) ListOutgoing(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]nexusdb.OutgoingPayment, error) {
	return nil, nil
}

func newOrchestrator(t *testing.T, db nexusdb.Database, keys ebicstransport.Keys) *submit.Orchestrator {
	t.Helper()
	transport := ebicstransport.NewClient(bankEndpoint, "HOST1", nil)
	hdr := ebicsmsg.Header{HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1", Product: "nexus"}
	return submit.NewOrchestrator(transport, hdr, keys, db, "CHF", "Acme GmbH", "CH9300762011623852957", "", submit.Options{}, nil)
}

func TestOrchestrator_SubmitsAndRecordsOrderID(t *testing.T) {
	subscriberSig, subscriberEnc, bankAuth := genKeys(t)

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", bankEndpoint, func(req *http.Request) (*http.Response, error) {
		return httpmock.NewStringResponse(200, string(uploadResponse(t, bankAuth, "000000", "ORDER1"))), nil
	})

	amt, err := amount.Parse("CHF:10.00")
	require.NoError(t, err)
	id := uuid.New()
	db := newFakeDB(nexusdb.InitiatedPayment{
		ID: id, Amount: amt, RequestUID: "REQ1", Subject: "invoice 1",
		CreditorPayto: "payto://iban/CH2108307000289537320?receiver-name=Jane+Doe",
	})

	keys := ebicstransport.Keys{
		SignaturePrivate: subscriberSig, EncryptionPrivate: subscriberEnc,
		BankAuthPublic: &bankAuth.PublicKey, BankEncryptPublic: &subscriberEnc.PublicKey,
	}
	o := newOrchestrator(t, db, keys)

	result, err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Submitted)
	assert.Equal(t, "ORDER1", db.successes[id])
}

func TestOrchestrator_RejectsMissingReceiverNameWithoutContactingBank(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", bankEndpoint, func(req *http.Request) (*http.Response, error) {
		t.Fatal("the bank must never be contacted for a client-side rejection")
		return nil, nil
	})

	amt, err := amount.Parse("CHF:10.00")
	require.NoError(t, err)
	id := uuid.New()
	db := newFakeDB(nexusdb.InitiatedPayment{
		ID: id, Amount: amt, RequestUID: "REQ2", Subject: "invoice 2",
		CreditorPayto: "payto://iban/CH2108307000289537320",
	})

	_, subscriberEnc, bankAuth := genKeys(t)
	keys := ebicstransport.Keys{BankAuthPublic: &bankAuth.PublicKey, BankEncryptPublic: &subscriberEnc.PublicKey}
	o := newOrchestrator(t, db, keys)

	result, err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rejected)
	failure, ok := db.failures[id]
	require.True(t, ok)
	assert.False(t, failure.transient)
}

func TestOrchestrator_ReachabilityFailureIsTransient(t *testing.T) {
	subscriberSig, subscriberEnc, bankAuth := genKeys(t)

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", bankEndpoint, httpmock.NewErrorResponder(assert.AnError))

	amt, err := amount.Parse("CHF:10.00")
	require.NoError(t, err)
	id := uuid.New()
	db := newFakeDB(nexusdb.InitiatedPayment{
		ID: id, Amount: amt, RequestUID: "REQ3", Subject: "invoice 3",
		CreditorPayto: "payto://iban/CH2108307000289537320?receiver-name=Jane+Doe",
	})

	keys := ebicstransport.Keys{
		SignaturePrivate: subscriberSig, EncryptionPrivate: subscriberEnc,
		BankAuthPublic: &bankAuth.PublicKey, BankEncryptPublic: &subscriberEnc.PublicKey,
	}
	o := newOrchestrator(t, db, keys)

	result, err := o.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Transient)
	failure, ok := db.failures[id]
	require.True(t, ok)
	assert.True(t, failure.transient)
}
