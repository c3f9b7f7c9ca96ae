package fetch_test

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
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
	"nexus/internal/fetch"
	"nexus/internal/nexusdb"
)

const bankEndpoint = "https://bank.example.test/ebics"

const reservePub = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA" // 52 valid Crockford chars

const camt054WithReservePub = `<Document>
  <Ntfctn>
    <Ntry>
      <Sts><Cd>BOOK</Cd></Sts>
      <BookgDt><Dt>2024-05-01</Dt></BookgDt>
      <NtryDtls>
        <TxDtls>
          <Amt Ccy="CHF">10.00</Amt>
          <CdtDbtInd>CRDT</CdtDbtInd>
          <RltdPties>
            <DbtrAcct><Id><IBAN>CH9300762011623852957</IBAN></Id></DbtrAcct>
          </RltdPties>
          <RmtInf><Ustrd>Reserve ` + reservePub + `</Ustrd></RmtInf>
          <Refs><AcctSvcrRef>BANKREF1</AcctSvcrRef></Refs>
        </TxDtls>
      </NtryDtls>
    </Ntry>
  </Ntfctn>
</Document>`

const hacFinalPos = `<Document>
  <CstmrPmtStsRpt>
    <OrgnlPmtInfAndSts>
      <OrgnlPmtInfId>ORDER123</OrgnlPmtInfId>
      <PmtInfSts>ORDER_HAC_FINAL_POS</PmtInfSts>
      <Orgtr>
        <Id><OrgId><Othr>
          <Id>TimeStamp</Id>
          <SchmeNm><Prtry>2024-05-01T12:00:00Z</Prtry></SchmeNm>
        </Othr></OrgId></Id>
      </Orgtr>
    </OrgnlPmtInfAndSts>
  </CstmrPmtStsRpt>
</Document>`

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

func zipArchive(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(name)
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func downloadResponse(t *testing.T, bankAuthKey *rsa.PrivateKey, returnCode string, subscriberEnc *rsa.PrivateKey, document []byte) []byte {
	t.Helper()
	b := ebicsxml.NewBuilder("ebicsResponse")
	b.El("header").Attr("authenticate", "true")
	header := b.Current()
	b.At(header).El("static/TransactionID").Text("TX1")
	b.At(header).El("mutable/TransactionPhase").Text("Initialisation")
	b.At(header).El("mutable/ReturnCode").Text(returnCode)
	b.At(header).El("AuthSignature")

	if document != nil {
		compressed := zlibCompress(t, document)
		ct, wk, err := ebicscrypto.EncryptE002(compressed, &subscriberEnc.PublicKey)
		require.NoError(t, err)
		b.At(b.Root()).El("body/DataTransfer/DataEncryptionInfo/TransactionKey").Text(base64.StdEncoding.EncodeToString(wk))
		b.At(b.Root()).El("body/DataTransfer/OrderData").Text(base64.StdEncoding.EncodeToString(ct))
	}
	b.At(b.Root()).El("body/ReturnCode").Text(returnCode)

	root := b.Build()
	require.NoError(t, ebicsxml.Sign(root, "header/AuthSignature", bankAuthKey, ebicscrypto.SignA006))
	return ebicsxml.Marshal(root)
}

// registerDownloadThenReceipt wires one document's worth of download traffic:
// the first POST (not a Receipt phase) returns document, every subsequent
// (Receipt phase) POST acknowledges it.
func registerDownloadThenReceipt(t *testing.T, bankAuth, subscriberEnc *rsa.PrivateKey, document []byte) {
	t.Helper()
	httpmock.RegisterResponder("POST", bankEndpoint, func(req *http.Request) (*http.Response, error) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(string(raw), "Receipt") {
			return httpmock.NewStringResponse(200, string(downloadResponse(t, bankAuth, "000000", subscriberEnc, nil))), nil
		}
		return httpmock.NewStringResponse(200, string(downloadResponse(t, bankAuth, "000000", subscriberEnc, document))), nil
	})
}

type fakeDB struct {
	talerableCalls []nexusdb.IncomingPayment
	bounceCalls    []nexusdb.IncomingPayment
	outgoingCalls  []nexusdb.OutgoingPayment
	logSuccess     []string
	logFailure     []string
	bankFailure    []string
	bankMessage    []string
	reversals      []string
}

func (f *fakeDB) CreateInitiated(ctx context.Context, p nexusdb.InitiatedPayment) (nexusdb.CreateResult, error) {
	return nexusdb.CreateResult{ID: uuid.New()}, nil
}
func (f *fakeDB) SubmissionSuccess(ctx context.Context, id uuid.UUID, at time.Time, orderID string) error {
	return nil
}
func (f *fakeDB) SubmissionFailure(ctx context.Context, id uuid.UUID, at time.Time, transient bool, msg string) error {
	return nil
}
func (f *fakeDB) BankMessage(ctx context.Context, requestUID, msg string) error {
	f.bankMessage = append(f.bankMessage, requestUID)
	return nil
}
func (f *fakeDB) BankFailure(ctx context.Context, requestUID, msg string) error {
	f.bankFailure = append(f.bankFailure, requestUID)
	return nil
}
func (f *fakeDB) Reversal(ctx context.Context, requestUID, msg string) error {
	f.reversals = append(f.reversals, requestUID)
	return nil
}
func (f *fakeDB) LogSuccess(ctx context.Context, orderID string) (*nexusdb.LogResolution, error) {
	f.logSuccess = append(f.logSuccess, orderID)
	return &nexusdb.LogResolution{RequestUID: "REQ-" + orderID}, nil
}
func (f *fakeDB) LogFailure(ctx context.Context, orderID string) (*nexusdb.LogResolution, error) {
	f.logFailure = append(f.logFailure, orderID)
	return &nexusdb.LogResolution{RequestUID: "REQ-" + orderID}, nil
}
func (f *fakeDB) Submittable(ctx context.Context, currency string) ([]nexusdb.InitiatedPayment, error) {
	return nil, nil
}
func (f *fakeDB) RegisterOutgoing(ctx context.Context, p nexusdb.OutgoingPayment) (nexusdb.RegisterResult, error) {
	f.outgoingCalls = append(f.outgoingCalls, p)
	return nexusdb.RegisterResult{ID: uuid.New(), New: true}, nil
}
func (f *fakeDB) RegisterIncomingAndTalerable(ctx context.Context, p nexusdb.IncomingPayment, reservePub string) (nexusdb.IncomingResult, error) {
	f.talerableCalls = append(f.talerableCalls, p)
	return nexusdb.IncomingResult{ID: uuid.New(), New: true}, nil
}
func (f *fakeDB) RegisterIncomingAndBounce(ctx context.Context, p nexusdb.IncomingPayment, bounceAmount amount.Amount, now time.Time) (nexusdb.IncomingResult, error) {
	f.bounceCalls = append(f.bounceCalls, p)
	return nexusdb.IncomingResult{ID: uuid.New(), New: true}, nil
}
func (f *fakeDB) ListIncoming(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]nexusdb.IncomingPayment, error) {
	return nil, nil
}
func (f *fakeDB) ListOutgoing(ctx context.Context, currency string, afterID *uuid.UUID, limit int) ([]nexusdb.OutgoingPayment, error) {
	return nil, nil
}

func newOrchestrator(t *testing.T, db nexusdb.Database, kinds []fetch.Kind, keys ebicstransport.Keys) *fetch.Orchestrator {
	t.Helper()
	transport := ebicstransport.NewClient(bankEndpoint, "HOST1", nil)
	hdr := ebicsmsg.Header{HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1", Product: "nexus"}
	return fetch.NewOrchestrator(transport, hdr, keys, db, "CHF", kinds, nil, nil)
}

func TestOrchestrator_TalerableIncomingWithReservePub(t *testing.T) {
	subscriberSig, subscriberEnc, bankAuth := genKeys(t)

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	registerDownloadThenReceipt(t, bankAuth, subscriberEnc, zipArchive(t, "notification.xml", []byte(camt054WithReservePub)))

	db := &fakeDB{}
	keys := ebicstransport.Keys{SignaturePrivate: subscriberSig, EncryptionPrivate: subscriberEnc, BankAuthPublic: &bankAuth.PublicKey}
	o := newOrchestrator(t, db, []fetch.Kind{fetch.KindNotification}, keys)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, db.talerableCalls, 1)
	assert.Equal(t, "BANKREF1", db.talerableCalls[0].BankID)
	require.NotNil(t, db.talerableCalls[0].ReservePub)
	assert.Equal(t, reservePub, *db.talerableCalls[0].ReservePub)
	assert.Empty(t, db.bounceCalls)
}

func TestOrchestrator_HACFinalPosResolvesOrder(t *testing.T) {
	subscriberSig, subscriberEnc, bankAuth := genKeys(t)

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	registerDownloadThenReceipt(t, bankAuth, subscriberEnc, []byte(hacFinalPos))

	db := &fakeDB{}
	keys := ebicstransport.Keys{SignaturePrivate: subscriberSig, EncryptionPrivate: subscriberEnc, BankAuthPublic: &bankAuth.PublicKey}
	o := newOrchestrator(t, db, []fetch.Kind{fetch.KindAcknowledgement}, keys)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, db.logSuccess, 1)
	assert.Equal(t, "ORDER123", db.logSuccess[0])
}

func TestOrchestrator_ReachabilityFailureAbortsTickImmediately(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", bankEndpoint, httpmock.NewErrorResponder(assert.AnError))

	db := &fakeDB{}
	subscriberSig, subscriberEnc, bankAuth := genKeys(t)
	keys := ebicstransport.Keys{SignaturePrivate: subscriberSig, EncryptionPrivate: subscriberEnc, BankAuthPublic: &bankAuth.PublicKey}
	o := newOrchestrator(t, db, []fetch.Kind{fetch.KindNotification, fetch.KindStatus}, keys)

	result, err := o.Run(context.Background())
	require.Error(t, err)
	var transportErr *ebicstransport.Error
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, ebicstransport.ClassReachability, transportErr.Class)
	require.Len(t, result.Kinds, 1, "the second kind must never be attempted once the first aborts the tick")
}

func TestOrchestrator_EbicsPermanentErrorAbortsOnlyThatKind(t *testing.T) {
	subscriberSig, subscriberEnc, bankAuth := genKeys(t)
	wrongKey, err := ebicscrypto.GenerateKey(2048)
	require.NoError(t, err)

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	registerDownloadThenReceipt(t, bankAuth, subscriberEnc, []byte(hacFinalPos))

	db := &fakeDB{}
	keys := ebicstransport.Keys{SignaturePrivate: subscriberSig, EncryptionPrivate: subscriberEnc, BankAuthPublic: &wrongKey.PublicKey}
	o := newOrchestrator(t, db, []fetch.Kind{fetch.KindAcknowledgement}, keys)

	result, err := o.Run(context.Background())
	require.NoError(t, err, "an ebics-permanent error aborts the kind, not the tick")
	require.Len(t, result.Kinds, 1)
	assert.True(t, result.Kinds[0].Aborted)
	assert.Error(t, result.Kinds[0].Err)
	assert.False(t, result.Success)
	assert.Empty(t, db.logSuccess)
}
