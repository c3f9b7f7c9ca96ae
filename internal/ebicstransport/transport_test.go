package ebicstransport_test

import (
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

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/ebicscrypto"
	"nexus/internal/ebicsmsg"
	"nexus/internal/ebicstransport"
	"nexus/internal/ebicsxml"
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

// bankResponse builds a minimal signed EBICS response envelope carrying the
// given technical return code and an optional OrderData/DataEncryptionInfo
// payload, signed with the bank's own key so the client's signature
// verification gate passes.
func bankResponse(t *testing.T, bankAuthKey *rsa.PrivateKey, transactionID, returnCode string, ciphertext, wrappedKey []byte) []byte {
	t.Helper()
	b := ebicsxml.NewBuilder("ebicsResponse")
	b.El("header").Attr("authenticate", "true")
	header := b.Current()
	b.At(header).El("static/TransactionID").Text(transactionID)
	b.At(header).El("mutable/TransactionPhase").Text("Initialisation")
	b.At(header).El("mutable/ReturnCode").Text(returnCode)
	b.At(header).El("AuthSignature")

	if ciphertext != nil {
		b.At(b.Root()).El("body/DataTransfer/DataEncryptionInfo/TransactionKey").Text(base64.StdEncoding.EncodeToString(wrappedKey))
		b.At(b.Root()).El("body/DataTransfer/OrderData").Text(base64.StdEncoding.EncodeToString(ciphertext))
		b.At(b.Root()).El("body/ReturnCode").Text(returnCode)
	} else {
		b.At(b.Root()).El("body/ReturnCode").Text(returnCode)
	}

	root := b.Build()
	require.NoError(t, ebicsxml.Sign(root, "header/AuthSignature", bankAuthKey, ebicscrypto.SignA006))
	return ebicsxml.Marshal(root)
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

func TestDownload_SingleSegmentRoundTrip(t *testing.T) {
	subscriberSig, subscriberEnc, bankAuth := genKeys(t)

	document := []byte("<Document><Dummy/></Document>")

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	callCount := 0
	httpmock.RegisterResponder("POST", bankEndpoint, func(req *http.Request) (*http.Response, error) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		callCount++
		if strings.Contains(string(raw), "Receipt") {
			return httpmock.NewStringResponse(200, string(bankResponse(t, bankAuth, "TESTTX1", "000000", nil, nil))), nil
		}
		compressedDoc := zlibCompress(t, document)
		ct, wk, err := ebicscrypto.EncryptE002(compressedDoc, &subscriberEnc.PublicKey)
		require.NoError(t, err)
		return httpmock.NewStringResponse(200, string(bankResponse(t, bankAuth, "TESTTX1", "000000", ct, wk))), nil
	})

	client := ebicstransport.NewClient(bankEndpoint, "HOST1", nil)
	hdr := ebicsmsg.Header{HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1", Product: "nexus"}
	bt := ebicsmsg.BTDescriptor{Service: "REP", Scope: "CH", Container: "ZIP", MessageName: "camt.054", MessageVersion: "08"}
	keys := ebicstransport.Keys{
		SignaturePrivate:  subscriberSig,
		EncryptionPrivate: subscriberEnc,
		BankAuthPublic:    &bankAuth.PublicKey,
	}

	got, err := client.Download(context.Background(), hdr, bt, time.Time{}, keys)
	require.NoError(t, err)
	assert.Equal(t, document, got)
	assert.GreaterOrEqual(t, callCount, 2)
}

func TestDownload_NoDataAvailableIsNotAnError(t *testing.T) {
	_, _, bankAuth := genKeys(t)
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", bankEndpoint, func(req *http.Request) (*http.Response, error) {
		return httpmock.NewStringResponse(200, string(bankResponse(t, bankAuth, "TX2", "090005", nil, nil))), nil
	})

	subscriberSig, err := ebicscrypto.GenerateKey(2048)
	require.NoError(t, err)
	client := ebicstransport.NewClient(bankEndpoint, "HOST1", nil)
	hdr := ebicsmsg.Header{HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1", Product: "nexus"}
	bt := ebicsmsg.BTDescriptor{Service: "REP", Scope: "CH", Container: "ZIP", MessageName: "camt.054", MessageVersion: "08"}
	keys := ebicstransport.Keys{SignaturePrivate: subscriberSig, BankAuthPublic: &bankAuth.PublicKey}

	doc, err := client.Download(context.Background(), hdr, bt, time.Time{}, keys)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDownload_BadSignatureIsPermanentError(t *testing.T) {
	_, _, bankAuth := genKeys(t)
	wrongKey, err := ebicscrypto.GenerateKey(2048)
	require.NoError(t, err)

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder("POST", bankEndpoint, func(req *http.Request) (*http.Response, error) {
		return httpmock.NewStringResponse(200, string(bankResponse(t, bankAuth, "TX3", "000000", nil, nil))), nil
	})

	subscriberSig, err := ebicscrypto.GenerateKey(2048)
	require.NoError(t, err)
	client := ebicstransport.NewClient(bankEndpoint, "HOST1", nil)
	hdr := ebicsmsg.Header{HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1", Product: "nexus"}
	bt := ebicsmsg.BTDescriptor{Service: "REP", Scope: "CH", Container: "ZIP", MessageName: "camt.054", MessageVersion: "08"}
	keys := ebicstransport.Keys{SignaturePrivate: subscriberSig, BankAuthPublic: &wrongKey.PublicKey}

	_, err = client.Download(context.Background(), hdr, bt, time.Time{}, keys)
	require.Error(t, err)
	var transportErr *ebicstransport.Error
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, ebicstransport.ClassPermanent, transportErr.Class)
}

func TestUpload_RoundTripReturnsOrderID(t *testing.T) {
	subscriberSig, subscriberEnc, bankAuth := genKeys(t)

	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", bankEndpoint, func(req *http.Request) (*http.Response, error) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(string(raw), "Receipt") {
			return httpmock.NewStringResponse(200, string(bankResponse(t, bankAuth, "UPLOADTX1", "000000", nil, nil))), nil
		}
		return httpmock.NewStringResponse(200, string(bankResponseWithOrderID(t, bankAuth, "UPLOADTX1", "000000", "ORDER42"))), nil
	})

	client := ebicstransport.NewClient(bankEndpoint, "HOST1", nil)
	hdr := ebicsmsg.Header{HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1", Product: "nexus"}
	bt := ebicsmsg.BTDescriptor{Service: "PMT", Scope: "CH", MessageName: "pain.001", MessageVersion: "09"}
	keys := ebicstransport.Keys{
		SignaturePrivate:  subscriberSig,
		EncryptionPrivate: subscriberEnc,
		BankAuthPublic:    &bankAuth.PublicKey,
		BankEncryptPublic: &subscriberEnc.PublicKey,
	}

	orderID, err := client.Upload(context.Background(), hdr, bt, "pain001.xml", []byte("<Document/>"), keys)
	require.NoError(t, err)
	assert.Equal(t, "ORDER42", orderID)
}

func bankResponseWithOrderID(t *testing.T, bankAuthKey *rsa.PrivateKey, transactionID, returnCode, orderID string) []byte {
	t.Helper()
	b := ebicsxml.NewBuilder("ebicsResponse")
	b.El("header").Attr("authenticate", "true")
	header := b.Current()
	b.At(header).El("static/TransactionID").Text(transactionID)
	b.At(header).El("mutable/TransactionPhase").Text("Initialisation")
	b.At(header).El("mutable/ReturnCode").Text(returnCode)
	b.At(header).El("mutable/OrderID").Text(orderID)
	b.At(header).El("AuthSignature")
	b.At(b.Root()).El("body/ReturnCode").Text(returnCode)

	root := b.Build()
	require.NoError(t, ebicsxml.Sign(root, "header/AuthSignature", bankAuthKey, ebicscrypto.SignA006))
	return ebicsxml.Marshal(root)
}
