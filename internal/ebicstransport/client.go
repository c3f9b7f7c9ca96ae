package ebicstransport

import (
	"bytes"
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"time"

	"nexus/internal/ebicscrypto"
	"nexus/internal/ebicsxml"
)

// segmentSize is the maximum size, in bytes, of an OrderData segment carried
// in a single Transfer request (§4.5): payloads larger than this are split
// across multiple phase-2 requests.
const segmentSize = 1 << 20

// Keys bundles the four RSA keys a subscriber needs to converse with the
// bank: its own signature and encryption private keys, and the bank's
// authentication/encryption public keys (once known, post key-exchange).
type Keys struct {
	SignaturePrivate   *rsa.PrivateKey
	EncryptionPrivate  *rsa.PrivateKey
	BankAuthPublic     *rsa.PublicKey
	BankEncryptPublic  *rsa.PublicKey
}

// Client drives the EBICS H005 request/response cycle over HTTP (§4.5),
// classifying failures as reachability or ebics-permanent so callers can
// decide whether to retry.
type Client struct {
	httpClient *http.Client
	endpoint   string
	hostID     string
}

// NewClient builds a transport client against the bank's EBICS endpoint URL.
// A nil httpClient defaults to http.DefaultClient's timeout-free behavior
// replaced with a conservative fixed timeout, since the bank endpoint is an
// external dependency that must never hang the worker indefinitely.
func NewClient(endpoint, hostID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{httpClient: httpClient, endpoint: endpoint, hostID: hostID}
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, reachabilityError(err.Error())
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, reachabilityError(err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, reachabilityError(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, reachabilityError(fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode))
	}
	return raw, nil
}

// PostKeyManagement sends an INI/HIA/HPB request and returns the raw
// response envelope unverified: the bank's authentication key isn't trusted
// yet during key exchange, so signature verification only starts once HPB
// has delivered it and the operator has accepted it (§4.6).
func (c *Client) PostKeyManagement(ctx context.Context, body []byte) ([]byte, error) {
	return c.post(ctx, body)
}

// verifiedResponse parses the response envelope, verifies its enveloped
// signature against the bank's authentication key before inspecting any
// return code (§4.5: signature verification gates everything else), and
// classifies a non-success technical return code as permanent.
func verifiedResponse(raw []byte, bankAuthPublic *rsa.PublicKey) (*ebicsxml.Destructor, error) {
	root, err := ebicsxml.Parse(raw)
	if err != nil {
		return nil, permanentError("", fmt.Sprintf("malformed response envelope: %v", err))
	}
	if bankAuthPublic == nil {
		return nil, permanentError("", "no bank authentication key to verify the response against")
	}
	if err := ebicsxml.Verify(root, "header/AuthSignature", bankAuthPublic, ebicscrypto.VerifyA006); err != nil {
		return nil, permanentError("", fmt.Sprintf("response signature verification failed: %v", err))
	}
	return ebicsxml.NewDestructor(root), nil
}

func technicalReturnCode(d *ebicsxml.Destructor) (string, error) {
	header, err := d.One("header")
	if err != nil {
		return "", permanentError("", "response missing header")
	}
	mutable, err := header.One("mutable")
	if err != nil {
		return "", permanentError("", "response missing header/mutable")
	}
	code, err := mutable.One("ReturnCode")
	if err != nil {
		return "", permanentError("", "response missing return code")
	}
	return code.Text(), nil
}

const returnCodeOK = "000000"

// classifyReturnCode maps a non-OK EBICS technical return code to a
// transport error, special-casing EBICS_NO_DOWNLOAD_DATA_AVAILABLE so
// callers can tell "nothing to fetch" apart from a real failure.
func classifyReturnCode(code string) error {
	if code == returnCodeOK {
		return nil
	}
	if code == "090005" { // EBICS_NO_DOWNLOAD_DATA_AVAILABLE
		return ErrNoDownloadData
	}
	return permanentError(code, "bank rejected request with return code "+code)
}

