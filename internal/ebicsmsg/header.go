// Package ebicsmsg assembles and parses the EBICS 3 (H005) envelopes (§4.4):
// the key-management order types (INI/HIA/HPB) and the BTD/BTU
// business-transaction envelopes, built on ebicsxml.
package ebicsmsg

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// BTDescriptor names an EBICS 3 business-transaction service (§4.4): the
// {service, scope, container, message-name, message-version, option?}
// tuple carried in OrderDetails for both download (BTD) and upload (BTU).
type BTDescriptor struct {
	Service        string
	Scope          string
	Container      string
	MessageName    string
	MessageVersion string
	Option         string // optional
}

// Header is the common H005 request header: HostID, Nonce, Timestamp,
// PartnerID, UserID, Product.
type Header struct {
	HostID    string
	PartnerID string
	UserID    string
	SystemID  string // optional
	Product   string
}

func randomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ebicsmsg: generate nonce: %w", err)
	}
	return fmt.Sprintf("%X", b), nil
}

func timestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339)
}

func base64Block(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("ebicsmsg: invalid base64 block: %w", err)
	}
	return data, nil
}
