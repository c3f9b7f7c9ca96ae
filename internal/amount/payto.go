package amount

import (
	"fmt"
	"net/url"
	"strings"
)

// Payto is a parsed payto://iban/... URI (RFC 8905) identifying a bank
// account, as used for both the host's own account and counterparty
// accounts named in pain.001 / camt.054 documents.
type Payto struct {
	BIC          string // may be empty: some hosts omit it
	IBAN         string
	ReceiverName string
}

// ParsePayto parses a "payto://iban/BIC/IBAN?receiver-name=..." URI. The BIC
// segment is optional ("payto://iban/IBAN?...") and, when present, is taken
// as-is: some hosts put a short non-standard routing code in that slot
// rather than a strict BIC8/BIC11, so this only rejects an empty segment.
func ParsePayto(raw string) (Payto, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Payto{}, fmt.Errorf("payto %q: %w", raw, err)
	}
	if u.Scheme != "payto" {
		return Payto{}, fmt.Errorf("payto %q: scheme must be \"payto\"", raw)
	}
	if u.Host != "iban" {
		return Payto{}, fmt.Errorf("payto %q: only the iban authority is supported", raw)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	var bic, iban string
	switch len(segments) {
	case 1:
		iban = segments[0]
	case 2:
		bic, iban = segments[0], segments[1]
	default:
		return Payto{}, fmt.Errorf("payto %q: expected /IBAN or /BIC/IBAN", raw)
	}
	if iban == "" {
		return Payto{}, fmt.Errorf("payto %q: empty IBAN", raw)
	}
	return Payto{
		BIC:          strings.ToUpper(bic),
		IBAN:         strings.ToUpper(iban),
		ReceiverName: u.Query().Get("receiver-name"),
	}, nil
}

// String renders the canonical form "payto://iban/IBAN": neither the BIC
// segment nor the receiver-name query is included, since only the IBAN
// identifies the account canonically.
func (p Payto) String() string {
	return "payto://iban/" + p.IBAN
}
