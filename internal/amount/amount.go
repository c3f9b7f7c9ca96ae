// Package amount implements the Amount and Payto primitives from the data
// model (§3): a fixed-point currency amount with 8 fractional digits, and
// the payto:// URI used to identify bank accounts throughout the core.
package amount

import (
	"fmt"
	"strconv"
	"strings"
)

// fracScale is 10^8: frac holds 8 decimal digits.
const fracScale = 100_000_000

// Amount is a currency value represented as an integer part (Value) and an
// 8-digit fractional part (Frac), matching the wire precision used by both
// ISO 20022 documents and the EBICS-side ledger. Frac is always in
// [0, fracScale).
type Amount struct {
	Value    uint64
	Frac     uint32
	Currency string
}

// Parse parses the "CUR:value[.frac]" form used in configuration and the
// Wire Gateway API (scenario 1 of §8). Up to 8 fractional digits are
// accepted; inputs with more are rejected rather than silently truncated.
func Parse(s string) (Amount, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Amount{}, fmt.Errorf("amount %q: missing currency prefix", s)
	}
	currency, numeric := parts[0], parts[1]
	if err := validateCurrency(currency); err != nil {
		return Amount{}, fmt.Errorf("amount %q: %w", s, err)
	}

	intPart, fracPart, hasFrac := strings.Cut(numeric, ".")
	value, err := strconv.ParseUint(intPart, 10, 63)
	if err != nil {
		return Amount{}, fmt.Errorf("amount %q: invalid integer part: %w", s, err)
	}

	var frac uint32
	if hasFrac {
		if len(fracPart) > 8 {
			return Amount{}, fmt.Errorf("amount %q: fractional part has more than 8 digits", s)
		}
		fracVal, err := strconv.ParseUint(fracPart+strings.Repeat("0", 8-len(fracPart)), 10, 32)
		if err != nil {
			return Amount{}, fmt.Errorf("amount %q: invalid fractional part: %w", s, err)
		}
		frac = uint32(fracVal)
	}

	return Amount{Value: value, Frac: frac, Currency: currency}, nil
}

// validateCurrency enforces the ISO 4217 alphabetic-code shape (3 letters).
// This is deliberately not exhaustive IBAN/currency-list validation per the
// Non-goals in §1 — it only rejects obviously malformed currency tokens
// such as the 13-character example in scenario 1 of §8.
func validateCurrency(c string) error {
	if len(c) != 3 {
		return fmt.Errorf("currency %q must be a 3-letter ISO 4217 code", c)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("currency %q must be uppercase letters", c)
		}
	}
	return nil
}

// String renders the wire form: "value[.frac]" truncated to at most 8
// significant fractional digits, i.e. trailing zeros dropped, no currency
// suffix (callers that need the currency print it separately, e.g. as an
// XML attribute).
func (a Amount) String() string {
	if a.Frac == 0 {
		return strconv.FormatUint(a.Value, 10)
	}
	fracStr := fmt.Sprintf("%08d", a.Frac)
	fracStr = strings.TrimRight(fracStr, "0")
	return fmt.Sprintf("%d.%s", a.Value, fracStr)
}

// BankString renders the value padded to at most 2 fractional digits, the
// precision most core banking hosts accept on pain.001 InstdAmt (§3: "padded
// to at most 2 for bank output"). Sub-cent amounts cannot be rendered this
// way; ToCents reports that case.
func (a Amount) BankString() (string, error) {
	cents, err := a.ToCents()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%02d", a.Value, cents), nil
}

// ToCents returns the 2-digit cent value, failing if the amount carries a
// sub-cent remainder that would be lost — per §3 "Parsing rejects sub-cent
// values on output".
func (a Amount) ToCents() (uint32, error) {
	cents := a.Frac / 1_000_000
	remainder := a.Frac % 1_000_000
	if remainder != 0 {
		return 0, fmt.Errorf("amount %s has a sub-cent remainder, cannot render for bank output", a.String())
	}
	return cents, nil
}

// Add returns a+b, normalizing any fractional carry into Value. Both
// operands must share a currency.
func Add(a, b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, fmt.Errorf("cannot add %s and %s: currency mismatch", a.Currency, b.Currency)
	}
	frac := a.Frac + b.Frac
	value := a.Value + b.Value
	if frac >= fracScale {
		frac -= fracScale
		value++
	}
	return Amount{Value: value, Frac: frac, Currency: a.Currency}, nil
}

// Equal reports whether two amounts have the same currency and value.
func (a Amount) Equal(b Amount) bool {
	return a.Value == b.Value && a.Frac == b.Frac && a.Currency == b.Currency
}
