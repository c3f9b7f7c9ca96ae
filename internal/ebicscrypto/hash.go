package ebicscrypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
)

// PublicHash computes the EBICS public-key hash (§4.1): SHA-256 of the
// ASCII string formed by the exponent's hex byte pairs, a single space,
// then the modulus's hex byte pairs — each component rendered with its
// bytes space-separated and leading zero bytes stripped. This is the value
// a human compares against the bank's published key letter.
func PublicHash(pub *rsa.PublicKey) ([32]byte, error) {
	if pub == nil || pub.N == nil {
		return [32]byte{}, fmt.Errorf("%w: nil public key", ErrInvalidKey)
	}
	exponent := stripLeadingZeros(big.NewInt(int64(pub.E)).Bytes())
	modulus := stripLeadingZeros(pub.N.Bytes())

	s := hexSpaced(exponent) + " " + hexSpaced(modulus)
	return sha256.Sum256([]byte(s)), nil
}

func stripLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

func hexSpaced(b []byte) string {
	parts := make([]string, len(b))
	for i, by := range b {
		parts[i] = fmt.Sprintf("%02X", by)
	}
	return strings.Join(parts, " ")
}
