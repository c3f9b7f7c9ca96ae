package ebicscrypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"
)

// GenerateKey generates a new RSA private key of the given bit size (the
// three EBICS subscriber keys — signature, encryption, authentication — are
// all 2048-bit).
func GenerateKey(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generate %d-bit key: %v", ErrInvalidKey, bits, err)
	}
	return key, nil
}

// LoadPrivateKey parses a DER-encoded PKCS#1 RSA private key.
func LoadPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// LoadPublicKey parses a DER-encoded PKCS#1 RSA public key.
func LoadPublicKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// PublicFromComponents reconstructs an RSA public key from the raw modulus
// and exponent bytes carried in an EBICS key-management order data block.
func PublicFromComponents(modulus, exponent []byte) (*rsa.PublicKey, error) {
	if len(modulus) == 0 || len(exponent) == 0 {
		return nil, fmt.Errorf("%w: empty modulus or exponent", ErrInvalidKey)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(new(big.Int).SetBytes(exponent).Int64()),
	}, nil
}

// MarshalPrivateKey renders a private key as PKCS#1 DER, the form persisted
// (after Base32-Crockford encoding) in the client key file.
func MarshalPrivateKey(key *rsa.PrivateKey) []byte {
	return x509.MarshalPKCS1PrivateKey(key)
}

// MarshalPublicKey renders a public key as PKCS#1 DER, the form persisted in
// the bank key file.
func MarshalPublicKey(key *rsa.PublicKey) []byte {
	return x509.MarshalPKCS1PublicKey(key)
}
