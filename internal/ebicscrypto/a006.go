package ebicscrypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// SignA006 signs the SHA-256 digest of data with the EBICS A006 scheme
// (RSASSA-PSS with SHA-256, per the EBICS specification's bank-letter
// addendum).
func SignA006(data []byte, priv *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sign A006: %v", ErrInvalidKey, err)
	}
	return sig, nil
}

// VerifyA006 is the inverse of SignA006.
func VerifyA006(data, sig []byte, pub *rsa.PublicKey) error {
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	}); err != nil {
		return fmt.Errorf("%w: verify A006: %v", ErrVerificationFailed, err)
	}
	return nil
}
