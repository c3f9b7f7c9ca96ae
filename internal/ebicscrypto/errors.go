// Package ebicscrypto implements the cryptographic primitives EBICS layers
// on top of: RSA key management, the E002 key-transport scheme, A006
// signing, the EBICS public-key hash, Base32-Crockford encoding, and
// passphrase-based at-rest protection of private keys.
package ebicscrypto

import "errors"

// Failure modes named in the component design: all are fatal for the
// operation that requested them, never retried by the caller.
var (
	ErrInvalidKey          = errors.New("ebicscrypto: invalid key")
	ErrDecryptionFailed    = errors.New("ebicscrypto: decryption failed")
	ErrVerificationFailed  = errors.New("ebicscrypto: signature verification failed")
)
