package ebicscrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 200_000
	saltSize         = 16
)

// PassphraseEncrypt protects a private-key blob at rest (§4.1, C10): a
// PBKDF2-SHA256-derived AES-128 key, used with a random salt and a random
// GCM nonce so repeated encryptions of the same blob are unlinkable. The
// output layout is salt || nonce || ciphertext(+tag).
func PassphraseEncrypt(blob []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: generate salt: %v", ErrInvalidKey, err)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, aesKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: new AES cipher: %v", ErrInvalidKey, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: new GCM: %v", ErrInvalidKey, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", ErrInvalidKey, err)
	}

	ciphertext := gcm.Seal(nil, nonce, blob, nil)
	out := make([]byte, 0, saltSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// PassphraseDecrypt is the inverse of PassphraseEncrypt.
func PassphraseDecrypt(data []byte, passphrase string) ([]byte, error) {
	if len(data) < saltSize+12 {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	salt := data[:saltSize]
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, aesKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: new AES cipher: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: new GCM: %v", ErrDecryptionFailed, err)
	}
	nonceSize := gcm.NonceSize()
	rest := data[saltSize:]
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plain, nil
}
