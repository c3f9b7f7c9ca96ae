package ebicscrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

const aesKeySize = 16 // AES-128

// EncryptE002 implements the E002 hybrid scheme (§4.1): a random AES-128
// key encrypts plaintext under CBC with a zero IV and PKCS#7 padding; the
// AES key is then wrapped with RSA-OAEP under the bank's encryption public
// key. Returns the ciphertext and the wrapped key.
func EncryptE002(plaintext []byte, bankEncryptionKey *rsa.PublicKey) (ciphertext, wrappedKey []byte, err error) {
	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("%w: generate transaction key: %v", ErrInvalidKey, err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: new AES cipher: %v", ErrInvalidKey, err)
	}
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(ciphertext, padded)

	wrappedKey, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, bankEncryptionKey, key, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: wrap transaction key: %v", ErrInvalidKey, err)
	}
	return ciphertext, wrappedKey, nil
}

// DecryptE002 is the symmetric inverse of EncryptE002, unwrapping the
// transaction key with the subscriber's own encryption private key.
func DecryptE002(ciphertext, wrappedKey []byte, priv *rsa.PrivateKey) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap transaction key: %v", ErrDecryptionFailed, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: new AES cipher: %v", ErrDecryptionFailed, err)
	}
	if len(ciphertext)%aes.BlockSize != 0 || len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrDecryptionFailed)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(plain, ciphertext)
	return pkcs7Unpad(plain)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecryptionFailed)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, fmt.Errorf("%w: invalid PKCS#7 padding", ErrDecryptionFailed)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid PKCS#7 padding", ErrDecryptionFailed)
		}
	}
	return data[:len(data)-padLen], nil
}
