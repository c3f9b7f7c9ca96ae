// Package keystore implements the client/bank key file store (C10): two
// JSON documents written atomically (temp file + rename), with private key
// material protected at rest by a passphrase (always available) or,
// optionally, an AWS KMS envelope-encryption backend.
package keystore

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"nexus/internal/ebicscrypto"
)

// ErrNotFound distinguishes a missing key file from a corrupted one (§4.10).
var ErrNotFound = errors.New("keystore: key file not found")

// ClientKeys is the on-disk shape of client-keys.json (§6): the subscriber's
// three private keys, Base32-Crockford of DER, plus the two key-management
// submission flags the C6 state machine persists.
type ClientKeys struct {
	SignaturePrivateKey     string `json:"signature_private_key"`
	EncryptionPrivateKey    string `json:"encryption_private_key"`
	AuthenticationPrivateKey string `json:"authentication_private_key"`
	SubmittedINI            bool   `json:"submitted_ini"`
	SubmittedHIA            bool   `json:"submitted_hia"`
}

// BankKeys is the on-disk shape of bank-keys.json (§6): the bank's two
// public keys plus the C6 "user accepted these hashes" flag.
type BankKeys struct {
	BankEncryptionPublicKey     string `json:"bank_encryption_public_key"`
	BankAuthenticationPublicKey string `json:"bank_authentication_public_key"`
	Accepted                    bool   `json:"accepted"`
}

// Cipher encrypts/decrypts the raw key-file bytes before they touch disk.
// PassphraseCipher and KMSCipher both implement it.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// PassphraseCipher protects key files with PBKDF2+AES-128-GCM (§4.1),
// the always-available backend requiring no cloud dependency.
type PassphraseCipher struct {
	Passphrase string
}

func (c PassphraseCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return ebicscrypto.PassphraseEncrypt(plaintext, c.Passphrase)
}

func (c PassphraseCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return ebicscrypto.PassphraseDecrypt(ciphertext, c.Passphrase)
}

// Store reads and writes the two key files, encrypting their contents with
// a Cipher (§4.10). Writes are atomic: a temp file in the same directory is
// renamed over the target so a crash mid-write never corrupts the existing
// file.
type Store struct {
	clientPath string
	bankPath   string
	cipher     Cipher
}

// New builds a Store over the given file paths and at-rest cipher.
func New(clientPath, bankPath string, cipher Cipher) *Store {
	return &Store{clientPath: clientPath, bankPath: bankPath, cipher: cipher}
}

// LoadClientKeys reads and decrypts client-keys.json. Returns ErrNotFound if
// the file does not exist.
func (s *Store) LoadClientKeys() (*ClientKeys, error) {
	var keys ClientKeys
	if err := s.load(s.clientPath, &keys); err != nil {
		return nil, err
	}
	return &keys, nil
}

// SaveClientKeys atomically writes client-keys.json.
func (s *Store) SaveClientKeys(keys *ClientKeys) error {
	return s.save(s.clientPath, keys)
}

// LoadBankKeys reads and decrypts bank-keys.json. Returns ErrNotFound if the
// file does not exist.
func (s *Store) LoadBankKeys() (*BankKeys, error) {
	var keys BankKeys
	if err := s.load(s.bankPath, &keys); err != nil {
		return nil, err
	}
	return &keys, nil
}

// SaveBankKeys atomically writes bank-keys.json.
func (s *Store) SaveBankKeys(keys *BankKeys) error {
	return s.save(s.bankPath, keys)
}

func (s *Store) load(path string, out interface{}) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("keystore: read %s: %w", path, err)
	}
	plaintext, err := s.cipher.Decrypt(raw)
	if err != nil {
		return fmt.Errorf("keystore: decrypt %s: %w", path, err)
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("keystore: parse %s: %w", path, err)
	}
	return nil
}

func (s *Store) save(path string, in interface{}) error {
	plaintext, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal %s: %w", path, err)
	}
	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("keystore: encrypt %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("keystore: create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(ciphertext); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("keystore: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("keystore: close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("keystore: rename into place %s: %w", path, err)
	}
	return nil
}

// EncodePrivateKey renders a private key in the on-disk Base32-Crockford
// form used by ClientKeys' string fields.
func EncodePrivateKey(key *rsa.PrivateKey) string {
	return ebicscrypto.EncodeCrockford(ebicscrypto.MarshalPrivateKey(key))
}

// DecodePrivateKey is the inverse of EncodePrivateKey.
func DecodePrivateKey(s string) (*rsa.PrivateKey, error) {
	der, err := ebicscrypto.DecodeCrockford(s)
	if err != nil {
		return nil, fmt.Errorf("keystore: decode private key: %w", err)
	}
	return ebicscrypto.LoadPrivateKey(der)
}

// EncodePublicKey renders a public key in the on-disk Base32-Crockford form
// used by BankKeys' string fields.
func EncodePublicKey(key *rsa.PublicKey) string {
	return ebicscrypto.EncodeCrockford(ebicscrypto.MarshalPublicKey(key))
}

// DecodePublicKey is the inverse of EncodePublicKey.
func DecodePublicKey(s string) (*rsa.PublicKey, error) {
	der, err := ebicscrypto.DecodeCrockford(s)
	if err != nil {
		return nil, fmt.Errorf("keystore: decode public key: %w", err)
	}
	return ebicscrypto.LoadPublicKey(der)
}
