package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/99designs/keyring"
)

// passphraseKeyID is the single item the OS keyring stores under: nexus
// keeps one passphrase per key-file directory, not per-subscriber, since a
// single EBICS identity owns both files.
const passphraseKeyID = "nexus-keystore-passphrase"

// OpenPassphraseKeyring opens the OS-native secret store (Secret Service,
// KWallet, Keychain, wincred) the same way the teacher's wallet package
// does, scoped to nexus's own service name.
func OpenPassphraseKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              "nexus",
		KeychainName:             "nexus",
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: open OS keyring: %w", err)
	}
	return ring, nil
}

// LoadOrCreatePassphrase fetches the stored passphrase, generating and
// persisting a new random one on first use.
func LoadOrCreatePassphrase(ring keyring.Keyring) (string, error) {
	item, err := ring.Get(passphraseKeyID)
	if err == nil {
		return string(item.Data), nil
	}

	passphrase, genErr := randomPassphrase()
	if genErr != nil {
		return "", fmt.Errorf("keystore: generate passphrase: %w", genErr)
	}
	if setErr := ring.Set(keyring.Item{Key: passphraseKeyID, Data: []byte(passphrase)}); setErr != nil {
		return "", fmt.Errorf("keystore: store passphrase in OS keyring: %w", setErr)
	}
	return passphrase, nil
}

func randomPassphrase() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
