// Package bootstrap wires the small pile of setup steps nexusd and
// nexus-cli both need before they can talk to a bank: opening the key file
// store behind the OS keyring and assembling the four-keypair bundle
// ebicstransport needs once key exchange has produced bank keys.
package bootstrap

import (
	"fmt"

	"nexus/internal/config"
	"nexus/internal/ebicstransport"
	"nexus/internal/keystore"
)

// OpenKeystore builds a keystore.Store for nexusCfg's key file paths,
// protected by a passphrase held in the OS-native secret store.
func OpenKeystore(nexusCfg *config.NexusConfig) (*keystore.Store, error) {
	ring, err := keystore.OpenPassphraseKeyring()
	if err != nil {
		return nil, err
	}
	passphrase, err := keystore.LoadOrCreatePassphrase(ring)
	if err != nil {
		return nil, err
	}
	cipher := keystore.PassphraseCipher{Passphrase: passphrase}
	return keystore.New(nexusCfg.Keys.ClientKeysPath, nexusCfg.Keys.BankKeysPath, cipher), nil
}

// LoadTransportKeys assembles ebicstransport.Keys from the on-disk key
// files, failing loudly rather than posting with a partial key set if key
// exchange has not yet produced bank keys.
func LoadTransportKeys(store *keystore.Store) (ebicstransport.Keys, error) {
	client, err := store.LoadClientKeys()
	if err != nil {
		return ebicstransport.Keys{}, fmt.Errorf("bootstrap: load client keys: %w", err)
	}
	bank, err := store.LoadBankKeys()
	if err != nil {
		return ebicstransport.Keys{}, fmt.Errorf("bootstrap: load bank keys: %w", err)
	}

	sigKey, err := keystore.DecodePrivateKey(client.SignaturePrivateKey)
	if err != nil {
		return ebicstransport.Keys{}, fmt.Errorf("bootstrap: decode signature key: %w", err)
	}
	encKey, err := keystore.DecodePrivateKey(client.EncryptionPrivateKey)
	if err != nil {
		return ebicstransport.Keys{}, fmt.Errorf("bootstrap: decode encryption key: %w", err)
	}
	bankAuth, err := keystore.DecodePublicKey(bank.BankAuthenticationPublicKey)
	if err != nil {
		return ebicstransport.Keys{}, fmt.Errorf("bootstrap: decode bank auth key: %w", err)
	}
	bankEnc, err := keystore.DecodePublicKey(bank.BankEncryptionPublicKey)
	if err != nil {
		return ebicstransport.Keys{}, fmt.Errorf("bootstrap: decode bank encryption key: %w", err)
	}

	return ebicstransport.Keys{
		SignaturePrivate:  sigKey,
		EncryptionPrivate: encKey,
		BankAuthPublic:    bankAuth,
		BankEncryptPublic: bankEnc,
	}, nil
}
