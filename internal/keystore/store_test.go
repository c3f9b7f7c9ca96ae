package keystore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/ebicscrypto"
	"nexus/internal/keystore"
)

func TestStore_SaveAndLoadClientKeys(t *testing.T) {
	dir := t.TempDir()
	s := keystore.New(filepath.Join(dir, "client-keys.json"), filepath.Join(dir, "bank-keys.json"), keystore.PassphraseCipher{Passphrase: "correct horse battery staple"})

	sigKey, err := ebicscrypto.GenerateKey(2048)
	require.NoError(t, err)

	want := &keystore.ClientKeys{
		SignaturePrivateKey: keystore.EncodePrivateKey(sigKey),
		SubmittedINI:        true,
	}
	require.NoError(t, s.SaveClientKeys(want))

	got, err := s.LoadClientKeys()
	require.NoError(t, err)
	assert.Equal(t, want.SignaturePrivateKey, got.SignaturePrivateKey)
	assert.True(t, got.SubmittedINI)
	assert.False(t, got.SubmittedHIA)

	decoded, err := keystore.DecodePrivateKey(got.SignaturePrivateKey)
	require.NoError(t, err)
	assert.Equal(t, sigKey.N, decoded.N)
}

func TestStore_LoadMissingFileReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	s := keystore.New(filepath.Join(dir, "client-keys.json"), filepath.Join(dir, "bank-keys.json"), keystore.PassphraseCipher{Passphrase: "x"})

	_, err := s.LoadClientKeys()
	assert.ErrorIs(t, err, keystore.ErrNotFound)
}

func TestStore_WrongPassphraseFailsToDecrypt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bank-keys.json")
	s := keystore.New(filepath.Join(dir, "client-keys.json"), path, keystore.PassphraseCipher{Passphrase: "right"})
	require.NoError(t, s.SaveBankKeys(&keystore.BankKeys{Accepted: true}))

	wrong := keystore.New(filepath.Join(dir, "client-keys.json"), path, keystore.PassphraseCipher{Passphrase: "wrong"})
	_, err := wrong.LoadBankKeys()
	assert.Error(t, err)
}

func TestEncodeDecodePublicKeyRoundTrip(t *testing.T) {
	key, err := ebicscrypto.GenerateKey(2048)
	require.NoError(t, err)

	encoded := keystore.EncodePublicKey(&key.PublicKey)
	decoded, err := keystore.DecodePublicKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, decoded.N)
	assert.Equal(t, key.PublicKey.E, decoded.E)
}
