// Package keyexchange drives the EBICS subscriber key-management state
// machine (§4.6): new → ini_sent → hia_sent → hpb_received →
// bank_keys_pending_accept → operational.
package keyexchange

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"nexus/internal/ebicscrypto"
	"nexus/internal/ebicsmsg"
	"nexus/internal/ebicstransport"
	"nexus/internal/keystore"
)

// State is a subscriber identity's position in the key-exchange machine.
type State string

const (
	StateNew                   State = "new"
	StateINISent               State = "ini_sent"
	StateHIASent               State = "hia_sent"
	StateHPBReceived           State = "hpb_received"
	StateBankKeysPendingAccept State = "bank_keys_pending_accept"
	StateOperational           State = "operational"
)

// ErrBankRejected is returned when the bank answers a key-management
// request with a non-OK return code: the transition aborts and leaves state
// unchanged, per §4.6.
var ErrBankRejected = errors.New("keyexchange: bank rejected key-management request")

// Options models the CLI flags that steer the state machine (§4.6's
// supplemented feature): ForceResubmission replays from new without
// deleting keys, AutoAccept skips the interactive bank-key-hash review.
type Options struct {
	ForceResubmission bool
	AutoAccept        bool
}

// Machine drives one subscriber identity's transitions, persisting through
// a keystore.Store and talking EBICS through an ebicstransport.Client.
type Machine struct {
	store     *keystore.Store
	transport *ebicstransport.Client
	header    ebicsmsg.Header
}

// NewMachine builds a key-exchange state machine over the given key file
// store and transport client.
func NewMachine(store *keystore.Store, transport *ebicstransport.Client, header ebicsmsg.Header) *Machine {
	return &Machine{store: store, transport: transport, header: header}
}

// Current inspects the on-disk key files to determine the subscriber's
// current state, since state is not itself persisted — it's derived from
// what has and hasn't been written (§4.6: "atomic with respect to the
// on-disk key files").
func (m *Machine) Current() (State, error) {
	client, err := m.store.LoadClientKeys()
	if errors.Is(err, keystore.ErrNotFound) {
		return StateNew, nil
	}
	if err != nil {
		return "", err
	}
	if !client.SubmittedINI {
		return StateNew, nil
	}
	if !client.SubmittedHIA {
		return StateINISent, nil
	}

	bank, err := m.store.LoadBankKeys()
	if errors.Is(err, keystore.ErrNotFound) {
		return StateHIASent, nil
	}
	if err != nil {
		return "", err
	}
	if !bank.Accepted {
		return StateBankKeysPendingAccept, nil
	}
	return StateOperational, nil
}

// Advance runs every transition the subscriber's current state permits,
// stopping at bank_keys_pending_accept unless opts.AutoAccept is set, or
// restarting from new when opts.ForceResubmission is set.
func (m *Machine) Advance(ctx context.Context, opts Options) (State, error) {
	if opts.ForceResubmission {
		if err := m.resetSubmissionFlags(); err != nil {
			return "", err
		}
	}

	for {
		state, err := m.Current()
		if err != nil {
			return "", err
		}
		switch state {
		case StateNew:
			if err := m.sendINI(ctx); err != nil {
				return state, err
			}
		case StateINISent:
			if err := m.sendHIA(ctx); err != nil {
				return state, err
			}
		case StateHIASent:
			if err := m.sendHPB(ctx); err != nil {
				return state, err
			}
		case StateBankKeysPendingAccept:
			if !opts.AutoAccept {
				return state, nil
			}
			if err := m.AcceptBankKeys(); err != nil {
				return state, err
			}
		case StateOperational:
			return state, nil
		default:
			return state, fmt.Errorf("keyexchange: unknown state %q", state)
		}
	}
}

func (m *Machine) resetSubmissionFlags() error {
	client, err := m.store.LoadClientKeys()
	if errors.Is(err, keystore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	client.SubmittedINI = false
	client.SubmittedHIA = false
	return m.store.SaveClientKeys(client)
}

func (m *Machine) sendINI(ctx context.Context) error {
	client, err := m.loadOrCreateClientKeys()
	if err != nil {
		return err
	}
	sigKey, err := keystore.DecodePrivateKey(client.SignaturePrivateKey)
	if err != nil {
		return err
	}
	req, err := ebicsmsg.BuildINI(m.header, sigKey, time.Now())
	if err != nil {
		return err
	}
	if _, err := m.sendAndCheck(ctx, req, nil); err != nil {
		return err
	}
	client.SubmittedINI = true
	return m.store.SaveClientKeys(client)
}

func (m *Machine) sendHIA(ctx context.Context) error {
	client, err := m.store.LoadClientKeys()
	if err != nil {
		return err
	}
	sigKey, err := keystore.DecodePrivateKey(client.SignaturePrivateKey)
	if err != nil {
		return err
	}
	authKey, err := keystore.DecodePrivateKey(client.AuthenticationPrivateKey)
	if err != nil {
		return err
	}
	encKey, err := keystore.DecodePrivateKey(client.EncryptionPrivateKey)
	if err != nil {
		return err
	}
	req, err := ebicsmsg.BuildHIA(m.header, &authKey.PublicKey, &encKey.PublicKey, sigKey, time.Now())
	if err != nil {
		return err
	}
	if _, err := m.sendAndCheck(ctx, req, nil); err != nil {
		return err
	}
	client.SubmittedHIA = true
	return m.store.SaveClientKeys(client)
}

func (m *Machine) sendHPB(ctx context.Context) error {
	client, err := m.store.LoadClientKeys()
	if err != nil {
		return err
	}
	sigKey, err := keystore.DecodePrivateKey(client.SignaturePrivateKey)
	if err != nil {
		return err
	}
	encKey, err := keystore.DecodePrivateKey(client.EncryptionPrivateKey)
	if err != nil {
		return err
	}

	req, err := ebicsmsg.BuildHPBRequest(m.header, sigKey, time.Now())
	if err != nil {
		return err
	}
	resp, err := m.sendAndCheck(ctx, req, encKey)
	if err != nil {
		return err
	}
	if resp == nil || resp.BankKeys == nil {
		return fmt.Errorf("keyexchange: HPB response carried no bank keys")
	}
	bankAuth, ok := resp.BankKeys["X002"]
	if !ok {
		return fmt.Errorf("keyexchange: HPB response missing X002 authentication key")
	}
	bankEnc, ok := resp.BankKeys["E002"]
	if !ok {
		return fmt.Errorf("keyexchange: HPB response missing E002 encryption key")
	}

	return m.store.SaveBankKeys(&keystore.BankKeys{
		BankAuthenticationPublicKey: keystore.EncodePublicKey(bankAuth),
		BankEncryptionPublicKey:     keystore.EncodePublicKey(bankEnc),
		Accepted:                    false,
	})
}

// AcceptBankKeys transitions bank_keys_pending_accept → operational: the
// user (or --auto-accept) has confirmed the bank key hashes out of band.
func (m *Machine) AcceptBankKeys() error {
	bank, err := m.store.LoadBankKeys()
	if err != nil {
		return err
	}
	bank.Accepted = true
	return m.store.SaveBankKeys(bank)
}

// BankKeyHashes returns the SHA-256 hashes of the pending bank keys for
// display in the acceptance review screen (cliui).
func (m *Machine) BankKeyHashes() (authHash, encHash [32]byte, err error) {
	bank, err := m.store.LoadBankKeys()
	if err != nil {
		return authHash, encHash, err
	}
	authKey, err := keystore.DecodePublicKey(bank.BankAuthenticationPublicKey)
	if err != nil {
		return authHash, encHash, err
	}
	encKey, err := keystore.DecodePublicKey(bank.BankEncryptionPublicKey)
	if err != nil {
		return authHash, encHash, err
	}
	authHash, err = ebicscrypto.PublicHash(authKey)
	if err != nil {
		return authHash, encHash, err
	}
	encHash, err = ebicscrypto.PublicHash(encKey)
	return authHash, encHash, err
}

func (m *Machine) loadOrCreateClientKeys() (*keystore.ClientKeys, error) {
	client, err := m.store.LoadClientKeys()
	if errors.Is(err, keystore.ErrNotFound) {
		return m.generateClientKeys()
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (m *Machine) generateClientKeys() (*keystore.ClientKeys, error) {
	sigKey, err := ebicscrypto.GenerateKey(2048)
	if err != nil {
		return nil, err
	}
	encKey, err := ebicscrypto.GenerateKey(2048)
	if err != nil {
		return nil, err
	}
	authKey, err := ebicscrypto.GenerateKey(2048)
	if err != nil {
		return nil, err
	}
	client := &keystore.ClientKeys{
		SignaturePrivateKey:      keystore.EncodePrivateKey(sigKey),
		EncryptionPrivateKey:     keystore.EncodePrivateKey(encKey),
		AuthenticationPrivateKey: keystore.EncodePrivateKey(authKey),
	}
	if err := m.store.SaveClientKeys(client); err != nil {
		return nil, err
	}
	return client, nil
}

// sendAndCheck posts req, parses the key-management response, and rejects
// it with ErrBankRejected unless both the technical and (when present) bank
// return codes are OK. A transport-level error (reachability or malformed
// envelope) is returned as-is rather than wrapped. Either way the caller's
// state write never runs, leaving state unchanged per §4.6. encKey may be
// nil for INI/HIA, which carry no encrypted order data to decrypt.
func (m *Machine) sendAndCheck(ctx context.Context, req []byte, encKey *rsa.PrivateKey) (*ebicsmsg.KeyManagementResponse, error) {
	raw, err := m.transport.PostKeyManagement(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := ebicsmsg.ParseKeyManagementResponse(raw, encKey)
	if err != nil {
		return nil, fmt.Errorf("keyexchange: parse response: %w", err)
	}
	if resp.TechnicalReturnCode != returnCodeOK {
		return nil, fmt.Errorf("%w: technical return code %s", ErrBankRejected, resp.TechnicalReturnCode)
	}
	if resp.BankReturnCode != "" && resp.BankReturnCode != returnCodeOK {
		return nil, fmt.Errorf("%w: bank return code %s", ErrBankRejected, resp.BankReturnCode)
	}
	return resp, nil
}

const returnCodeOK = "000000"
