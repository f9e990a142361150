package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "tumblrsync"

// KeyringStore keeps the credential in the system keychain, keyed by the
// OAuth client id so several registered apps can coexist.
type KeyringStore struct {
	account string
}

var _ CredentialStore = (*KeyringStore)(nil)

// NewKeyringStore creates a keychain-backed store
func NewKeyringStore(clientID string) *KeyringStore {
	return &KeyringStore{account: "oauth2_" + clientID}
}

// Load reads the credential from the keychain
func (k *KeyringStore) Load() (*Credential, error) {
	data, err := keyring.Get(keyringService, k.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("read from keyring: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal([]byte(data), &cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}
	if !cred.Valid() {
		return nil, fmt.Errorf("%w: missing access_token", ErrCredentialCorrupt)
	}
	return &cred, nil
}

// Save writes the credential to the keychain
func (k *KeyringStore) Save(cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := keyring.Set(keyringService, k.account, string(data)); err != nil {
		return fmt.Errorf("store in keyring: %w", err)
	}
	return nil
}

// Delete removes the credential from the keychain
func (k *KeyringStore) Delete() error {
	if err := keyring.Delete(keyringService, k.account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialNotFound
		}
		return fmt.Errorf("delete from keyring: %w", err)
	}
	return nil
}

// Location names the keychain entry
func (k *KeyringStore) Location() string {
	return fmt.Sprintf("keyring %s/%s", keyringService, k.account)
}
