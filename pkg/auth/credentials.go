package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tumblrsync/pkg/config"
)

// RefreshMargin is how long before nominal expiry a credential counts as stale
const RefreshMargin = 30 * time.Second

var (
	// ErrCredentialNotFound is returned by a store that holds no credential
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrCredentialCorrupt is returned when a stored credential cannot be decoded
	ErrCredentialCorrupt = errors.New("credential is corrupt")
)

// Credential is the persisted OAuth token record. The JSON layout is the
// token endpoint response plus the local request time in epoch seconds.
type Credential struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	Requested    int64  `json:"requested"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ExpiresAt is the nominal expiry, without the refresh margin
func (c *Credential) ExpiresAt() time.Time {
	return time.Unix(c.Requested+c.ExpiresIn, 0)
}

// Stale reports whether the credential must be refreshed before use.
// A credential is stale from requested+expires_in-30s onwards.
func (c *Credential) Stale(now time.Time) bool {
	return now.Unix() >= c.Requested+c.ExpiresIn-int64(RefreshMargin/time.Second)
}

// Valid reports whether the record carries an access token
func (c *Credential) Valid() bool {
	return c != nil && c.AccessToken != ""
}

// CredentialStore persists a single credential
type CredentialStore interface {
	// Load returns ErrCredentialNotFound when nothing is stored
	Load() (*Credential, error)
	Save(cred *Credential) error
	Delete() error
	// Location describes where the credential lives, for display
	Location() string
}

// NewStore returns the store selected by cfg.Credentials.Backend
func NewStore(cfg *config.Config) (CredentialStore, error) {
	switch cfg.Credentials.Backend {
	case "", "file":
		return NewFileStore(cfg.CredentialFile()), nil
	case "keyring":
		return NewKeyringStore(cfg.Tumblr.ClientID), nil
	case "encrypted":
		return NewEncryptedFileStore(cfg.CredentialFile()+".enc", cfg.Credentials.Passphrase)
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Credentials.Backend)
	}
}

// Sanitize returns a copy safe to print
func Sanitize(cred *Credential) *Credential {
	if cred == nil {
		return nil
	}
	out := *cred
	out.AccessToken = maskString(cred.AccessToken)
	out.RefreshToken = maskString(cred.RefreshToken)
	return &out
}

// maskString masks all but the first and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
