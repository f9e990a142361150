package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tumblrsync/pkg/config"
)

func TestCredentialStaleBoundary(t *testing.T) {
	cred := &Credential{AccessToken: "a", Requested: 1000, ExpiresIn: 3600}

	boundary := time.Unix(1000+3600-30, 0)
	if !cred.Stale(boundary) {
		t.Errorf("credential should be stale at %d", boundary.Unix())
	}
	if cred.Stale(boundary.Add(-time.Second)) {
		t.Errorf("credential should not be stale at %d", boundary.Add(-time.Second).Unix())
	}
	if !cred.Stale(boundary.Add(time.Hour)) {
		t.Error("credential should be stale after expiry")
	}
	assert.Equal(t, time.Unix(4600, 0), cred.ExpiresAt())
}

func TestCredentialJSONLayout(t *testing.T) {
	raw := `{"access_token":"tok","token_type":"bearer","requested":1700000000,"expires_in":2520,"refresh_token":"ref","scope":"basic offline_access"}`

	var cred Credential
	require.NoError(t, json.Unmarshal([]byte(raw), &cred))
	assert.Equal(t, "tok", cred.AccessToken)
	assert.Equal(t, int64(1700000000), cred.Requested)
	assert.Equal(t, int64(2520), cred.ExpiresIn)
	assert.Equal(t, "ref", cred.RefreshToken)

	out, err := json.Marshal(&cred)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestSanitize(t *testing.T) {
	cred := &Credential{AccessToken: "abcdefghijklmnop", RefreshToken: "short", Requested: 5}
	s := Sanitize(cred)

	assert.Equal(t, "abcd********mnop", s.AccessToken)
	assert.Equal(t, "*****", s.RefreshToken)
	assert.Equal(t, int64(5), s.Requested)
	assert.Equal(t, "abcdefghijklmnop", cred.AccessToken, "original must be untouched")
	assert.Nil(t, Sanitize(nil))
}

func TestNewStoreSelectsBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backup.Folder = t.TempDir()
	cfg.Tumblr.ClientID = "client"

	store, err := NewStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	assert.Equal(t, cfg.CredentialFile(), store.Location())

	cfg.Credentials.Backend = "keyring"
	store, err = NewStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &KeyringStore{}, store)

	cfg.Credentials.Backend = "encrypted"
	_, err = NewStore(cfg)
	assert.Error(t, err, "encrypted backend without passphrase")

	cfg.Credentials.Passphrase = "secret"
	store, err = NewStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &EncryptedFileStore{}, store)

	cfg.Credentials.Backend = "carrier-pigeon"
	_, err = NewStore(cfg)
	assert.Error(t, err)
}
