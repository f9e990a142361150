package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func sampleCredential() *Credential {
	return &Credential{
		AccessToken:  "access-token-value",
		TokenType:    "bearer",
		Requested:    1700000000,
		ExpiresIn:    2520,
		RefreshToken: "refresh-token-value",
		Scope:        "basic offline_access",
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup", "token.json")
	store := NewFileStore(path)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	require.NoError(t, store.Save(sampleCredential()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleCredential(), got)

	updated := sampleCredential()
	updated.AccessToken = "second"
	require.NoError(t, store.Save(updated))
	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, "second", got.AccessToken)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, store.Delete())
	assert.ErrorIs(t, store.Delete(), ErrCredentialNotFound)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewFileStore(path)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrCredentialCorrupt)

	require.NoError(t, os.WriteFile(path, []byte(`{"requested":1}`), 0600))
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrCredentialCorrupt)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json.enc")

	_, err := NewEncryptedFileStore(path, "")
	require.Error(t, err)

	store, err := NewEncryptedFileStore(path, "correct horse")
	require.NoError(t, err)

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	require.NoError(t, store.Save(sampleCredential()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "access-token-value")

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleCredential(), got)

	wrong, err := NewEncryptedFileStore(path, "battery staple")
	require.NoError(t, err)
	_, err = wrong.Load()
	assert.ErrorIs(t, err, ErrCredentialCorrupt)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore("client-id")

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	require.NoError(t, store.Save(sampleCredential()))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleCredential(), got)
	assert.Contains(t, store.Location(), "client-id")

	require.NoError(t, store.Delete())
	assert.ErrorIs(t, store.Delete(), ErrCredentialNotFound)
}

func TestKeyringStoreUnavailable(t *testing.T) {
	boom := errors.New("no secret service")
	keyring.MockInitWithError(boom)
	store := NewKeyringStore("client-id")

	_, err := store.Load()
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCredentialNotFound)
}

func TestMemoryStoreInjection(t *testing.T) {
	store := NewMemoryStore(nil)
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	store.SaveErr = errors.New("disk full")
	assert.Error(t, store.Save(sampleCredential()))
	assert.Equal(t, 0, store.Saves())

	store.SaveErr = nil
	require.NoError(t, store.Save(sampleCredential()))
	assert.Equal(t, 1, store.Saves())
}
