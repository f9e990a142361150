package auth

import "sync"

// MemoryStore is an in-process CredentialStore with error injection, used
// by tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	cred  *Credential
	saves int

	LoadErr error
	SaveErr error
}

var _ CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store optionally seeded with cred
func NewMemoryStore(cred *Credential) *MemoryStore {
	m := &MemoryStore{}
	if cred != nil {
		c := *cred
		m.cred = &c
	}
	return m
}

func (m *MemoryStore) Load() (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if m.cred == nil {
		return nil, ErrCredentialNotFound
	}
	c := *m.cred
	return &c, nil
}

func (m *MemoryStore) Save(cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	c := *cred
	m.cred = &c
	m.saves++
	return nil
}

func (m *MemoryStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred == nil {
		return ErrCredentialNotFound
	}
	m.cred = nil
	return nil
}

func (m *MemoryStore) Location() string { return "memory" }

// Saves returns how many times Save succeeded
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
