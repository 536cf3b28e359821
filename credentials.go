package frontdesk

import "sync"

// Credentials is the auth material attached to requests and the channel.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
}

// CredentialStore is where the client reads and writes auth material.
// Implementations must be safe for concurrent use.
type CredentialStore interface {
	Credentials() Credentials
	IsAuthenticated() bool
	SetCredentials(Credentials) error
	Clear() error
}

// MemoryCredentialStore keeps credentials in memory only.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds Credentials
	authd bool
}

// NewMemoryCredentialStore returns a store seeded with creds. A store with
// an empty access token starts unauthenticated.
func NewMemoryCredentialStore(creds Credentials) *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: creds, authd: creds.AccessToken != ""}
}

func (s *MemoryCredentialStore) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

func (s *MemoryCredentialStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authd
}

func (s *MemoryCredentialStore) SetCredentials(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
	s.authd = c.AccessToken != ""
	return nil
}

func (s *MemoryCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.authd = false
	return nil
}

// mergeAuthResult overlays the non-empty fields of r onto c.
func mergeAuthResult(c Credentials, r *AuthResult) Credentials {
	if r == nil {
		return c
	}
	if r.AccessToken != "" {
		c.AccessToken = r.AccessToken
	}
	if r.RefreshToken != "" {
		c.RefreshToken = r.RefreshToken
	}
	if r.User != nil {
		if r.User.ID != "" {
			c.UserID = r.User.ID
		}
		if r.User.Email != "" {
			c.Email = r.User.Email
		}
	}
	return c
}
