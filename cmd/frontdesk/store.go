package main

import (
	"sync"

	frontdesk "github.com/frontdesk-ai/console/sdk/golang"
)

// ConfigAuth is the session persisted by login and every refresh.
type ConfigAuth struct {
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	UserID       string `toml:"user_id"`
	Email        string `toml:"email"`
}

func (a ConfigAuth) credentials() frontdesk.Credentials {
	return frontdesk.Credentials{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		UserID:       a.UserID,
		Email:        a.Email,
	}
}

func authFromCredentials(c frontdesk.Credentials) ConfigAuth {
	return ConfigAuth{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		UserID:       c.UserID,
		Email:        c.Email,
	}
}

// fileCredentialStore keeps the session in the [auth] section of the config
// file so a refresh performed by one command is visible to the next.
type fileCredentialStore struct {
	mu  sync.Mutex
	cfg *Config
}

func newFileCredentialStore(cfg *Config) *fileCredentialStore {
	return &fileCredentialStore{cfg: cfg}
}

func (s *fileCredentialStore) Credentials() frontdesk.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Auth.credentials()
}

func (s *fileCredentialStore) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Auth.AccessToken != ""
}

func (s *fileCredentialStore) SetCredentials(c frontdesk.Credentials) error {
	return s.persist(authFromCredentials(c))
}

func (s *fileCredentialStore) Clear() error {
	return s.persist(ConfigAuth{})
}

// persist rolls the in-memory session back if the file cannot be written.
func (s *fileCredentialStore) persist(auth ConfigAuth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg.Auth
	s.cfg.Auth = auth
	if err := saveConfig(s.cfg); err != nil {
		s.cfg.Auth = prev
		return err
	}
	return nil
}
