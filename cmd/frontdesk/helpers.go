package main

import (
	"errors"
	"fmt"
	"os"

	frontdesk "github.com/frontdesk-ai/console/sdk/golang"
)

var errNotLoggedIn = errors.New("not logged in; run 'frontdesk login' first")

// loginNavigator stands in for the dashboard's redirect to the login page.
type loginNavigator struct{}

func (loginNavigator) RedirectToLogin() {
	fmt.Fprintln(os.Stderr, "Session ended. Run 'frontdesk login' to sign in again.")
}

// clientOptions builds client options from the config file.
func clientOptions(cfg *Config) []frontdesk.ClientOption {
	opts := []frontdesk.ClientOption{
		frontdesk.WithCredentialStore(newFileCredentialStore(cfg)),
		frontdesk.WithNavigator(loginNavigator{}),
		frontdesk.WithLogger(logger),
	}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, frontdesk.WithBaseURL(cfg.Default.BaseURL))
	} else if cfg.Default.Environment != "" && cfg.Default.Environment != string(frontdesk.Production) {
		opts = append(opts, frontdesk.WithEnvironment(frontdesk.Environment(cfg.Default.Environment)))
	}
	if cfg.Default.WSURL != "" {
		opts = append(opts, frontdesk.WithRealtimeURL(cfg.Default.WSURL))
	}
	return opts
}

// getClient loads the config and returns a client bound to the stored session.
func getClient() (*frontdesk.Client, *Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return frontdesk.NewClient(clientOptions(cfg)...), cfg, nil
}

// getAuthedClient is getClient for commands that need a session.
func getAuthedClient() (*frontdesk.Client, error) {
	client, _, err := getClient()
	if err != nil {
		return nil, err
	}
	if !client.Store().IsAuthenticated() {
		return nil, errNotLoggedIn
	}
	return client, nil
}

// maskToken shows the first 6 and last 4 characters of a token.
func maskToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 12 {
		return tok[:2] + "..."
	}
	return tok[:6] + "..." + tok[len(tok)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
