package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the CLI state kept in config.toml under the Frontdesk home
// directory. The [auth] section belongs to fileCredentialStore.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Auth    ConfigAuth    `toml:"auth"`
}

// ConfigDefault selects which API deployment the CLI talks to.
type ConfigDefault struct {
	BaseURL     string `toml:"base_url"`
	Environment string `toml:"environment"`
	WSURL       string `toml:"ws_url"`
}

const (
	envHome        = "FRONTDESK_HOME"
	configFileName = "config.toml"
)

// configPath resolves the config file location without touching disk.
func configPath() (string, error) {
	if dir := os.Getenv(envHome); dir != "" {
		return filepath.Join(dir, configFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".frontdesk", configFileName), nil
}

func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return readConfig(path)
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	return writeConfig(path, cfg)
}

// readConfig returns an empty Config when path does not exist yet.
func readConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// writeConfig replaces path atomically. The file carries session tokens and
// is always left owner-only.
func writeConfig(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+configFileName+".*")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// configKey is one settable "section.field" entry.
type configKey struct {
	name   string
	secret bool
	field  func(*Config) *string
}

// configKeys lists every key in file order; config set and config show both
// walk it.
var configKeys = []configKey{
	{name: "default.base_url", field: func(c *Config) *string { return &c.Default.BaseURL }},
	{name: "default.environment", field: func(c *Config) *string { return &c.Default.Environment }},
	{name: "default.ws_url", field: func(c *Config) *string { return &c.Default.WSURL }},
	{name: "auth.access_token", secret: true, field: func(c *Config) *string { return &c.Auth.AccessToken }},
	{name: "auth.refresh_token", secret: true, field: func(c *Config) *string { return &c.Auth.RefreshToken }},
	{name: "auth.user_id", field: func(c *Config) *string { return &c.Auth.UserID }},
	{name: "auth.email", field: func(c *Config) *string { return &c.Auth.Email }},
}

func lookupConfigKey(name string) (configKey, error) {
	if !strings.Contains(name, ".") {
		return configKey{}, fmt.Errorf("key %q must be section.field, e.g. default.base_url", name)
	}
	for _, k := range configKeys {
		if k.name == name {
			return k, nil
		}
	}
	names := make([]string, len(configKeys))
	for i, k := range configKeys {
		names[i] = k.name
	}
	return configKey{}, fmt.Errorf("unknown key %q (valid: %s)", name, strings.Join(names, ", "))
}

func setConfigValue(cfg *Config, key, value string) error {
	k, err := lookupConfigKey(key)
	if err != nil {
		return err
	}
	*k.field(cfg) = value
	return nil
}
