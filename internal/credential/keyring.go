package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/issuebot/internal/model"
)

const serviceName = "issuebot"

// Keys under which secrets are stored.
const (
	KeyAuthToken    = "auth_token"
	KeySMTPPassword = "smtp.password"
	KeyIMAPPassword = "imap.password"
)

// Keys lists every key the bot reads from the keyring.
var Keys = []string{KeyAuthToken, KeySMTPPassword, KeyIMAPPassword}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/issuebot/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("issuebot-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Store reads and writes bot secrets in a keyring.
type Store struct {
	ring keyring.Keyring
}

// Open opens the system keyring.
func Open() (*Store, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an already opened keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key. A missing key yields an error
// matching keyring.ErrKeyNotFound.
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key string, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// Resolve fills every empty secret in cfg from the keyring. Secrets
// already set by the config file or the environment win.
func (s *Store) Resolve(cfg *model.Config) error {
	targets := map[string]*string{
		KeyAuthToken:    &cfg.AuthToken,
		KeySMTPPassword: &cfg.SMTP.Password,
		KeyIMAPPassword: &cfg.IMAP.Password,
	}

	for _, key := range Keys {
		dst := targets[key]
		if *dst != "" {
			continue
		}
		value, err := s.Get(key)
		if errors.Is(err, keyring.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		*dst = value
	}

	return nil
}

// NeedsResolve reports whether any secret in cfg is empty, so callers can
// skip opening the keyring on hosts that configure everything directly.
func NeedsResolve(cfg model.Config) bool {
	return cfg.AuthToken == "" || (cfg.SMTP.Host != "" && cfg.SMTP.Password == "") ||
		(cfg.IMAP.Host != "" && cfg.IMAP.Password == "")
}

// IsValidKey reports whether key is one of Keys.
func IsValidKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}
