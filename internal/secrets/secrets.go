// Package secrets stores account passwords and OAuth refresh tokens outside the settings file.
package secrets

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "mailsync"

// Kind separates password entries from OAuth refresh token entries
type Kind string

const (
	KindAccount Kind = "account"
	KindOAuth   Kind = "oauth"
)

// Store resolves secrets by (kind, host, username)
type Store struct {
	ring keyring.Keyring
}

// Open returns a store backed by the system keyring, falling back to encrypted files under dir
func Open(dir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

// New wraps an already opened keyring
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func key(kind Kind, host, username string) string {
	return fmt.Sprintf("%s/%s/%s", kind, host, username)
}

// Get returns the secret, or "" if none is stored
func (s *Store) Get(kind Kind, host, username string) (string, error) {
	item, err := s.ring.Get(key(kind, host, username))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting %s secret for %s@%s: %w", kind, username, host, err)
	}
	return string(item.Data), nil
}

// Set stores or replaces the secret
func (s *Store) Set(kind Kind, host, username, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:   key(kind, host, username),
		Data:  []byte(value),
		Label: fmt.Sprintf("mailsync %s %s@%s", kind, username, host),
	})
	if err != nil {
		return fmt.Errorf("setting %s secret for %s@%s: %w", kind, username, host, err)
	}
	return nil
}

// Delete removes the secret; deleting a missing secret is not an error
func (s *Store) Delete(kind Kind, host, username string) error {
	err := s.ring.Remove(key(kind, host, username))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting %s secret for %s@%s: %w", kind, username, host, err)
	}
	return nil
}
