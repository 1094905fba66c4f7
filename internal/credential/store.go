// Package credential manages the single shared upstream API key.
//
// Secure path: the secret lives in the OS keyring (Keychain, wincred,
// Secret Service); the database only records which scheme holds it.
// Fallback path: when no keyring is available the secret is stored in the
// database under a reversible XOR obfuscation with a per-install random
// pad. That path is deliberately weak and the store reports Degraded()
// so every surface can warn the user instead of silently downgrading.
package credential

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"

	"github.com/factorio-gpt/companion-gateway/internal/store"
)

var (
	// ErrNotConfigured indicates no secret has ever been set.
	ErrNotConfigured = errors.New("api key not configured")
	// ErrInvalidCredential indicates the provider rejected the secret.
	ErrInvalidCredential = errors.New("invalid api key")
)

const (
	keyringService = "factorio-gpt-companion"
	keyringUser    = "api-key"

	schemeKeyring    = "keyring"
	schemeObfuscated = "obfuscated"
)

// Validator confirms a secret against the upstream provider before it is
// persisted. Implemented by the upstream client's CheckKey.
type Validator interface {
	CheckKey(ctx context.Context, apiKey string) error
}

// Store holds the decrypted secret in memory for the process lifetime.
// Set is serialized against concurrent Gets; readers never observe a torn
// write.
type Store struct {
	mu       sync.RWMutex
	secret   string
	loaded   bool
	degraded bool

	db       *store.Store
	validate Validator
}

// New creates a credential store. Load must be called before Get.
func New(db *store.Store, validate Validator) *Store {
	return &Store{db: db, validate: validate}
}

// Load restores the secret from its persisted form. A missing credential is
// not an error; Get will return ErrNotConfigured until Set succeeds.
func (s *Store) Load() error {
	scheme, blob, pad, err := s.db.LoadCredential()
	if errors.Is(err, store.ErrNoCredential) {
		return nil
	}
	if err != nil {
		return err
	}

	var secret string
	var degraded bool
	switch scheme {
	case schemeKeyring:
		secret, err = keyring.Get(keyringService, keyringUser)
		if err != nil {
			// Keyring row exists but the entry is gone (keychain wiped,
			// different user). Treat as unconfigured rather than failing startup.
			log.Warn().Err(err).Msg("credential recorded in keyring but not retrievable; re-run setup")
			return nil
		}
	case schemeObfuscated:
		secret = deobfuscate(blob, pad)
		degraded = true
	default:
		return fmt.Errorf("unknown credential scheme %q", scheme)
	}

	s.mu.Lock()
	s.secret = secret
	s.loaded = secret != ""
	s.degraded = degraded
	s.mu.Unlock()
	return nil
}

// Get returns the decrypted secret, or ErrNotConfigured.
func (s *Store) Get() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return "", ErrNotConfigured
	}
	return s.secret, nil
}

// Configured reports whether a secret is available.
func (s *Store) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Degraded reports whether the secret is stored under the weak obfuscation
// fallback rather than the OS keyring.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Set validates the secret upstream, persists it, and swaps it into memory.
// A failed validation leaves any previously stored secret untouched.
func (s *Store) Set(ctx context.Context, secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidCredential)
	}
	if s.validate != nil {
		if err := s.validate.CheckKey(ctx, secret); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	degraded := false
	if err := keyring.Set(keyringService, keyringUser, secret); err != nil {
		log.Warn().Err(err).Msg("OS keyring unavailable, falling back to weak reversible obfuscation")
		degraded = true
		blob, pad, obErr := obfuscate(secret)
		if obErr != nil {
			return obErr
		}
		if err := s.db.SaveCredential(schemeObfuscated, blob, pad); err != nil {
			return err
		}
	} else {
		if err := s.db.SaveCredential(schemeKeyring, nil, nil); err != nil {
			return err
		}
	}

	s.secret = secret
	s.loaded = true
	s.degraded = degraded
	return nil
}

// Clear removes the secret from memory, the database, and the keyring.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCredential(); err != nil {
		return err
	}
	// Best effort: the keyring entry may not exist.
	_ = keyring.Delete(keyringService, keyringUser)
	s.secret = ""
	s.loaded = false
	s.degraded = false
	return nil
}

// obfuscate XORs the secret with a random pad of equal length. Reversible
// by construction; this is obfuscation, not encryption.
func obfuscate(secret string) (blob, pad []byte, err error) {
	raw := []byte(secret)
	pad = make([]byte, len(raw))
	if _, err := rand.Read(pad); err != nil {
		return nil, nil, fmt.Errorf("generate pad: %w", err)
	}
	blob = make([]byte, len(raw))
	for i := range raw {
		blob[i] = raw[i] ^ pad[i]
	}
	return blob, pad, nil
}

func deobfuscate(blob, pad []byte) string {
	if len(blob) != len(pad) {
		return ""
	}
	raw := make([]byte, len(blob))
	for i := range blob {
		raw[i] = blob[i] ^ pad[i]
	}
	return string(raw)
}
