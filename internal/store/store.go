// Package store provides SQLite-backed persistence for the companion
// service: the consent record, the credential blob, and profile overrides.
//
// The database lives under the data dir and holds no factory data. Snapshot
// contents are deliberately memory-only.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoCredential indicates no credential row has ever been saved.
var ErrNoCredential = errors.New("no credential stored")

const schema = `
CREATE TABLE IF NOT EXISTS consent (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	accepted INTEGER NOT NULL,
	accepted_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS credential (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	scheme TEXT NOT NULL,
	blob BLOB,
	pad BLOB
);
CREATE TABLE IF NOT EXISTS profile_overrides (
	name TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	temperature REAL NOT NULL,
	max_tokens INTEGER NOT NULL,
	prompt_additions TEXT NOT NULL DEFAULT ''
);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// The companion is a single process; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Consent record
// =============================================================================

// LoadConsent returns the persisted consent record. A missing row means
// consent was never given.
func (s *Store) LoadConsent() (accepted bool, acceptedAt time.Time, err error) {
	var acc int
	var at int64
	row := s.db.QueryRow(`SELECT accepted, accepted_at FROM consent WHERE id = 1`)
	if err := row.Scan(&acc, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, fmt.Errorf("load consent: %w", err)
	}
	return acc == 1, time.Unix(at, 0).UTC(), nil
}

// SaveConsent persists an accepted consent record.
func (s *Store) SaveConsent(acceptedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO consent (id, accepted, accepted_at) VALUES (1, 1, ?)
		 ON CONFLICT(id) DO UPDATE SET accepted = 1, accepted_at = excluded.accepted_at`,
		acceptedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

// ClearConsent removes the consent record entirely, so a restart looks like
// a first launch.
func (s *Store) ClearConsent() error {
	if _, err := s.db.Exec(`DELETE FROM consent WHERE id = 1`); err != nil {
		return fmt.Errorf("clear consent: %w", err)
	}
	return nil
}

// =============================================================================
// Credential blob
// =============================================================================

// SaveCredential persists the credential row. For the keyring scheme blob
// and pad are nil; for the obfuscated scheme they hold ciphertext and pad.
func (s *Store) SaveCredential(scheme string, blob, pad []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO credential (id, scheme, blob, pad) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET scheme = excluded.scheme, blob = excluded.blob, pad = excluded.pad`,
		scheme, blob, pad,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// LoadCredential returns the persisted credential row, or ErrNoCredential.
func (s *Store) LoadCredential() (scheme string, blob, pad []byte, err error) {
	row := s.db.QueryRow(`SELECT scheme, blob, pad FROM credential WHERE id = 1`)
	if err := row.Scan(&scheme, &blob, &pad); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, nil, ErrNoCredential
		}
		return "", nil, nil, fmt.Errorf("load credential: %w", err)
	}
	return scheme, blob, pad, nil
}

// DeleteCredential removes the credential row.
func (s *Store) DeleteCredential() error {
	if _, err := s.db.Exec(`DELETE FROM credential WHERE id = 1`); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// =============================================================================
// Profile overrides
// =============================================================================

// ProfileOverride mirrors config.ProfileConfig for persisted rows. Kept as a
// separate type so the store does not import config.
type ProfileOverride struct {
	Name            string
	Model           string
	Temperature     float64
	MaxTokens       int
	PromptAdditions string
}

// SaveProfileOverride upserts one profile override row.
func (s *Store) SaveProfileOverride(p ProfileOverride) error {
	return s.SaveProfileOverrides([]ProfileOverride{p})
}

// SaveProfileOverrides upserts a batch of override rows in one transaction,
// so a failure partway through persists nothing.
func (s *Store) SaveProfileOverrides(ps []ProfileOverride) error {
	if len(ps) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin profile overrides: %w", err)
	}
	for _, p := range ps {
		if _, err := tx.Exec(
			`INSERT INTO profile_overrides (name, model, temperature, max_tokens, prompt_additions)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
				model = excluded.model,
				temperature = excluded.temperature,
				max_tokens = excluded.max_tokens,
				prompt_additions = excluded.prompt_additions`,
			p.Name, p.Model, p.Temperature, p.MaxTokens, p.PromptAdditions,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save profile override %q: %w", p.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile overrides: %w", err)
	}
	return nil
}

// LoadProfileOverrides returns all persisted profile overrides.
func (s *Store) LoadProfileOverrides() ([]ProfileOverride, error) {
	rows, err := s.db.Query(`SELECT name, model, temperature, max_tokens, prompt_additions FROM profile_overrides ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load profile overrides: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ProfileOverride
	for rows.Next() {
		var p ProfileOverride
		if err := rows.Scan(&p.Name, &p.Model, &p.Temperature, &p.MaxTokens, &p.PromptAdditions); err != nil {
			return nil, fmt.Errorf("scan profile override: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
