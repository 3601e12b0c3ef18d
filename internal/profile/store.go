// ABOUTME: SQLite-backed cache of the operator profile using modernc.org/sqlite
// ABOUTME: Single-row identity plus capability token set with automatic schema

package profile

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opsdesk/chatdesk/internal/api"
)

// ErrNoProfile is returned by Load when no operator is cached.
var ErrNoProfile = errors.New("no cached profile")

// Profile is everything needed to resume a session.
type Profile struct {
	Identity     api.Identity
	Token        string
	Capabilities []string
	SavedAt      time.Time
}

// Store persists at most one operator profile.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the profile database at the given path. Parent
// directories are created if needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "profile")

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating profile directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening profile database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("profile store opened", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS profile (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			token TEXT NOT NULL,
			saved_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS capabilities (
			token TEXT PRIMARY KEY
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Save replaces the cached profile and capability set atomically.
func (s *Store) Save(p Profile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO profile (id, user_id, name, email, role, token, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			token = excluded.token,
			saved_at = excluded.saved_at`,
		p.Identity.ID, p.Identity.Name, p.Identity.Email, p.Identity.Role,
		p.Token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM capabilities"); err != nil {
		return fmt.Errorf("clearing capabilities: %w", err)
	}
	for _, cap := range p.Capabilities {
		if _, err := tx.Exec("INSERT OR IGNORE INTO capabilities (token) VALUES (?)", cap); err != nil {
			return fmt.Errorf("saving capability %q: %w", cap, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing save: %w", err)
	}
	s.logger.Debug("profile saved", "user_id", p.Identity.ID, "capabilities", len(p.Capabilities))
	return nil
}

// Load returns the cached profile, or ErrNoProfile.
func (s *Store) Load() (*Profile, error) {
	var p Profile
	err := s.db.QueryRow(`
		SELECT user_id, name, email, role, token, saved_at
		FROM profile WHERE id = 1`).Scan(
		&p.Identity.ID, &p.Identity.Name, &p.Identity.Email, &p.Identity.Role,
		&p.Token, &p.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	rows, err := s.db.Query("SELECT token FROM capabilities ORDER BY token")
	if err != nil {
		return nil, fmt.Errorf("loading capabilities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cap string
		if err := rows.Scan(&cap); err != nil {
			return nil, fmt.Errorf("scanning capability: %w", err)
		}
		p.Capabilities = append(p.Capabilities, cap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading capabilities: %w", err)
	}
	return &p, nil
}

// Clear forgets the cached profile, used on logout and on a fatal 401.
func (s *Store) Clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM profile"); err != nil {
		return fmt.Errorf("clearing profile: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM capabilities"); err != nil {
		return fmt.Errorf("clearing capabilities: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
