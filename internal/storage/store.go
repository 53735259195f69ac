package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// StoredSession is the persisted authentication state of one Telegram user.
// Passwords are never stored.
type StoredSession struct {
	TelegramID  int64
	Email       string
	State       string
	LastUpdated time.Time
}

// Viewport is a user's preview size in logical pixels.
type Viewport struct {
	Width  float64
	Height float64
}

// AllowedUser represents a user in the whitelist.
type AllowedUser struct {
	TelegramID int64
	AddedAt    time.Time
	AddedBy    int64
}

// SessionStore defines the persistence used by the bot.
type SessionStore interface {
	Get(telegramID int64) (*StoredSession, error)
	Save(session *StoredSession) error
	Delete(telegramID int64) error
	Close() error

	GetViewport(telegramID int64) (*Viewport, error)
	SetViewport(telegramID int64, vp Viewport) error

	GetPermission(telegramID int64, resource string) (PermissionStatus, error)
	SetPermission(telegramID int64, resource string, status PermissionStatus) error
	RevokePermission(telegramID int64, resource string) error

	SaveExtraction(telegramID int64, source, filename string, fields map[string]string) (*Extraction, error)
	GetExtractionsByUser(telegramID int64, limit int) ([]Extraction, error)
	DeleteExtractionsByUser(telegramID int64) (int64, error)
	PruneExtractions(before time.Time) (int64, error)

	IsUserAllowed(telegramID int64) (bool, error)
	AddAllowedUser(telegramID, addedBy int64) error
	RemoveAllowedUser(telegramID int64) error
	GetAllowedUsers() ([]AllowedUser, error)
}

// SQLiteStore implements SessionStore using SQLite. Extraction fields are
// encrypted at rest.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// The encryptionKey is used for extraction history.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database otherwise.
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	if dbPath != ":memory:" {
		if err := os.Chmod(dbPath, 0600); err != nil {
			log.Warn().Err(err).Str("dbPath", dbPath).Msg("failed to restrict database file permissions")
		}
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	tables := []struct {
		name  string
		query string
	}{
		{"sessions", `
		CREATE TABLE IF NOT EXISTS sessions (
			telegram_id INTEGER PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			last_updated DATETIME NOT NULL
		);`},
		{"user_settings", `
		CREATE TABLE IF NOT EXISTS user_settings (
			telegram_id INTEGER PRIMARY KEY,
			preview_width REAL,
			preview_height REAL
		);`},
		{"permissions", `
		CREATE TABLE IF NOT EXISTS permissions (
			telegram_id INTEGER NOT NULL,
			resource TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (telegram_id, resource)
		);`},
		{"extractions", `
		CREATE TABLE IF NOT EXISTS extractions (
			id TEXT PRIMARY KEY,
			telegram_id INTEGER NOT NULL,
			source TEXT NOT NULL,
			filename TEXT NOT NULL,
			encrypted_fields TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`},
		{"allowed_users", `
		CREATE TABLE IF NOT EXISTS allowed_users (
			telegram_id INTEGER PRIMARY KEY,
			added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			added_by INTEGER
		);`},
	}

	for _, t := range tables {
		if _, err := s.db.Exec(t.query); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_extractions_user ON extractions (telegram_id, created_at)"); err != nil {
		return fmt.Errorf("failed to create extractions index: %w", err)
	}

	return nil
}

// Get retrieves a session by Telegram user ID.
// Returns nil, nil if the session doesn't exist.
func (s *SQLiteStore) Get(telegramID int64) (*StoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session := StoredSession{TelegramID: telegramID}
	err := s.db.QueryRow(
		"SELECT email, state, last_updated FROM sessions WHERE telegram_id = ?",
		telegramID,
	).Scan(&session.Email, &session.State, &session.LastUpdated)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return &session, nil
}

// Save stores or updates a session.
func (s *SQLiteStore) Save(session *StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.LastUpdated = time.Now()

	_, err := s.db.Exec(`
		INSERT INTO sessions (telegram_id, email, state, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			email = excluded.email,
			state = excluded.state,
			last_updated = excluded.last_updated
	`, session.TelegramID, session.Email, session.State, session.LastUpdated)

	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session by Telegram user ID.
func (s *SQLiteStore) Delete(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM sessions WHERE telegram_id = ?", telegramID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetViewport returns the user's preview size, or nil if never set.
func (s *SQLiteStore) GetViewport(telegramID int64) (*Viewport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var w, h sql.NullFloat64
	err := s.db.QueryRow(
		"SELECT preview_width, preview_height FROM user_settings WHERE telegram_id = ?",
		telegramID,
	).Scan(&w, &h)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query viewport: %w", err)
	}
	if !w.Valid || !h.Valid {
		return nil, nil
	}

	return &Viewport{Width: w.Float64, Height: h.Float64}, nil
}

// SetViewport stores the user's preview size.
func (s *SQLiteStore) SetViewport(telegramID int64, vp Viewport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO user_settings (telegram_id, preview_width, preview_height)
		VALUES (?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			preview_width = excluded.preview_width,
			preview_height = excluded.preview_height
	`, telegramID, vp.Width, vp.Height)

	if err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}
	return nil
}

// IsUserAllowed checks if a user is in the whitelist.
func (s *SQLiteStore) IsUserAllowed(telegramID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM allowed_users WHERE telegram_id = ?",
		telegramID,
	).Scan(&count)

	if err != nil {
		return false, fmt.Errorf("failed to check allowed user: %w", err)
	}
	return count > 0, nil
}

// AddAllowedUser adds a user to the whitelist.
func (s *SQLiteStore) AddAllowedUser(telegramID, addedBy int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO allowed_users (telegram_id, added_by)
		VALUES (?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			added_by = excluded.added_by,
			added_at = CURRENT_TIMESTAMP
	`, telegramID, addedBy)

	if err != nil {
		return fmt.Errorf("failed to add allowed user: %w", err)
	}
	return nil
}

// RemoveAllowedUser removes a user from the whitelist.
func (s *SQLiteStore) RemoveAllowedUser(telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM allowed_users WHERE telegram_id = ?", telegramID)
	if err != nil {
		return fmt.Errorf("failed to remove allowed user: %w", err)
	}
	return nil
}

// GetAllowedUsers returns all users in the whitelist, oldest first.
func (s *SQLiteStore) GetAllowedUsers() ([]AllowedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT telegram_id, added_at, added_by FROM allowed_users ORDER BY added_at, telegram_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query allowed users: %w", err)
	}
	defer rows.Close()

	var users []AllowedUser
	for rows.Next() {
		var user AllowedUser
		var addedBy sql.NullInt64
		if err := rows.Scan(&user.TelegramID, &user.AddedAt, &addedBy); err != nil {
			return nil, fmt.Errorf("failed to scan allowed user: %w", err)
		}
		user.AddedBy = addedBy.Int64
		users = append(users, user)
	}

	return users, rows.Err()
}
