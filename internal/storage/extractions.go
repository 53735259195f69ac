package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Extraction is one stored extraction result.
type Extraction struct {
	ID         string
	TelegramID int64
	Source     string
	Filename   string
	Fields     map[string]string
	CreatedAt  time.Time
}

// SaveExtraction stores an extraction result for a user. Fields are
// encrypted before they reach the database.
func (s *SQLiteStore) SaveExtraction(telegramID int64, source, filename string, fields map[string]string) (*Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	encrypted, err := Encrypt(fieldsJSON, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt fields: %w", err)
	}

	ext := &Extraction{
		ID:         uuid.New().String(),
		TelegramID: telegramID,
		Source:     source,
		Filename:   filename,
		Fields:     fields,
		CreatedAt:  time.Now(),
	}

	_, err = s.db.Exec(
		`INSERT INTO extractions (id, telegram_id, source, filename, encrypted_fields, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ext.ID, ext.TelegramID, ext.Source, ext.Filename, encrypted, ext.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save extraction: %w", err)
	}

	return ext, nil
}

// GetExtractionsByUser returns the user's most recent extractions, newest
// first. A limit <= 0 returns all of them.
func (s *SQLiteStore) GetExtractionsByUser(telegramID int64, limit int) ([]Extraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(
		`SELECT id, source, filename, encrypted_fields, created_at FROM extractions
		WHERE telegram_id = ? ORDER BY created_at DESC LIMIT ?`,
		telegramID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractions: %w", err)
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		var e Extraction
		var encrypted string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Source, &e.Filename, &encrypted, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}

		plain, err := Decrypt(encrypted, s.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt extraction %s: %w", e.ID, err)
		}
		if err := json.Unmarshal(plain, &e.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extraction %s: %w", e.ID, err)
		}

		e.TelegramID = telegramID
		e.CreatedAt = time.Unix(0, createdAt)
		out = append(out, e)
	}

	return out, rows.Err()
}

// DeleteExtractionsByUser removes all of a user's history.
func (s *SQLiteStore) DeleteExtractionsByUser(telegramID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM extractions WHERE telegram_id = ?", telegramID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete extractions: %w", err)
	}
	return res.RowsAffected()
}

// PruneExtractions removes extractions created before the given time.
func (s *SQLiteStore) PruneExtractions(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM extractions WHERE created_at < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune extractions: %w", err)
	}
	return res.RowsAffected()
}
