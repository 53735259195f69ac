package storage

import (
	"database/sql"
	"fmt"
)

// PermissionStatus is a user's answer to a device permission prompt.
type PermissionStatus string

const (
	// PermissionUnknown means the user was never asked.
	PermissionUnknown PermissionStatus = ""
	PermissionGranted PermissionStatus = "granted"
	PermissionDenied  PermissionStatus = "denied"
)

// GetPermission returns the stored status for resource.
func (s *SQLiteStore) GetPermission(telegramID int64, resource string) (PermissionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var status string
	err := s.db.QueryRow(
		"SELECT status FROM permissions WHERE telegram_id = ? AND resource = ?",
		telegramID, resource,
	).Scan(&status)

	if err == sql.ErrNoRows {
		return PermissionUnknown, nil
	}
	if err != nil {
		return PermissionUnknown, fmt.Errorf("failed to query permission: %w", err)
	}
	return PermissionStatus(status), nil
}

// SetPermission records the user's answer for resource.
func (s *SQLiteStore) SetPermission(telegramID int64, resource string, status PermissionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO permissions (telegram_id, resource, status)
		VALUES (?, ?, ?)
		ON CONFLICT(telegram_id, resource) DO UPDATE SET
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP
	`, telegramID, resource, string(status))

	if err != nil {
		return fmt.Errorf("failed to set permission: %w", err)
	}
	return nil
}

// RevokePermission forgets the answer for resource so the user is asked again.
func (s *SQLiteStore) RevokePermission(telegramID int64, resource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM permissions WHERE telegram_id = ? AND resource = ?", telegramID, resource)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	return nil
}
