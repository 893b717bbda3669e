package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/examgate/examgate/internal/model"
)

// CreateAdminUser inserts a new administrator account.
func (s *Store) CreateAdminUser(u model.AdminUser) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO admin_users (username, display_name, password_hash, active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.DisplayName, u.PasswordHash, u.Active, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("admin username %q: %w", u.Username, model.ErrConflict)
		}
		slog.Error("failed to create admin user", "username", u.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created admin user", "id", id, "username", u.Username)
	return id, nil
}

// GetAdminByUsername returns an admin account by username, or nil.
func (s *Store) GetAdminByUsername(username string) (*model.AdminUser, error) {
	var u model.AdminUser
	err := s.db.QueryRow(
		`SELECT id, username, display_name, password_hash, active, created_at
		 FROM admin_users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetAdminByID returns an admin account by ID, or nil.
func (s *Store) GetAdminByID(id int64) (*model.AdminUser, error) {
	var u model.AdminUser
	err := s.db.QueryRow(
		`SELECT id, username, display_name, password_hash, active, created_at
		 FROM admin_users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AdminCount returns the total number of admin accounts.
func (s *Store) AdminCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM admin_users`).Scan(&count)
	return count, err
}
