package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/inventura/internal/db"
	"github.com/erazemk/inventura/internal/model"
)

const userColumns = `id, username, password_hash, role, unit_id, created_at, deleted_at`

func scanUser(s Scanner) (*model.User, error) {
	u := &model.User{}
	if err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.UnitID, &u.CreatedAt, &u.DeletedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new user in unitID.
func CreateUser(ctx context.Context, conn *db.DB, username, passwordHash, role, unitID string) (*model.User, error) {
	var id int64
	err := conn.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, role, unit_id) VALUES (?, ?, ?, ?) RETURNING id`,
		username, passwordHash, role, unitID,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return GetUser(ctx, conn, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, conn *db.DB, id int64) (*model.User, error) {
	u, err := scanUser(conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with username.
func GetUserByUsername(ctx context.Context, conn *db.DB, username string) (*model.User, error) {
	u, err := scanUser(conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, conn *db.DB) ([]model.User, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of non-deleted users.
func CountUsers(ctx context.Context, conn *db.DB) (int, error) {
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// UpdateUser updates a user's role and unit.
func UpdateUser(ctx context.Context, conn *db.DB, id int64, role, unitID string) error {
	_, err := conn.ExecContext(ctx,
		`UPDATE users SET role = ?, unit_id = ? WHERE id = ? AND deleted_at IS NULL`,
		role, unitID, id,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, conn *db.DB, id int64, passwordHash string) error {
	_, err := conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, conn *db.DB, id int64) error {
	_, err := conn.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
