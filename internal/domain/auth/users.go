package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUserNotFound is returned by admin user operations for an unknown ID.
var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type UpdateUserInput struct {
	Role   string
	Status string
}

// ListUsers returns every account, newest first. Admin-only at the API layer.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_account`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name, role, status, created_at, updated_at
		FROM user_account ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, status, created_at, updated_at
		FROM user_account WHERE id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateUser changes role or status; empty fields are left as they are.
func (s *Service) UpdateUser(ctx context.Context, userID string, input UpdateUserInput) (*User, error) {
	existing, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	role := existing.Role
	if input.Role != "" {
		if input.Role != RoleAdmin && input.Role != RoleMember {
			return nil, fmt.Errorf("unknown role %q", input.Role)
		}
		role = input.Role
	}
	status := existing.Status
	if input.Status != "" {
		status = input.Status
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE user_account SET role = ?, status = ?, updated_at = ? WHERE id = ?`,
		role, status, now, userID); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetUser(ctx, userID)
}

type userScanner interface {
	Scan(dest ...any) error
}

func scanUser(row userScanner) (*User, error) {
	var (
		u                    User
		createdAt, updatedAt string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.Status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &u, nil
}
