// Package auth implements Register and Login: user creation, password
// hashing, and JWT issuance.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/martinvidela/chatforge/pkg/auth"
)

// ErrInvalidCredentials is returned by Login when email or password is
// incorrect. A single error for both cases avoids leaking whether the email
// exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailAlreadyExists is returned by Register when the email is taken.
var ErrEmailAlreadyExists = errors.New("email already registered")

// User roles. The first registered user becomes the admin; everyone after
// that is a member until an admin promotes them.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type LoginInput struct {
	Email    string
	Password string
}

// Result is returned after a successful Register or Login. Token is a signed
// JWT carrying the user ID and role.
type Result struct {
	Token  string
	UserID string
	Role   string
}

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Register creates a user and returns a JWT. The password is hashed with
// bcrypt before storage; plaintext is never written anywhere.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Result, error) {
	if input.Email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}
	hash, err := pkgauth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID := uuid.New().String()
	role, err := s.insertUser(ctx, userID, input.Email, hash, input.DisplayName)
	if err != nil {
		return nil, err
	}

	token, err := pkgauth.GenerateJWT(userID, role)
	if err != nil {
		return nil, fmt.Errorf("generate JWT: %w", err)
	}
	return &Result{Token: token, UserID: userID, Role: role}, nil
}

// insertUser creates the user row inside a transaction so the first-user
// admin promotion cannot race a concurrent registration.
func (s *Service) insertUser(ctx context.Context, userID, email, passwordHash, displayName string) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_account`).Scan(&existing); err != nil {
		return "", fmt.Errorf("count users: %w", err)
	}
	role := RoleMember
	if existing == 0 {
		role = RoleAdmin
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_account (id, email, password_hash, display_name, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'active', ?, ?)
	`, userID, email, passwordHash, displayName, role, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrEmailAlreadyExists
		}
		return "", fmt.Errorf("create user: %w", err)
	}
	return role, tx.Commit()
}

// Login verifies credentials and returns a JWT. Any failure, email not found
// or wrong password, yields the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, input LoginInput) (*Result, error) {
	var (
		userID, role string
		passwordHash sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, role, password_hash
		FROM user_account
		WHERE email = ? AND status = 'active'
		LIMIT 1
	`, input.Email).Scan(&userID, &role, &passwordHash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !passwordHash.Valid || passwordHash.String == "" {
		return nil, ErrInvalidCredentials
	}
	if !pkgauth.VerifyPassword(passwordHash.String, input.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := pkgauth.GenerateJWT(userID, role)
	if err != nil {
		return nil, fmt.Errorf("generate JWT: %w", err)
	}
	return &Result{Token: token, UserID: userID, Role: role}, nil
}

// isUniqueViolation checks for an SQLite UNIQUE constraint failure, which
// modernc surfaces only through the error message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
