package auth_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/martinvidela/chatforge/internal/domain/auth"
	"github.com/martinvidela/chatforge/internal/infra/sqlite"
	pkgauth "github.com/martinvidela/chatforge/pkg/auth"
)

func mustOpenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := sqlite.Bootstrap(db); err != nil {
		t.Fatalf("Bootstrap error = %v", err)
	}
	return db
}

func TestRegister_FirstUserBecomesAdmin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	svc := auth.NewService(mustOpenDB(t))
	ctx := context.Background()

	first, err := svc.Register(ctx, auth.RegisterInput{Email: "a@example.com", Password: "pw123456", DisplayName: "A"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if first.Role != auth.RoleAdmin {
		t.Errorf("first user role = %q, want admin", first.Role)
	}

	second, err := svc.Register(ctx, auth.RegisterInput{Email: "b@example.com", Password: "pw123456", DisplayName: "B"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if second.Role != auth.RoleMember {
		t.Errorf("second user role = %q, want member", second.Role)
	}

	claims, err := pkgauth.ParseJWT(first.Token)
	if err != nil {
		t.Fatalf("ParseJWT() error = %v", err)
	}
	if claims.UserID != first.UserID || claims.Role != auth.RoleAdmin {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	svc := auth.NewService(mustOpenDB(t))
	ctx := context.Background()

	if _, err := svc.Register(ctx, auth.RegisterInput{Email: "a@example.com", Password: "pw123456"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, err := svc.Register(ctx, auth.RegisterInput{Email: "a@example.com", Password: "other-pass"})
	if !errors.Is(err, auth.ErrEmailAlreadyExists) {
		t.Fatalf("duplicate Register() error = %v, want ErrEmailAlreadyExists", err)
	}
}

func TestLogin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	svc := auth.NewService(mustOpenDB(t))
	ctx := context.Background()

	reg, err := svc.Register(ctx, auth.RegisterInput{Email: "a@example.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := svc.Login(ctx, auth.LoginInput{Email: "a@example.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got.UserID != reg.UserID {
		t.Errorf("UserID = %q, want %q", got.UserID, reg.UserID)
	}

	// wrong password and unknown email must be indistinguishable
	if _, err := svc.Login(ctx, auth.LoginInput{Email: "a@example.com", Password: "wrong"}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong-password Login() error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, auth.LoginInput{Email: "ghost@example.com", Password: "pw123456"}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown-email Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestUserAdmin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	svc := auth.NewService(mustOpenDB(t))
	ctx := context.Background()

	admin, err := svc.Register(ctx, auth.RegisterInput{Email: "admin@example.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	member, err := svc.Register(ctx, auth.RegisterInput{Email: "member@example.com", Password: "pw123456"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	users, total, err := svc.ListUsers(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if total != 2 || len(users) != 2 {
		t.Fatalf("total = %d len = %d", total, len(users))
	}

	promoted, err := svc.UpdateUser(ctx, member.UserID, auth.UpdateUserInput{Role: auth.RoleAdmin})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if promoted.Role != auth.RoleAdmin {
		t.Errorf("role = %q, want admin", promoted.Role)
	}

	suspended, err := svc.UpdateUser(ctx, admin.UserID, auth.UpdateUserInput{Status: "suspended"})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if suspended.Status != "suspended" || suspended.Role != auth.RoleAdmin {
		t.Errorf("unexpected user %+v", suspended)
	}
	// suspended accounts cannot log in
	if _, err := svc.Login(ctx, auth.LoginInput{Email: "admin@example.com", Password: "pw123456"}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("suspended Login() error = %v, want ErrInvalidCredentials", err)
	}

	if _, err := svc.UpdateUser(ctx, "nope", auth.UpdateUserInput{Role: auth.RoleAdmin}); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("UpdateUser(unknown) error = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.UpdateUser(ctx, member.UserID, auth.UpdateUserInput{Role: "superuser"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
