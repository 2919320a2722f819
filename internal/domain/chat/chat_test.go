package chat

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/martinvidela/chatforge/internal/domain/model"
	"github.com/martinvidela/chatforge/internal/infra/eventbus"
	"github.com/martinvidela/chatforge/internal/infra/filestore"
	"github.com/martinvidela/chatforge/internal/infra/provider"
	"github.com/martinvidela/chatforge/internal/infra/sqlite"
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

func mustInsertUser(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO user_account (id, email, password_hash, display_name, role, status, created_at, updated_at)
		 VALUES (?, ?, 'x', 'Test', 'member', 'active', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`,
		id, id+"@example.com")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := mustOpenDB(t)
	files, err := filestore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal error = %v", err)
	}
	svc := NewService(db, model.NewService(db), files, provider.Credentials{}, eventbus.New())
	mustInsertUser(t, db, "u1")
	mustInsertUser(t, db, "u2")
	return svc
}

func TestService_CreateChat_DefaultTitle(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	c, err := svc.CreateChat(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if c.Title != "New Chat" {
		t.Errorf("title = %q, want New Chat", c.Title)
	}
}

func TestService_GetChat_Ownership(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateChat(ctx, "u1", "mine")
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	if _, err := svc.GetChat(ctx, "u2", c.ID); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("GetChat() as other user error = %v, want ErrChatNotFound", err)
	}
	if _, err := svc.ListMessages(ctx, "u2", c.ID); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("ListMessages() as other user error = %v, want ErrChatNotFound", err)
	}
	if err := svc.DeleteChat(ctx, "u2", c.ID); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("DeleteChat() as other user error = %v, want ErrChatNotFound", err)
	}
}

func TestService_ListChats_RecentFirst(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateChat(ctx, "u1", "first")
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if _, err := svc.CreateChat(ctx, "u1", "second"); err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	// activity on the first chat should bring it back to the top
	svc.touchChat(ctx, first.ID)

	chats, total, err := svc.ListChats(ctx, "u1", 10, 0)
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	if total != 2 || len(chats) != 2 {
		t.Fatalf("total = %d len = %d", total, len(chats))
	}
	if chats[0].ID != first.ID {
		t.Errorf("expected touched chat first, got %q", chats[0].Title)
	}
}

func TestService_RenameAndDelete(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateChat(ctx, "u1", "old")
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	renamed, err := svc.RenameChat(ctx, "u1", c.ID, "new")
	if err != nil {
		t.Fatalf("RenameChat() error = %v", err)
	}
	if renamed.Title != "new" {
		t.Errorf("title = %q", renamed.Title)
	}
	if err := svc.DeleteChat(ctx, "u1", c.ID); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	if _, err := svc.GetChat(ctx, "u1", c.ID); !errors.Is(err, ErrChatNotFound) {
		t.Fatalf("GetChat() after delete error = %v", err)
	}
}

func TestService_DeleteMessage_Idempotent(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateChat(ctx, "u1", "")
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	m, err := svc.appendMessage(ctx, c.ID, provider.RoleUser, "hello", "", 0, nil)
	if err != nil {
		t.Fatalf("appendMessage() error = %v", err)
	}
	if err := svc.deleteMessage(ctx, m.ID); err != nil {
		t.Fatalf("deleteMessage() error = %v", err)
	}
	if err := svc.deleteMessage(ctx, m.ID); err != nil {
		t.Fatalf("second deleteMessage() error = %v", err)
	}
}
