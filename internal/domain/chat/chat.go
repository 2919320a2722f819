// Package chat owns conversations and their messages, including the send
// pipeline that carries a user message to an AI provider and persists the
// reply.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/martinvidela/chatforge/internal/domain/model"
	"github.com/martinvidela/chatforge/internal/infra/eventbus"
	"github.com/martinvidela/chatforge/internal/infra/filestore"
	"github.com/martinvidela/chatforge/internal/infra/provider"
)

// ErrChatNotFound covers both a missing chat and one owned by another user.
var ErrChatNotFound = errors.New("chat not found")

// ErrEmptyMessage is returned when a send carries neither text nor files.
var ErrEmptyMessage = errors.New("message has no content")

// ErrMissingModel is returned when a send names no model.
var ErrMissingModel = errors.New("model name is required")

const defaultChatTitle = "New Chat"

// timeLayout is RFC3339 with a fixed-width fraction so stored timestamps
// sort lexicographically, which is what ORDER BY created_at relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chatId"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	ModelUsed   *string      `json:"modelUsed,omitempty"`
	TokenCount  int          `json:"tokenCount"`
	CreatedAt   time.Time    `json:"createdAt"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"messageId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	StoredName  string    `json:"storedName"`
	CreatedAt   time.Time `json:"createdAt"`

	// StoragePath is server-internal and never serialized.
	StoragePath string `json:"-"`
}

// ModelFinder resolves the enabled model configuration a send names.
type ModelFinder interface {
	FindEnabledByName(ctx context.Context, name string) (*model.Config, error)
}

// FileStore persists uploaded attachment bytes and reads them back for the
// provider adapters.
type FileStore interface {
	Save(data []byte, name, contentType string) (filestore.Descriptor, error)
	Read(path string) ([]byte, error)
}

type Service struct {
	db     *sql.DB
	models ModelFinder
	files  FileStore
	creds  provider.Credentials
	bus    eventbus.EventBus

	// newProvider is the adapter factory, swappable in tests.
	newProvider func(provider.ModelSpec, provider.Credentials, provider.FileReader) (provider.Provider, error)

	inflight inflightRegistry
}

func NewService(db *sql.DB, models ModelFinder, files FileStore, creds provider.Credentials, bus eventbus.EventBus) *Service {
	return &Service{
		db:          db,
		models:      models,
		files:       files,
		creds:       creds,
		bus:         bus,
		newProvider: provider.New,
	}
}

func (s *Service) CreateChat(ctx context.Context, userID, title string) (*Chat, error) {
	if title == "" {
		title = defaultChatTitle
	}
	id := uuid.New().String()
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return s.GetChat(ctx, userID, id)
}

// GetChat enforces ownership: a chat belonging to another user is reported
// as missing.
func (s *Service) GetChat(ctx context.Context, userID, chatID string) (*Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chat WHERE id = ? AND user_id = ?`,
		chatID, userID)
	var (
		c                    Chat
		createdAt, updatedAt string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

// ListChats returns the user's chats, most recently active first.
func (s *Service) ListChats(ctx context.Context, userID string, limit, offset int) ([]*Chat, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count chats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chat WHERE user_id = ? ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []*Chat
	for rows.Next() {
		var (
			c                    Chat
			createdAt, updatedAt string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &createdAt, &updatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan chat: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, &c)
	}
	return out, total, rows.Err()
}

func (s *Service) RenameChat(ctx context.Context, userID, chatID, title string) (*Chat, error) {
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(timeLayout)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat SET title = ?, updated_at = ? WHERE id = ?`, title, now, chatID); err != nil {
		return nil, fmt.Errorf("rename chat: %w", err)
	}
	return s.GetChat(ctx, userID, chatID)
}

// DeleteChat removes a chat; messages and attachments cascade.
func (s *Service) DeleteChat(ctx context.Context, userID, chatID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat WHERE id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrChatNotFound
	}
	return nil
}

// ListMessages returns a chat's messages oldest first, attachments included.
func (s *Service) ListMessages(ctx context.Context, userID, chatID string) ([]*Message, error) {
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.listMessages(ctx, chatID)
}

func (s *Service) listMessages(ctx context.Context, chatID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, model_used, token_count, created_at
		 FROM message WHERE chat_id = ? ORDER BY created_at, id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	byID := map[string]*Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	atts, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.message_id, a.filename, a.content_type, a.size_bytes, a.stored_name, a.storage_path, a.created_at
		 FROM attachment a JOIN message m ON m.id = a.message_id WHERE m.chat_id = ?`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer atts.Close()

	for atts.Next() {
		var (
			a         Attachment
			createdAt string
		)
		if err := atts.Scan(&a.ID, &a.MessageID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.StoredName, &a.StoragePath, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if m, ok := byID[a.MessageID]; ok {
			m.Attachments = append(m.Attachments, a)
		}
	}
	return out, atts.Err()
}

func scanMessage(rows *sql.Rows) (*Message, error) {
	var (
		m         Message
		modelUsed sql.NullString
		createdAt string
	)
	if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &modelUsed, &m.TokenCount, &createdAt); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if modelUsed.Valid {
		m.ModelUsed = &modelUsed.String
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

// appendMessage persists a message row plus its attachment rows. The caller
// is responsible for passing a context that survives request cancellation.
func (s *Service) appendMessage(ctx context.Context, chatID, role, content string, modelUsed string, tokenCount int, descriptors []filestore.Descriptor) (*Message, error) {
	m := &Message{
		ID:         uuid.New().String(),
		ChatID:     chatID,
		Role:       role,
		Content:    content,
		TokenCount: tokenCount,
		CreatedAt:  time.Now().UTC(),
	}
	if modelUsed != "" {
		m.ModelUsed = &modelUsed
	}
	createdAt := m.CreatedAt.Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var modelVal sql.NullString
	if m.ModelUsed != nil {
		modelVal = sql.NullString{String: *m.ModelUsed, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message (id, chat_id, role, content, model_used, token_count, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, chatID, role, content, modelVal, tokenCount, createdAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	for _, d := range descriptors {
		a := Attachment{
			ID:          uuid.New().String(),
			MessageID:   m.ID,
			Filename:    d.Filename,
			ContentType: d.ContentType,
			SizeBytes:   d.SizeBytes,
			StoredName:  d.StoredName,
			StoragePath: d.StoragePath,
			CreatedAt:   m.CreatedAt,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachment (id, message_id, filename, content_type, size_bytes, stored_name, storage_path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.MessageID, a.Filename, a.ContentType, a.SizeBytes, a.StoredName, a.StoragePath, createdAt); err != nil {
			return nil, fmt.Errorf("insert attachment: %w", err)
		}
		m.Attachments = append(m.Attachments, a)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return m, nil
}

// deleteMessage is idempotent: deleting an already-removed message is a no-op.
func (s *Service) deleteMessage(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM message WHERE id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// touchChat bumps updated_at so the chat surfaces at the top of listings.
func (s *Service) touchChat(ctx context.Context, chatID string) {
	now := time.Now().UTC().Format(timeLayout)
	_, _ = s.db.ExecContext(ctx, `UPDATE chat SET updated_at = ? WHERE id = ?`, now, chatID)
}
