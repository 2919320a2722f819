// Package usage records per-exchange token consumption and cost. The
// recorder consumes send-completion events off the request path, so a slow
// insert never delays a chat response.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/martinvidela/chatforge/internal/domain/chat"
	"github.com/martinvidela/chatforge/internal/infra/eventbus"
	"github.com/martinvidela/chatforge/internal/infra/provider"
)

// ratePerThousandTokens is the billed rate per provider, in USD per 1000
// tokens. Providers that never report usage (ollama, and openai's document
// path) accrue zero cost regardless.
var ratePerThousandTokens = map[string]decimal.Decimal{
	provider.KindOpenAI: decimal.NewFromFloat(0.01),
	provider.KindClaude: decimal.NewFromFloat(0.012),
	provider.KindGroq:   decimal.NewFromFloat(0.0008),
}

type Record struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	ChatID    string          `json:"chatId"`
	ModelName string          `json:"modelName"`
	Provider  string          `json:"provider"`
	Tokens    int             `json:"tokens"`
	Cost      decimal.Decimal `json:"cost"`
	CreatedAt time.Time       `json:"createdAt"`
}

// UserTotal aggregates a user's consumption for the admin report.
type UserTotal struct {
	UserID    string          `json:"userId"`
	Exchanges int             `json:"exchanges"`
	Tokens    int             `json:"tokens"`
	Cost      decimal.Decimal `json:"cost"`
}

type Recorder struct {
	db  *sql.DB
	bus eventbus.EventBus
}

func NewRecorder(db *sql.DB, bus eventbus.EventBus) *Recorder {
	return &Recorder{db: db, bus: bus}
}

// Start consumes send-completion events until ctx is done. Run it in its own
// goroutine; insert failures are logged, never fatal.
func (r *Recorder) Start(ctx context.Context) {
	events := r.bus.Subscribe(chat.TopicMessageSent)
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			sent, ok := evt.Payload.(chat.SentEvent)
			if !ok {
				continue
			}
			if err := r.Record(ctx, sent); err != nil {
				slog.Error("failed to record usage", "chatId", sent.ChatID, "error", err)
			}
		}
	}
}

// Record writes one usage row for a completed exchange.
func (r *Recorder) Record(ctx context.Context, sent chat.SentEvent) error {
	cost := costFor(sent.Provider, sent.Tokens)
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage_record (id, user_id, chat_id, model_name, provider, tokens, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), sent.UserID, sent.ChatID, sent.ModelName, sent.Provider,
		sent.Tokens, cost.String(), now)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// costFor computes tokens * rate / 1000 exactly; costs are money, so no
// float arithmetic.
func costFor(providerKind string, tokens int) decimal.Decimal {
	rate, ok := ratePerThousandTokens[providerKind]
	if !ok || tokens == 0 {
		return decimal.Zero
	}
	return rate.Mul(decimal.NewFromInt(int64(tokens))).Div(decimal.NewFromInt(1000))
}

// List returns usage rows, newest first, optionally filtered to one user.
func (r *Recorder) List(ctx context.Context, userID string, limit, offset int) ([]*Record, int, error) {
	where, args := "", []any{}
	if userID != "" {
		where = " WHERE user_id = ?"
		args = append(args, userID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_record`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count usage: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, chat_id, model_name, provider, tokens, cost, created_at
		FROM usage_record`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			rec             Record
			cost, createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ChatID, &rec.ModelName, &rec.Provider, &rec.Tokens, &cost, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan usage record: %w", err)
		}
		rec.Cost, err = decimal.NewFromString(cost)
		if err != nil {
			return nil, 0, fmt.Errorf("parse cost %q: %w", cost, err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &rec)
	}
	return out, total, rows.Err()
}

// TotalsByUser aggregates exchanges, tokens, and cost per user.
func (r *Recorder) TotalsByUser(ctx context.Context) ([]*UserTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, COUNT(*), COALESCE(SUM(tokens), 0)
		FROM usage_record GROUP BY user_id ORDER BY SUM(tokens) DESC`)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	defer rows.Close()

	var out []*UserTotal
	for rows.Next() {
		var t UserTotal
		if err := rows.Scan(&t.UserID, &t.Exchanges, &t.Tokens); err != nil {
			return nil, fmt.Errorf("scan usage total: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Costs are stored as decimal strings, so the sum happens here rather
	// than in SQL where it would degrade to floats.
	for _, t := range out {
		costRows, err := r.db.QueryContext(ctx, `SELECT cost FROM usage_record WHERE user_id = ?`, t.UserID)
		if err != nil {
			return nil, fmt.Errorf("sum costs: %w", err)
		}
		sum := decimal.Zero
		for costRows.Next() {
			var cost string
			if err := costRows.Scan(&cost); err != nil {
				costRows.Close()
				return nil, fmt.Errorf("scan cost: %w", err)
			}
			d, err := decimal.NewFromString(cost)
			if err != nil {
				costRows.Close()
				return nil, fmt.Errorf("parse cost %q: %w", cost, err)
			}
			sum = sum.Add(d)
		}
		if err := costRows.Err(); err != nil {
			costRows.Close()
			return nil, err
		}
		costRows.Close()
		t.Cost = sum
	}
	return out, nil
}
