package sqlite

import (
	"database/sql"
	"fmt"
)

// schema is the full DDL, applied idempotently at startup.
// Timestamps are stored as RFC3339 TEXT; booleans as INTEGER 0/1.
const schema = `
CREATE TABLE IF NOT EXISTS user_account (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'member',
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chat (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES user_account(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_user ON chat(user_id);

CREATE TABLE IF NOT EXISTS message (
	id          TEXT PRIMARY KEY,
	chat_id     TEXT NOT NULL REFERENCES chat(id) ON DELETE CASCADE,
	role        TEXT NOT NULL CHECK (role IN ('user','assistant','system')),
	content     TEXT NOT NULL,
	model_used  TEXT,
	token_count INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_chat ON message(chat_id, created_at);

CREATE TABLE IF NOT EXISTS attachment (
	id           TEXT PRIMARY KEY,
	message_id   TEXT NOT NULL REFERENCES message(id) ON DELETE CASCADE,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes   INTEGER NOT NULL,
	stored_name  TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attachment_message ON attachment(message_id);

CREATE TABLE IF NOT EXISTS model_config (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	provider      TEXT NOT NULL,
	enabled       INTEGER NOT NULL DEFAULT 1,
	temperature   REAL NOT NULL DEFAULT 0.7,
	max_tokens    INTEGER NOT NULL DEFAULT 1024,
	system_prompt TEXT NOT NULL DEFAULT '',
	endpoint      TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_template (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_record (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	chat_id    TEXT NOT NULL,
	model_name TEXT NOT NULL,
	provider   TEXT NOT NULL,
	tokens     INTEGER NOT NULL DEFAULT 0,
	cost       TEXT NOT NULL DEFAULT '0',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_user ON usage_record(user_id, created_at);
`

// Bootstrap applies the schema. Safe to call on every startup: all statements
// are IF NOT EXISTS. Schema evolution beyond this is out of scope here.
func Bootstrap(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite.Bootstrap: %w", err)
	}
	return nil
}
