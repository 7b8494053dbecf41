package model

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	window_start  INTEGER NOT NULL,
	window_end    INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'in_progress',
	sent          INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_status_end ON runs (status, window_end);

CREATE TABLE IF NOT EXISTS digests (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	topic_id      INTEGER NOT NULL,
	topic_title   TEXT NOT NULL,
	status        TEXT NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0,
	content       TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_digests_run ON digests (run_id);
`

// Migrate 创建运行记录所需的表
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("创建数据库Schema失败: %w", err)
	}
	return nil
}
