package model

import (
	"context"
	"database/sql"
	"time"
)

type DigestModel struct {
	db *sql.DB
}

func NewDigestModel(db *sql.DB) *DigestModel {
	return &DigestModel{db: db}
}

// DigestData 一个话题的摘要记录
type DigestData struct {
	RunID        string
	TopicID      int64
	TopicTitle   string
	Status       string
	MessageCount int
	Content      string
	CreatedAt    time.Time
}

// Create 保存摘要
func (m *DigestModel) Create(ctx context.Context, data *DigestData) error {
	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO digests (run_id, topic_id, topic_title, status, message_count, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		data.RunID, data.TopicID, data.TopicTitle, data.Status, data.MessageCount, data.Content, createdAt.Unix(),
	)
	return err
}

// ListByRun 查询某次运行的所有摘要，按写入顺序
func (m *DigestModel) ListByRun(ctx context.Context, runID string) ([]*DigestData, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT run_id, topic_id, topic_title, status, message_count, content, created_at FROM digests WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var digests []*DigestData
	for rows.Next() {
		var (
			d         DigestData
			createdAt int64
		)
		if err := rows.Scan(&d.RunID, &d.TopicID, &d.TopicTitle, &d.Status, &d.MessageCount, &d.Content, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt = time.Unix(createdAt, 0)
		digests = append(digests, &d)
	}
	return digests, rows.Err()
}
