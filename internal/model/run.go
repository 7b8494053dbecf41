package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// Run 一次摘要运行
type Run struct {
	ID           string
	WindowStart  time.Time
	WindowEnd    time.Time
	Status       RunStatus
	Sent         int
	Failed       int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RunModel struct {
	db  *sql.DB
	now func() time.Time
}

func NewRunModel(db *sql.DB) *RunModel {
	return &RunModel{db: db, now: time.Now}
}

// Create 创建运行记录，状态为 in_progress
func (m *RunModel) Create(ctx context.Context, windowStart, windowEnd time.Time) (*Run, error) {
	now := m.now()
	run := &Run{
		ID:          uuid.NewString(),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Status:      RunStatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO runs (id, window_start, window_end, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, windowStart.Unix(), windowEnd.Unix(), string(run.Status), now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// MarkCompleted 标记运行完成
func (m *RunModel) MarkCompleted(ctx context.Context, id string, sent, failed int) error {
	return m.update(ctx,
		`UPDATE runs SET status = ?, sent = ?, failed = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusCompleted), sent, failed, m.now().Unix(), id,
	)
}

// MarkFailed 标记运行失败
func (m *RunModel) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	return m.update(ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusFailed), errorMsg, m.now().Unix(), id,
	)
}

// Get 按ID查询
func (m *RunModel) Get(ctx context.Context, id string) (*Run, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, window_start, window_end, status, sent, failed, error_message, created_at, updated_at FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// LastCompletedEnd 最近一次完成的运行的窗口结束时间，没有记录时 ok 为 false
func (m *RunModel) LastCompletedEnd(ctx context.Context) (end time.Time, ok bool, err error) {
	var unix int64
	err = m.db.QueryRowContext(ctx,
		`SELECT window_end FROM runs WHERE status = ? ORDER BY window_end DESC LIMIT 1`,
		string(RunStatusCompleted),
	).Scan(&unix)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0), true, nil
}

func (m *RunModel) update(ctx context.Context, query string, args ...any) error {
	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var status string
	var start, end, createdAt, updatedAt int64
	err := row.Scan(&run.ID, &start, &end, &status, &run.Sent, &run.Failed, &run.ErrorMessage, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.WindowStart = time.Unix(start, 0)
	run.WindowEnd = time.Unix(end, 0)
	run.CreatedAt = time.Unix(createdAt, 0)
	run.UpdatedAt = time.Unix(updatedAt, 0)
	return &run, nil
}
