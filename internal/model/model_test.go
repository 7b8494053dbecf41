package model

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "test.db")+"?mode=rwc&_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, Migrate(context.Background(), db))
}

func TestRunModel_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewRunModel(openTestDB(t))

	_, ok, err := m.LastCompletedEnd(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	first, err := m.Create(ctx, start, start.Add(8*time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, RunStatusInProgress, first.Status)

	// 进行中的运行不计入
	_, ok, err = m.LastCompletedEnd(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.MarkCompleted(ctx, first.ID, 3, 1))
	got, err := m.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, 3, got.Sent)
	assert.Equal(t, 1, got.Failed)
	assert.True(t, got.WindowEnd.Equal(start.Add(8*time.Hour)))

	second, err := m.Create(ctx, start.Add(8*time.Hour), start.Add(16*time.Hour))
	require.NoError(t, err)
	require.NoError(t, m.MarkFailed(ctx, second.ID, "登录失败"))

	end, ok, err := m.LastCompletedEnd(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, end.Equal(start.Add(8*time.Hour)), "失败的运行不应推进上次运行时间")

	failed, err := m.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, failed.Status)
	assert.Equal(t, "登录失败", failed.ErrorMessage)
}

func TestRunModel_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewRunModel(openTestDB(t))

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.MarkCompleted(ctx, "missing", 0, 0), ErrNotFound)
}

func TestDigestModel(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runs := NewRunModel(db)
	digests := NewDigestModel(db)

	run, err := runs.Create(ctx, time.Unix(0, 0), time.Unix(3600, 0))
	require.NoError(t, err)

	require.NoError(t, digests.Create(ctx, &DigestData{RunID: run.ID, TopicID: 7, TopicTitle: "Alpha", Status: "success", MessageCount: 50, Content: "摘要"}))
	require.NoError(t, digests.Create(ctx, &DigestData{RunID: run.ID, TopicID: 9, TopicTitle: "Beta", Status: "blocked"}))

	list, err := digests.ListByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].TopicTitle)
	assert.Equal(t, 50, list[0].MessageCount)
	assert.Equal(t, "blocked", list[1].Status)

	empty, err := digests.ListByRun(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
