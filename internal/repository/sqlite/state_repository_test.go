package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"camwatch/internal/model"
	"camwatch/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStateRepository_LoadEmpty(t *testing.T) {
	repo := NewStateRepository(setupTestDB(t))

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, repository.ErrStateNotFound)
}

func TestStateRepository_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository(setupTestDB(t))

	sentAt := time.UnixMilli(1_700_000_000_000)
	state := model.AlertState{
		ConsecutiveDangerCount: 3,
		LastLevel:              model.LevelDanger,
		LastAlertSentAt:        &sentAt,
		AlertHistory: []model.AlertRecord{
			{ID: "r1", Timestamp: sentAt, DangerLevel: model.LevelDanger, Description: "first", Reason: model.ReasonInitial},
			{ID: "r2", Timestamp: sentAt.Add(time.Second), DangerLevel: model.LevelDanger, Description: "status", Reason: model.ReasonStatusRequest},
		},
	}
	require.NoError(t, repo.Save(ctx, state))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.ConsecutiveDangerCount)
	assert.Equal(t, model.LevelDanger, loaded.LastLevel)
	require.NotNil(t, loaded.LastAlertSentAt)
	assert.Equal(t, sentAt.UnixMilli(), loaded.LastAlertSentAt.UnixMilli())
	require.Len(t, loaded.AlertHistory, 2)
	assert.Equal(t, "r1", loaded.AlertHistory[0].ID)
	assert.Equal(t, model.ReasonStatusRequest, loaded.AlertHistory[1].Reason)
}

func TestStateRepository_SaveReplacesHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository(setupTestDB(t))

	long := model.AlertState{}
	for i := 0; i < 5; i++ {
		long.AlertHistory = append(long.AlertHistory, model.AlertRecord{
			ID: fmt.Sprintf("r%d", i), Timestamp: time.UnixMilli(int64(i)), DangerLevel: model.LevelDanger, Reason: model.ReasonInitial,
		})
	}
	require.NoError(t, repo.Save(ctx, long))

	short := model.AlertState{LastLevel: model.LevelSafe, AlertHistory: long.AlertHistory[3:]}
	require.NoError(t, repo.Save(ctx, short))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded.LastAlertSentAt)
	assert.Equal(t, model.LevelSafe, loaded.LastLevel)
	require.Len(t, loaded.AlertHistory, 2)
	assert.Equal(t, "r3", loaded.AlertHistory[0].ID)
	assert.Equal(t, "r4", loaded.AlertHistory[1].ID)
}

func TestStateRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository(setupTestDB(t))

	require.NoError(t, repo.Save(ctx, model.AlertState{ConsecutiveDangerCount: 2, LastLevel: model.LevelDanger}))
	require.NoError(t, repo.Delete(ctx))

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, repository.ErrStateNotFound)
}

func TestNew_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, NewStateRepository(db).Save(ctx, model.AlertState{ConsecutiveDangerCount: 7, LastLevel: model.LevelDanger}))
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	loaded, err := NewStateRepository(db).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.ConsecutiveDangerCount)
}

func TestStateRepository_UnknownStoredLevelLoadsAsUnset(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewStateRepository(db)

	require.NoError(t, repo.Save(ctx, model.AlertState{ConsecutiveDangerCount: 2, LastLevel: model.LevelDanger}))
	_, err := db.Conn().ExecContext(ctx, `UPDATE alert_state SET last_danger_level = 'PANIC', consecutive_danger_count = -4 WHERE id = 1`)
	require.NoError(t, err)

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.LevelUnset, loaded.LastLevel)
	assert.Equal(t, 0, loaded.ConsecutiveDangerCount)
}
