package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"camwatch/internal/model"
	"camwatch/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRepository_LoadMissingFile(t *testing.T) {
	repo := NewStateRepository(filepath.Join(t.TempDir(), "state.json"))

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, repository.ErrStateNotFound)
}

func TestStateRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	repo := NewStateRepository(path)

	sentAt := time.UnixMilli(1_700_000_000_123)
	state := model.AlertState{
		ConsecutiveDangerCount: 4,
		LastLevel:              model.LevelDanger,
		LastAlertSentAt:        &sentAt,
		AlertHistory: []model.AlertRecord{
			{ID: "a", Timestamp: sentAt, DangerLevel: model.LevelDanger, Description: "intruder", Reason: model.ReasonInitial},
		},
	}

	require.NoError(t, repo.Save(ctx, state))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.ConsecutiveDangerCount)
	assert.Equal(t, model.LevelDanger, loaded.LastLevel)
	require.NotNil(t, loaded.LastAlertSentAt)
	assert.True(t, sentAt.Equal(*loaded.LastAlertSentAt))
	require.Len(t, loaded.AlertHistory, 1)
	assert.Equal(t, "intruder", loaded.AlertHistory[0].Description)
	assert.Equal(t, model.ReasonInitial, loaded.AlertHistory[0].Reason)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestStateRepository_ReadsLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".sms-state.json")
	legacy := `{
  "consecutiveDangerCount": 3,
  "lastAlertSentTime": 1700000000000,
  "lastDangerLevel": "DANGER",
  "alertHistory": [
    {"timestamp": 1700000000000, "dangerLevel": "DANGER", "description": "person with knife", "reason": "initial"},
    {"timestamp": 1700000005000, "dangerLevel": "DANGER", "description": "Status requested by user", "reason": "response_1"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	state, err := NewStateRepository(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, state.ConsecutiveDangerCount)
	assert.Equal(t, model.LevelDanger, state.LastLevel)
	require.NotNil(t, state.LastAlertSentAt)
	assert.Equal(t, int64(1700000000000), state.LastAlertSentAt.UnixMilli())
	require.Len(t, state.AlertHistory, 2)
	assert.Equal(t, model.ReasonStatusRequest, state.AlertHistory[1].Reason)
}

func TestStateRepository_NullFieldsLoadAsUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"consecutiveDangerCount":0,"lastAlertSentTime":null,"lastDangerLevel":null,"alertHistory":[]}`), 0644))

	state, err := NewStateRepository(path).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state.LastAlertSentAt)
	assert.Equal(t, model.LevelUnset, state.LastLevel)
	assert.Empty(t, state.AlertHistory)
}

func TestStateRepository_UnknownStoredLevelLoadsAsUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"consecutiveDangerCount":2,"lastAlertSentTime":null,"lastDangerLevel":"PANIC","alertHistory":[]}`), 0644))

	state, err := NewStateRepository(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LevelUnset, state.LastLevel)
	assert.Equal(t, 2, state.ConsecutiveDangerCount)
}

func TestStateRepository_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewStateRepository(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrStateNotFound)
}

func TestStateRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepository(filepath.Join(t.TempDir(), "state.json"))

	require.NoError(t, repo.Delete(ctx), "deleting a missing file is fine")
	require.NoError(t, repo.Save(ctx, model.AlertState{ConsecutiveDangerCount: 1}))
	require.NoError(t, repo.Delete(ctx))

	_, err := repo.Load(ctx)
	assert.ErrorIs(t, err, repository.ErrStateNotFound)
}
