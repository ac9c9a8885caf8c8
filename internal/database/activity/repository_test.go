package activity

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/caresync/internal/database"
	"github.com/mrlokans/caresync/internal/entities"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "activity.db"), database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB)
}

func TestRepository_LogEvent(t *testing.T) {
	repo := setupTestDB(t)

	event := &entities.ActivityEvent{
		Type:        entities.ActivityConnectivity,
		Action:      "went_offline",
		Description: "Remote service unreachable",
		Status:      entities.ActivityStatusInfo,
	}

	err := repo.LogEvent(event)
	require.NoError(t, err)
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestRepository_GetEvents(t *testing.T) {
	repo := setupTestDB(t)

	for i := 0; i < 15; i++ {
		eventType := entities.ActivitySync
		if i%3 == 0 {
			eventType = entities.ActivityEviction
		}
		err := repo.LogEvent(&entities.ActivityEvent{
			Type:      eventType,
			Action:    "test",
			Status:    entities.ActivityStatusSuccess,
			CreatedAt: time.Now().Add(time.Duration(-i) * time.Hour),
		})
		require.NoError(t, err)
	}

	t.Run("first page", func(t *testing.T) {
		events, total, err := repo.GetEvents("", 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(15), total)
		assert.Len(t, events, 10)
		assert.True(t, events[0].CreatedAt.After(events[9].CreatedAt))
	})

	t.Run("second page", func(t *testing.T) {
		events, _, err := repo.GetEvents("", 10, 10)
		require.NoError(t, err)
		assert.Len(t, events, 5)
	})

	t.Run("by type", func(t *testing.T) {
		events, total, err := repo.GetEvents(entities.ActivityEviction, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		for _, e := range events {
			assert.Equal(t, entities.ActivityEviction, e.Type)
		}
	})
}

func TestRepository_GetEntityEvents(t *testing.T) {
	repo := setupTestDB(t)

	require.NoError(t, repo.LogEvent(&entities.ActivityEvent{
		Type: entities.ActivityEviction, Action: "mutation_evicted",
		EntityKind: entities.KindPatient, EntityLocalID: "p1",
	}))
	require.NoError(t, repo.LogEvent(&entities.ActivityEvent{
		Type: entities.ActivityEviction, Action: "mutation_evicted",
		EntityKind: entities.KindPatient, EntityLocalID: "p2",
	}))

	events, err := repo.GetEntityEvents(entities.KindPatient, "p1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "p1", events[0].EntityLocalID)
}

func TestRepository_DeleteOldEvents(t *testing.T) {
	repo := setupTestDB(t)

	require.NoError(t, repo.LogEvent(&entities.ActivityEvent{Type: entities.ActivitySync, CreatedAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, repo.LogEvent(&entities.ActivityEvent{Type: entities.ActivitySync}))

	deleted, err := repo.DeleteOldEvents(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := repo.GetEvents("", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
