package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/chatagent/pkg/models"
)

// runStoreSuite exercises a StoreSet against the behavior every backend must share.
func runStoreSuite(t *testing.T, stores StoreSet) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("memory", func(t *testing.T) {
		require.NoError(t, stores.Memory.PutMemory(ctx, "s1", models.MemoryEntry{
			Key: "color", Value: "blue", CreatedAt: base, UpdatedAt: base,
		}))
		require.NoError(t, stores.Memory.PutMemory(ctx, "s1", models.MemoryEntry{
			Key: "city", Value: "Oslo", CreatedAt: base.Add(time.Second), UpdatedAt: base.Add(time.Second),
		}))
		require.NoError(t, stores.Memory.PutMemory(ctx, "s2", models.MemoryEntry{
			Key: "color", Value: "red", CreatedAt: base, UpdatedAt: base,
		}))

		// Upsert keeps the stored created_at.
		require.NoError(t, stores.Memory.PutMemory(ctx, "s1", models.MemoryEntry{
			Key: "color", Value: "green", CreatedAt: base, UpdatedAt: base.Add(time.Minute),
		}))

		got, err := stores.Memory.GetMemory(ctx, "s1", "color")
		require.NoError(t, err)
		assert.Equal(t, "green", got.Value)
		assert.True(t, got.CreatedAt.Equal(base))
		assert.True(t, got.UpdatedAt.Equal(base.Add(time.Minute)))

		list, err := stores.Memory.ListMemory(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "color", list[0].Key)
		assert.Equal(t, "city", list[1].Key)

		_, err = stores.Memory.GetMemory(ctx, "s1", "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, stores.Memory.DeleteMemory(ctx, "s1", "city"))
		assert.ErrorIs(t, stores.Memory.DeleteMemory(ctx, "s1", "city"), ErrNotFound)

		require.NoError(t, stores.Memory.ClearMemory(ctx, "s1"))
		list, err = stores.Memory.ListMemory(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, list)

		other, err := stores.Memory.GetMemory(ctx, "s2", "color")
		require.NoError(t, err)
		assert.Equal(t, "red", other.Value)
	})

	t.Run("schedules", func(t *testing.T) {
		first := &models.ScheduledTask{
			ID: "t1", SessionID: "s1", Trigger: models.After(10), Callback: "executeTask",
			Description: "water plants", NextRun: base.Add(10 * time.Second), CreatedAt: base,
		}
		second := &models.ScheduledTask{
			ID: "t2", SessionID: "s1", Trigger: models.Cron("0 9 * * *"), Callback: "executeTask",
			Description: "standup", NextRun: base.Add(time.Hour), CreatedAt: base.Add(time.Second),
		}
		third := &models.ScheduledTask{
			ID: "t3", SessionID: "s2", Trigger: models.At(base.Add(time.Minute)), Callback: "executeTask",
			Description: "other session", NextRun: base.Add(time.Minute), CreatedAt: base.Add(2 * time.Second),
		}
		for _, task := range []*models.ScheduledTask{first, second, third} {
			require.NoError(t, stores.Schedules.SaveTask(ctx, task))
		}

		list, err := stores.Schedules.ListTasks(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "t1", list[0].ID)
		assert.Equal(t, models.TriggerCron, list[1].Trigger.Kind)
		assert.Equal(t, "0 9 * * *", list[1].Trigger.Cron)

		all, err := stores.Schedules.ListTasks(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		due, err := stores.Schedules.DueTasks(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "t1", due[0].ID)
		assert.Equal(t, "t3", due[1].ID)

		second.NextRun = base.Add(24 * time.Hour)
		second.LastRun = base.Add(time.Hour)
		require.NoError(t, stores.Schedules.SaveTask(ctx, second))
		got, err := stores.Schedules.GetTask(ctx, "t2")
		require.NoError(t, err)
		assert.True(t, got.NextRun.Equal(base.Add(24*time.Hour)))
		assert.True(t, got.LastRun.Equal(base.Add(time.Hour)))

		require.NoError(t, stores.Schedules.DeleteTask(ctx, "t1"))
		assert.ErrorIs(t, stores.Schedules.DeleteTask(ctx, "t1"), ErrNotFound)
		_, err = stores.Schedules.GetTask(ctx, "t1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("history", func(t *testing.T) {
		empty, err := stores.History.LoadHistory(ctx, "fresh")
		require.NoError(t, err)
		assert.Empty(t, empty)

		history := []models.Message{
			{ID: "m1", Role: models.RoleUser, Content: "hi", CreatedAt: base},
			{ID: "m2", Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
				{ID: "c1", Name: "getLocalTime", Input: []byte(`{"location":"Paris"}`),
					Result: &models.ToolResult{ToolCallID: "c1", Content: "10am"}},
			}, CreatedAt: base},
		}
		require.NoError(t, stores.History.SaveHistory(ctx, "s1", history))

		loaded, err := stores.History.LoadHistory(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		require.NotNil(t, loaded[1].ToolCalls[0].Result)
		assert.Equal(t, "10am", loaded[1].ToolCalls[0].Result.Content)

		require.NoError(t, stores.History.ClearHistory(ctx, "s1"))
		loaded, err = stores.History.LoadHistory(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})
}

func TestMemoryStores(t *testing.T) {
	runStoreSuite(t, NewMemoryStores())
}

func TestSQLiteStores(t *testing.T) {
	stores, err := NewSQLiteStores(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })
	runStoreSuite(t, stores)
}

func TestMemoryHistoryStore_IsolatesCallers(t *testing.T) {
	store := NewMemoryHistoryStore()
	ctx := context.Background()
	history := []models.Message{{ID: "m1", ToolCalls: []models.ToolCall{{ID: "c1"}}}}
	require.NoError(t, store.SaveHistory(ctx, "s", history))

	history[0].ToolCalls[0].Result = &models.ToolResult{Content: "mutated"}

	loaded, err := store.LoadHistory(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, loaded[0].ToolCalls[0].Result)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "cassandra", "")
	assert.Error(t, err)

	stores, err := Open(context.Background(), "", "")
	require.NoError(t, err)
	assert.NotNil(t, stores.Memory)
}
