// ABOUTME: Tests for the per-chat settings cache
// ABOUTME: Covers defaults, memoization and write-through ordering

package chatconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-responder/internal/store"
)

func TestGet_DefaultsWhenAbsent(t *testing.T) {
	c := NewCache(store.NewMockStore(), DefaultDefaults())

	cfg, err := c.Get(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, Config{ChatID: "room", FireProbability: 0.5, RecencyCapacity: 20}, cfg)
}

func TestGet_LoadsStoredValues(t *testing.T) {
	ctx := context.Background()
	st := store.NewMockStore()
	require.NoError(t, st.SaveFireProbability(ctx, "room", 0.9))

	c := NewCache(st, DefaultDefaults())
	cfg, err := c.Get(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.FireProbability)
	assert.Equal(t, 20, cfg.RecencyCapacity, "unset column falls back to default")
}

func TestGet_Memoizes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMockStore()
	c := NewCache(st, DefaultDefaults())

	_, err := c.Get(ctx, "room")
	require.NoError(t, err)

	// Changes behind the cache's back are not observed
	require.NoError(t, st.SaveFireProbability(ctx, "room", 0.1))
	st.FailGetSettings = errors.New("should not be called")

	cfg, err := c.Get(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.FireProbability)
}

func TestGet_StorageError(t *testing.T) {
	st := store.NewMockStore()
	st.FailGetSettings = errors.New("unreachable")
	c := NewCache(st, DefaultDefaults())

	_, err := c.Get(context.Background(), "room")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")

	// Nothing was memoized, so a later call retries
	st.FailGetSettings = nil
	cfg, err := c.Get(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.FireProbability)
}

func TestSetFireProbability(t *testing.T) {
	ctx := context.Background()
	st := store.NewMockStore()
	c := NewCache(st, DefaultDefaults())

	require.NoError(t, c.SetFireProbability(ctx, "room", 1))

	cfg, err := c.Get(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.FireProbability)
	assert.Equal(t, 20, cfg.RecencyCapacity)

	stored, err := st.GetChatSettings(ctx, "room")
	require.NoError(t, err)
	require.NotNil(t, stored.FireProbability)
	assert.Equal(t, 1.0, *stored.FireProbability)
}

func TestSetFireProbability_NoRangeCheck(t *testing.T) {
	c := NewCache(store.NewMockStore(), DefaultDefaults())
	require.NoError(t, c.SetFireProbability(context.Background(), "room", 7))

	cfg, err := c.Get(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, 7.0, cfg.FireProbability)
}

func TestSetFireProbability_FailedSaveKeepsMemory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMockStore()
	c := NewCache(st, DefaultDefaults())

	_, err := c.Get(ctx, "room")
	require.NoError(t, err)

	st.FailSaveSetting = errors.New("disk full")
	require.Error(t, c.SetFireProbability(ctx, "room", 0.1))

	cfg, err := c.Get(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.FireProbability)
}

func TestSetRecencyCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewCache(store.NewMockStore(), Defaults{FireProbability: 0.25, RecencyCapacity: 5})

	require.NoError(t, c.SetRecencyCapacity(ctx, "room", 0))

	cfg, err := c.Get(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.RecencyCapacity)
	assert.Equal(t, 0.25, cfg.FireProbability)
}

func TestUpdate_BothFieldsInOneSave(t *testing.T) {
	ctx := context.Background()
	st := store.NewMockStore()
	c := NewCache(st, DefaultDefaults())

	p, capacity := 0.3, 4
	require.NoError(t, c.Update(ctx, "room", store.SettingsUpdate{FireProbability: &p, RecencyCapacity: &capacity}))
	assert.Equal(t, 1, st.SettingSaves)

	cfg, err := c.Get(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, Config{ChatID: "room", FireProbability: 0.3, RecencyCapacity: 4}, cfg)

	require.NoError(t, c.Update(ctx, "room", store.SettingsUpdate{}))
	assert.Equal(t, 1, st.SettingSaves, "empty update does not touch storage")
}

func TestUpdate_FailedSaveChangesNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMockStore()
	c := NewCache(st, DefaultDefaults())

	st.FailSaveSetting = errors.New("disk full")
	p, capacity := 0.3, 4
	err := c.Update(ctx, "room", store.SettingsUpdate{FireProbability: &p, RecencyCapacity: &capacity})
	require.ErrorIs(t, err, st.FailSaveSetting)

	st.FailSaveSetting = nil
	cfg, err := c.Get(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, Config{ChatID: "room", FireProbability: 0.5, RecencyCapacity: 20}, cfg)
}
