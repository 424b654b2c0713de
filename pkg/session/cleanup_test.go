package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetention(t *testing.T) {
	store, _ := setupTestStore(t)

	ret := NewRetention(store, 7*24*time.Hour, zerolog.Nop())
	assert.NotNil(t, ret)
	assert.Equal(t, store, ret.store)
	assert.Equal(t, 7*24*time.Hour, ret.age)
}

func TestNewRetention_DefaultAge(t *testing.T) {
	store, _ := setupTestStore(t)

	ret := NewRetention(store, 0, zerolog.Nop())
	assert.Equal(t, DefaultRetentionAge, ret.age)
}

func TestRetentionStartStop(t *testing.T) {
	store, _ := setupTestStore(t)
	ret := NewRetention(store, 7*24*time.Hour, zerolog.Nop())

	err := ret.Start()
	assert.NoError(t, err)
	assert.True(t, ret.IsRunning())

	// Give it a moment to run the initial sweep
	time.Sleep(100 * time.Millisecond)

	err = ret.Start()
	assert.Error(t, err)

	err = ret.Stop()
	assert.NoError(t, err)
	assert.False(t, ret.IsRunning())

	err = ret.Stop()
	assert.Error(t, err)
}

func TestRetentionSweepDeletesOldTranscripts(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "old-session", Message{Role: "user", Content: "x"}))
	require.NoError(t, store.Append(ctx, "fresh-session", Message{Role: "user", Content: "y"}))

	// Age the old transcript past the retention window.
	oldTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.path("old-session"), oldTime, oldTime))

	ret := NewRetention(store, 24*time.Hour, zerolog.Nop())
	require.NoError(t, ret.Sweep())

	list, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fresh-session"}, list)
}

func TestRetentionSweepPrunesLongTranscripts(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Append(ctx, "busy-session", Message{
			Role:    "user",
			Content: "message",
		}))
	}

	ret := NewRetention(store, 7*24*time.Hour, zerolog.Nop())
	ret.SetMaxEntries(4)
	require.NoError(t, ret.Sweep())

	entries, err := store.Load(ctx, "busy-session")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}
