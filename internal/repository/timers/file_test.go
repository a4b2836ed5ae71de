package timers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/dynamic-timers/internal/domain/timer"
)

// sampleTimers builds one active and one paused timer with fixed timestamps.
func sampleTimers(t *testing.T) []*domain.Timer {
	t.Helper()

	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	actions := []domain.Action{{Type: domain.ActionEvent, Event: "done"}}

	active, err := domain.New("active-one", 5*time.Minute, actions, domain.RestartResume, []string{"g"}, now)
	require.NoError(t, err)

	paused, err := domain.New("paused-one", 10*time.Minute, actions, domain.RestartSkip, nil, now)
	require.NoError(t, err)
	paused.Pause(now.Add(time.Minute))

	return []*domain.Timer{active, paused}
}

// TestSaveLoadRoundtrip verifies the document round-trips both timer states.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	repo := NewFileRepository(path)
	ctx := context.Background()

	saved := sampleTimers(t)
	require.NoError(t, repo.Save(ctx, saved))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byName := map[string]*domain.Timer{}
	for _, tm := range loaded {
		byName[tm.Name] = tm
	}

	active := byName["active-one"]
	require.NotNil(t, active)
	require.Equal(t, domain.StateActive, active.State)
	require.True(t, saved[0].Expiry.Equal(active.Expiry))
	require.Equal(t, []string{"g"}, active.Groups)
	require.Equal(t, domain.RestartResume, active.RestartBehavior)
	require.Len(t, active.Actions, 1)

	paused := byName["paused-one"]
	require.NotNil(t, paused)
	require.Equal(t, domain.StatePaused, paused.State)
	require.Equal(t, saved[1].PausedRemaining, paused.PausedRemaining)
	require.True(t, paused.Expiry.IsZero())
}

// TestSaveIsFixedPoint verifies save(load()) produces identical bytes.
func TestSaveIsFixedPoint(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	repo := NewFileRepository(path)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleTimers(t)))

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, loaded))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

// TestLoadMissingFile verifies the not-found sentinel.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "absent.json"))

	_, err := repo.Load(context.Background())
	require.True(t, errors.Is(err, ErrNotFound))
}

// TestLoadCorruptFile verifies malformed content surfaces as CorruptStoreError.
func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	repo := NewFileRepository(path)

	_, err := repo.Load(context.Background())
	require.True(t, domain.IsCorruptStore(err))
}

// TestSaveOverwrites verifies a save fully replaces prior contents.
func TestSaveOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	repo := NewFileRepository(path)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleTimers(t)))
	require.NoError(t, repo.Save(ctx, nil))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded)
}
