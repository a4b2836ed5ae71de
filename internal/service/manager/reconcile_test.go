package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/dynamic-timers/internal/domain/timer"
	"github.com/oshokin/dynamic-timers/internal/render"
)

// persistedTimer builds an active timer with an expiry relative to now.
func persistedTimer(t *testing.T, name string, untilExpiry time.Duration, behavior domain.RestartBehavior) *domain.Timer {
	t.Helper()

	// Build far enough in the past that any expiry offset is representable.
	base := time.Now().Add(-time.Hour)

	tm, err := domain.New(name, time.Hour+untilExpiry,
		[]domain.Action{{Type: domain.ActionEvent, Event: name + "_fired"}},
		behavior, nil, base)
	require.NoError(t, err)

	return tm
}

// startWithStored wires a manager whose repository holds the given set and
// runs startup reconciliation.
func startWithStored(t *testing.T, stored []*domain.Timer, loadErr error) (*Manager, *memoryRepository, *recordingDispatcher) {
	t.Helper()

	repo := &memoryRepository{stored: stored, loadErr: loadErr}
	disp := new(recordingDispatcher)
	m := New(repo, disp, render.NewTemplateRenderer(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.False(t, m.Ready())
	require.NoError(t, m.Start(ctx))
	require.True(t, m.Ready())

	return m, repo, disp
}

// TestReconcileSkipDropsExpired: an expired skip timer vanishes silently.
func TestReconcileSkipDropsExpired(t *testing.T) {
	t.Parallel()

	m, repo, disp := startWithStored(t, []*domain.Timer{
		persistedTimer(t, "stale", -10*time.Second, domain.RestartSkip),
	}, nil)

	require.Empty(t, m.Query().Timers)
	require.Zero(t, disp.count())

	// The cleaned-up set was persisted.
	require.Empty(t, repo.savedNames())
}

// TestReconcileResumeFiresExpired: an expired resume timer fires exactly once.
func TestReconcileResumeFiresExpired(t *testing.T) {
	t.Parallel()

	m, _, disp := startWithStored(t, []*domain.Timer{
		persistedTimer(t, "overdue", -10*time.Second, domain.RestartResume),
	}, nil)

	require.Equal(t, 1, disp.count())
	require.Empty(t, m.Query().Timers)
}

// TestReconcileStoreKeepsTimerUntilStartupFiring: a timer fired during
// startup reconciliation stays persisted until its actions ran.
func TestReconcileStoreKeepsTimerUntilStartupFiring(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{stored: []*domain.Timer{
		persistedTimer(t, "overdue", -10*time.Second, domain.RestartResume),
	}}
	obs := &storeSnapshotDispatcher{repo: repo}
	m := New(repo, obs, render.NewTemplateRenderer(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, m.Start(ctx))

	// The reconciliation persist ran before dispatch and kept the record.
	require.Equal(t, [][]string{{"overdue"}}, obs.snapshots)

	// Once fired the record is dropped.
	require.Empty(t, repo.savedNames())
	require.Empty(t, m.Query().Timers)
}

// TestReconcileResumeKeepsPending: a resume timer with a future expiry stays live.
func TestReconcileResumeKeepsPending(t *testing.T) {
	t.Parallel()

	m, _, disp := startWithStored(t, []*domain.Timer{
		persistedTimer(t, "pending", time.Hour, domain.RestartResume),
	}, nil)

	require.Zero(t, disp.count())

	snapshot := m.Query()
	require.Len(t, snapshot.Timers, 1)
	require.Equal(t, "pending", snapshot.Timers[0].Name)
}

// TestReconcileExecuteFiresFuture: an execute timer fires immediately even
// though its expiry is still ahead.
func TestReconcileExecuteFiresFuture(t *testing.T) {
	t.Parallel()

	m, _, disp := startWithStored(t, []*domain.Timer{
		persistedTimer(t, "eager", 10*time.Second, domain.RestartExecute),
	}, nil)

	require.Equal(t, 1, disp.count())
	require.Empty(t, m.Query().Timers)
}

// TestReconcilePausedExempt: paused timers reload as-is, restart policy untouched.
func TestReconcilePausedExempt(t *testing.T) {
	t.Parallel()

	paused := persistedTimer(t, "held", -10*time.Second, domain.RestartExecute)
	paused.Pause(time.Now().Add(-30 * time.Minute))

	m, _, disp := startWithStored(t, []*domain.Timer{paused}, nil)

	require.Zero(t, disp.count())

	snapshot := m.Query()
	require.Len(t, snapshot.Timers, 1)
	require.Equal(t, domain.StatePaused, snapshot.Timers[0].State)
	require.Equal(t, paused.PausedRemaining, snapshot.Timers[0].PausedRemaining)
}

// TestReconcileDropsInvalidRecords: broken records are dropped with the
// valid remainder kept.
func TestReconcileDropsInvalidRecords(t *testing.T) {
	t.Parallel()

	broken := persistedTimer(t, "broken", time.Hour, domain.RestartResume)
	broken.State = "exploded"

	m, _, _ := startWithStored(t, []*domain.Timer{
		broken,
		persistedTimer(t, "fine", time.Hour, domain.RestartResume),
	}, nil)

	snapshot := m.Query()
	require.Len(t, snapshot.Timers, 1)
	require.Equal(t, "fine", snapshot.Timers[0].Name)
}

// TestReconcileCorruptStore: corruption degrades to an empty set, startup succeeds.
func TestReconcileCorruptStore(t *testing.T) {
	t.Parallel()

	m, _, disp := startWithStored(t, nil, &domain.CorruptStoreError{
		Err: context.DeadlineExceeded,
	})

	require.True(t, m.Ready())
	require.Empty(t, m.Query().Timers)
	require.Zero(t, disp.count())
}

// TestReconcileRebuildsGroupIndex: group memberships survive the reload.
func TestReconcileRebuildsGroupIndex(t *testing.T) {
	t.Parallel()

	member := persistedTimer(t, "grouped", time.Hour, domain.RestartResume)
	member.Groups = []string{"kitchen"}

	m, _, _ := startWithStored(t, []*domain.Timer{member}, nil)

	result, err := m.PauseGroup(context.Background(), "kitchen")
	require.NoError(t, err)
	require.Equal(t, []string{"grouped"}, result.Applied)
}
