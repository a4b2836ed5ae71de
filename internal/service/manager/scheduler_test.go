package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/dynamic-timers/internal/render"
)

// storeSnapshotDispatcher records the persisted timer names at the moment
// each dispatch begins.
type storeSnapshotDispatcher struct {
	// repo is the repository to snapshot.
	repo *memoryRepository
	// mu protects snapshots.
	mu sync.Mutex
	// snapshots holds one persisted-name set per dispatched action.
	snapshots [][]string
}

// CallService snapshots the store.
func (d *storeSnapshotDispatcher) CallService(context.Context, string, map[string]any, map[string]any) error {
	d.record()

	return nil
}

// FireEvent snapshots the store.
func (d *storeSnapshotDispatcher) FireEvent(context.Context, string, map[string]any) error {
	d.record()

	return nil
}

func (d *storeSnapshotDispatcher) record() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.snapshots = append(d.snapshots, d.repo.savedNames())
}

// startLiveManager wires a manager on the real clock and starts its loop.
func startLiveManager(t *testing.T) (*Manager, *memoryRepository, *recordingDispatcher) {
	t.Helper()

	repo := new(memoryRepository)
	disp := new(recordingDispatcher)
	m := New(repo, disp, render.NewTemplateRenderer(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, m.Start(ctx))
	require.True(t, m.Ready())

	return m, repo, disp
}

// TestExpiryFiresActions verifies a short timer fires once and is removed.
func TestExpiryFiresActions(t *testing.T) {
	t.Parallel()

	m, repo, disp := startLiveManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{
		Name:     "quick",
		Duration: 30 * time.Millisecond,
		Actions: []any{
			map[string]any{"event": "first"},
			map[string]any{"action": "light.turn_off", "data": map[string]any{"transition": 1}},
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return disp.count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Order matches the action list.
	disp.mu.Lock()
	require.Equal(t, "event", disp.actions[0].kind)
	require.Equal(t, "first", disp.actions[0].event)
	require.Equal(t, "service", disp.actions[1].kind)
	require.Equal(t, "light.turn_off", disp.actions[1].service)
	disp.mu.Unlock()

	// Fired timer left the live set and, once dispatch finished, the store.
	require.Empty(t, m.Query().Timers)
	require.Eventually(t, func() bool {
		return len(repo.savedNames()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestExpiryWakesForSoonerTimer verifies the loop re-targets when a nearer
// expiry arrives while it waits on a distant one.
func TestExpiryWakesForSoonerTimer(t *testing.T) {
	t.Parallel()

	m, _, disp := startLiveManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{
		Name: "distant", Duration: time.Hour, Actions: eventActions(),
	})
	require.NoError(t, err)

	_, err = m.Create(ctx, CreateRequest{
		Name: "soon", Duration: 30 * time.Millisecond, Actions: eventActions(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return disp.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The distant timer is untouched.
	snapshot := m.Query()
	require.Len(t, snapshot.Timers, 1)
	require.Equal(t, "distant", snapshot.Timers[0].Name)
}

// TestPausePreventsFiring verifies a paused timer drops out of contention.
func TestPausePreventsFiring(t *testing.T) {
	t.Parallel()

	m, _, disp := startLiveManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{
		Name: "held", Duration: 60 * time.Millisecond, Actions: eventActions(),
	})
	require.NoError(t, err)
	require.NoError(t, m.Pause(ctx, "held"))

	time.Sleep(150 * time.Millisecond)

	require.Zero(t, disp.count())

	snapshot := m.Query()
	require.Len(t, snapshot.Timers, 1)
	require.Equal(t, "held", snapshot.Timers[0].Name)
}

// TestDispatchFailureDoesNotAbortList verifies best-effort execution: a
// failing action is logged and the rest of the list still runs.
func TestDispatchFailureDoesNotAbortList(t *testing.T) {
	t.Parallel()

	m, _, disp := startLiveManager(t)
	disp.err = errors.New("backend down")

	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{
		Name:     "besteffort",
		Duration: 30 * time.Millisecond,
		Actions: []any{
			map[string]any{"event": "one"},
			map[string]any{"event": "two"},
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return disp.count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// The timer is removed despite the failures.
	require.Empty(t, m.Query().Timers)
}

// TestFiringKeepsTimerInStoreUntilActionsRun verifies a fired timer is not
// removed from the store before its actions are dispatched, so a crash
// mid-dispatch leaves the record for restart recovery to re-fire.
func TestFiringKeepsTimerInStoreUntilActionsRun(t *testing.T) {
	t.Parallel()

	m, repo, _, frozen := newTestManager(t)
	obs := &storeSnapshotDispatcher{repo: repo}
	m.dispatcher = obs

	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{
		Name:     "durable",
		Duration: 100 * time.Second,
		Actions:  eventActions(),
	})
	require.NoError(t, err)

	m.now = func() time.Time { return frozen.Add(100 * time.Second) }
	m.fireDue(ctx)

	// At the moment dispatch began the store still held the timer.
	require.Equal(t, [][]string{{"durable"}}, obs.snapshots)

	// After the actions ran it is gone from set and store.
	require.Empty(t, m.Query().Timers)
	require.Empty(t, repo.savedNames())
}

// TestTemplatesRenderAtDispatchTime verifies payload templates observe the
// firing moment rather than the creation moment.
func TestTemplatesRenderAtDispatchTime(t *testing.T) {
	t.Parallel()

	m, _, disp, createdAt := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{
		Name:     "templated",
		Duration: 100 * time.Second,
		Actions: map[string]any{
			"event":      "done",
			"event_data": map[string]any{"at": "{{ timestamp }}"},
		},
	})
	require.NoError(t, err)

	// Advance the clock past the expiry and let the loop's firing path run.
	firedAt := createdAt.Add(100 * time.Second)
	m.now = func() time.Time { return firedAt }

	m.fireDue(ctx)

	require.Equal(t, 1, disp.count())

	disp.mu.Lock()
	rendered := disp.actions[0].data["at"].(string)
	disp.mu.Unlock()

	// The rendered instant is the expiry moment, not the creation moment.
	require.Equal(t, firedAt.Format(time.RFC3339), rendered)
	require.NotEqual(t, createdAt.Format(time.RFC3339), rendered)

	require.Empty(t, m.Query().Timers)
}
