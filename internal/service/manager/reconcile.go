package manager

import (
	"context"
	"errors"

	domain "github.com/oshokin/dynamic-timers/internal/domain/timer"
	"github.com/oshokin/dynamic-timers/internal/logger"
	repo "github.com/oshokin/dynamic-timers/internal/repository/timers"
)

// Start loads the persisted set, reconciles each timer against its restart
// behavior and launches the expiry loop. The manager lock is held for the
// whole reconciliation pass, so external calls arriving during startup
// serialize behind it and observe the reconciled set.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()

	loaded := m.loadPersisted(ctx)
	fireNow := m.reconcileLocked(ctx, loaded)

	if err := m.persistLocked(ctx); err != nil {
		m.mu.Unlock()

		return err
	}

	live := len(m.timers)

	m.mu.Unlock()

	// Startup-pending firings run before the manager reports ready. Their
	// records stay persisted until the actions ran, so a crash here repeats
	// the firing on the next start instead of dropping it.
	for _, t := range fireNow {
		m.execute(ctx, t)
	}

	if len(fireNow) > 0 {
		m.mu.Lock()

		for _, t := range fireNow {
			delete(m.firing, t.Name)
		}

		if err := m.persistLocked(ctx); err != nil {
			m.mu.Unlock()

			return err
		}

		m.mu.Unlock()
	}

	m.ready.Store(true)

	go m.run(ctx)

	logger.InfoKV(ctx, "Timer manager ready", "live_timers", live, "startup_firings", len(fireNow))

	return nil
}

// loadPersisted reads the store, degrading to an empty set on a missing or
// corrupt file. Corruption is a warning, never fatal to startup.
func (m *Manager) loadPersisted(ctx context.Context) []*domain.Timer {
	if m.repo == nil {
		return nil
	}

	loaded, err := m.repo.Load(ctx)

	switch {
	case err == nil:
		logger.DebugKV(ctx, "Loaded persisted timers", "count", len(loaded))
	case errors.Is(err, repo.ErrNotFound):
		// First start, nothing persisted yet.
	case domain.IsCorruptStore(err):
		logger.WarnKV(ctx, "Timer store is corrupt, starting with an empty set", "error", err)

		return nil
	default:
		logger.WarnKV(ctx, "Failed to load timer store, starting with an empty set", "error", err)

		return nil
	}

	return loaded
}

// reconcileLocked applies restart behavior to every loaded timer and
// returns the ones that must fire immediately. Paused timers carry no
// wall-clock anchor and are exempt; invalid records are dropped with a
// warning. Must be called with m.mu held.
func (m *Manager) reconcileLocked(ctx context.Context, loaded []*domain.Timer) []*domain.Timer {
	var fireNow []*domain.Timer

	now := m.now()

	for _, t := range loaded {
		if err := t.Validate(); err != nil {
			logger.WarnKV(ctx, "Dropping invalid persisted timer", "name", t.Name, "error", err)

			continue
		}

		if _, exists := m.timers[t.Name]; exists {
			logger.WarnKV(ctx, "Dropping duplicate persisted timer", "name", t.Name)

			continue
		}

		if t.State == domain.StatePaused {
			m.keepLocked(t)

			continue
		}

		behavior, err := domain.ParseRestartBehavior(string(t.RestartBehavior))
		if err != nil {
			logger.WarnKV(ctx, "Dropping timer with invalid restart behavior", "name", t.Name, "error", err)

			continue
		}

		expired := t.Expired(now)

		switch {
		case behavior == domain.RestartExecute:
			logger.InfoKV(ctx, "Executing timer on startup", "name", t.Name, "restart_behavior", behavior)

			m.firing[t.Name] = t
			fireNow = append(fireNow, t)
		case expired && behavior == domain.RestartResume:
			logger.InfoKV(ctx, "Executing timer that expired while down", "name", t.Name)

			m.firing[t.Name] = t
			fireNow = append(fireNow, t)
		case expired && behavior == domain.RestartSkip:
			logger.InfoKV(ctx, "Skipping timer that expired while down", "name", t.Name)
		default:
			m.keepLocked(t)
		}
	}

	return fireNow
}

// keepLocked re-registers a reconciled timer in the live set and the group
// index. Must be called with m.mu held.
func (m *Manager) keepLocked(t *domain.Timer) {
	m.timers[t.Name] = t
	m.groups.add(t.Name, t.Groups)
}
