package manager

import (
	"context"
	"sort"
	"time"

	domain "github.com/oshokin/dynamic-timers/internal/domain/timer"
	"github.com/oshokin/dynamic-timers/internal/logger"
	"github.com/oshokin/dynamic-timers/internal/render"
)

// run is the expiry loop. It waits for the nearest expiry among active
// timers or for a wake signal, whichever comes first, and always recomputes
// the target after waking because the set may have changed during the wait.
func (m *Manager) run(ctx context.Context) {
	wait := time.NewTimer(time.Hour)
	if !wait.Stop() {
		<-wait.C
	}

	for {
		var fire <-chan time.Time

		if next, ok := m.nextExpiry(); ok {
			delay := next.Sub(m.now())
			if delay < 0 {
				delay = 0
			}

			wait.Reset(delay)
			fire = wait.C
		}

		select {
		case <-ctx.Done():
			m.drain(wait, fire)
			logger.Info(ctx, "Expiry loop stopped")

			return
		case <-m.wake:
			m.drain(wait, fire)
		case <-fire:
		}

		m.fireDue(ctx)
	}
}

// drain stops a pending timer and clears its channel so Reset is safe.
func (m *Manager) drain(wait *time.Timer, fire <-chan time.Time) {
	if fire == nil {
		return
	}

	if !wait.Stop() {
		select {
		case <-wait.C:
		default:
		}
	}
}

// nextExpiry returns the nearest expiry among active timers.
func (m *Manager) nextExpiry() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		nearest time.Time
		found   bool
	)

	for _, t := range m.timers {
		if !t.IsActive() {
			continue
		}

		if !found || t.Expiry.Before(nearest) {
			nearest = t.Expiry
			found = true
		}
	}

	return nearest, found
}

// fireDue executes the actions of every timer whose expiry has passed, then
// removes it from the store. Re-validation happens under the lock, so a
// pause or cancel that won the lock first has already taken the timer out of
// contention. The store keeps a fired timer until its actions ran: a crash
// mid-dispatch re-fires it after restart rather than losing the actions.
func (m *Manager) fireDue(ctx context.Context) {
	now := m.now()

	m.mu.Lock()

	var due []*domain.Timer

	for name, t := range m.timers {
		if !t.Expired(now) {
			continue
		}

		due = append(due, t)
		delete(m.timers, name)
		m.groups.remove(name, t.Groups)
		m.firing[name] = t
	}

	m.mu.Unlock()

	if len(due) == 0 {
		return
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].Expiry.Before(due[j].Expiry)
	})

	for _, t := range due {
		logger.InfoKV(ctx, "Timer expired", "name", t.Name)
		m.execute(ctx, t)
	}

	m.mu.Lock()

	for _, t := range due {
		delete(m.firing, t.Name)
	}

	if err := m.persistLocked(ctx); err != nil {
		logger.Errorf(ctx, "Failed to persist after expiry: %v", err)
	}

	m.mu.Unlock()
}

// execute renders and dispatches a fired timer's actions in list order.
// Each action gets its own timeout; a failure is logged and the remaining
// actions still run.
func (m *Manager) execute(ctx context.Context, t *domain.Timer) {
	ctx = logger.WithKV(ctx, "timer", t.Name)

	data := render.Data{
		Now:    m.now(),
		Timer:  t.Name,
		Groups: t.Groups,
	}

	for i := range t.Actions {
		action := &t.Actions[i]

		actionCtx, cancel := context.WithTimeout(ctx, m.actionTimeout)
		err := m.dispatchAction(actionCtx, action, data)

		cancel()

		if err != nil {
			dispatchErr := &domain.ActionDispatchError{
				Timer: t.Name,
				Index: i,
				Err:   err,
			}
			logger.ErrorKV(ctx, "Action dispatch failed", "error", dispatchErr)
		}
	}
}

// dispatchAction renders one action's payloads at dispatch time and hands
// it to the execution backend.
func (m *Manager) dispatchAction(ctx context.Context, action *domain.Action, data render.Data) error {
	switch action.Type {
	case domain.ActionServiceCall:
		target := m.renderer.RenderMap(ctx, action.Target, data)
		payload := m.renderer.RenderMap(ctx, action.Data, data)

		return m.dispatcher.CallService(ctx, action.Service, target, payload)
	case domain.ActionEvent:
		payload := m.renderer.RenderMap(ctx, action.EventData, data)

		return m.dispatcher.FireEvent(ctx, action.Event, payload)
	default:
		return domain.MalformedActionf("unknown action type %q", action.Type)
	}
}
