package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/dynamic-timers/internal/dispatch"
	domain "github.com/oshokin/dynamic-timers/internal/domain/timer"
	"github.com/oshokin/dynamic-timers/internal/logger"
	"github.com/oshokin/dynamic-timers/internal/render"
	repo "github.com/oshokin/dynamic-timers/internal/repository/timers"
)

// Manager owns the live timer set and coordinates persistence, the group
// index and the expiry loop. One mutex serializes every mutation, including
// the loop's own expiry-driven removals, so a pause racing a firing cannot
// observe a timer that is both fired and paused.
type Manager struct {
	// repo handles persistent storage of the live timer set.
	repo repo.Repository
	// dispatcher executes rendered actions against the automation backend.
	dispatcher dispatch.Dispatcher
	// renderer substitutes template markup at dispatch time.
	renderer render.Renderer
	// actionTimeout bounds the execution of one action.
	actionTimeout time.Duration

	// mu protects timers, firing and groups.
	mu sync.Mutex
	// timers is the live set keyed by name.
	timers map[string]*domain.Timer
	// firing holds timers whose actions are being dispatched. They left the
	// live set but stay in the store until dispatch finishes, so a crash
	// mid-dispatch re-fires them after restart instead of losing them.
	firing map[string]*domain.Timer
	// groups is the derived group index, kept in exact sync with timers.
	groups *groupIndex
	// wake signals the expiry loop that the timer set changed.
	wake chan struct{}
	// ready flips to true once startup reconciliation finished.
	ready atomic.Bool
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// New creates a Manager backed by the provided repository, dispatcher and
// renderer. Call Start to load persisted state and begin the expiry loop.
func New(repository repo.Repository, dispatcher dispatch.Dispatcher, renderer render.Renderer, actionTimeout time.Duration) *Manager {
	return &Manager{
		repo:          repository,
		dispatcher:    dispatcher,
		renderer:      renderer,
		actionTimeout: actionTimeout,
		timers:        make(map[string]*domain.Timer),
		firing:        make(map[string]*domain.Timer),
		groups:        newGroupIndex(),
		wake:          make(chan struct{}, 1),
		now:           time.Now,
	}
}

// Ready reports whether startup reconciliation has completed. Until then no
// caller can assume startup-pending firings are done.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

// CreateRequest carries the validated-at-the-edge input of Create.
type CreateRequest struct {
	// Name is optional; an auto-generated timer_<random> name is used when empty.
	Name string
	// Duration is the countdown length. Must be positive.
	Duration time.Duration
	// Actions is the raw action specification, a mapping or list of mappings.
	Actions any
	// RestartBehavior is resume, skip or execute. Empty selects resume.
	RestartBehavior string
	// Groups lists group memberships.
	Groups []string
}

// Create validates the request, registers a new active timer, persists the
// set and informs the expiry loop. It returns the timer's name.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (string, error) {
	actions, err := domain.NormalizeActions(req.Actions)
	if err != nil {
		return "", err
	}

	behavior, err := domain.ParseRestartBehavior(req.RestartBehavior)
	if err != nil {
		return "", err
	}

	name := req.Name
	if name == "" {
		name = "timer_" + uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.timers[name]; exists {
		return "", &domain.DuplicateNameError{Name: name}
	}

	created, err := domain.New(name, req.Duration, actions, behavior, req.Groups, m.now())
	if err != nil {
		return "", err
	}

	m.timers[name] = created
	m.groups.add(name, created.Groups)

	if err = m.persistLocked(ctx); err != nil {
		return "", err
	}

	m.signalWake()
	logger.InfoKV(ctx, "Created timer",
		"name", name, "duration", req.Duration, "restart_behavior", behavior, "groups", created.Groups)

	return name, nil
}

// Pause detaches a timer from wall clock, keeping its remaining duration.
// Pausing an already paused timer is a no-op.
func (m *Manager) Pause(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[name]
	if !ok {
		return &domain.NotFoundError{Name: name}
	}

	if !t.Pause(m.now()) {
		return nil
	}

	if err := m.persistLocked(ctx); err != nil {
		return err
	}

	m.signalWake()
	logger.InfoKV(ctx, "Paused timer", "name", name, "remaining", t.PausedRemaining)

	return nil
}

// Resume re-anchors a paused timer to wall clock.
// Resuming an active timer is a no-op.
func (m *Manager) Resume(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[name]
	if !ok {
		return &domain.NotFoundError{Name: name}
	}

	if !t.Resume(m.now()) {
		return nil
	}

	if err := m.persistLocked(ctx); err != nil {
		return err
	}

	m.signalWake()
	logger.InfoKV(ctx, "Resumed timer", "name", name, "expiry", t.Expiry)

	return nil
}

// Cancel removes a timer without executing its actions.
func (m *Manager) Cancel(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[name]
	if !ok {
		return &domain.NotFoundError{Name: name}
	}

	delete(m.timers, name)
	m.groups.remove(name, t.Groups)

	if err := m.persistLocked(ctx); err != nil {
		return err
	}

	m.signalWake()
	logger.InfoKV(ctx, "Cancelled timer", "name", name)

	return nil
}

// ExtendRequest carries the input of Extend. Exactly one of AddDuration or
// NewExpiry must be set.
type ExtendRequest struct {
	// AddDuration is added to the countdown in either state.
	AddDuration time.Duration
	// NewExpiry overwrites the absolute expiry of an active timer.
	NewExpiry *time.Time
}

// validate enforces the exactly-one-of rule.
func (r *ExtendRequest) validate() error {
	hasDuration := r.AddDuration != 0
	hasExpiry := r.NewExpiry != nil

	switch {
	case hasDuration && hasExpiry:
		return domain.Validationf("provide either add_duration or new_expiry, not both")
	case !hasDuration && !hasExpiry:
		return domain.Validationf("provide add_duration or new_expiry")
	case hasDuration && r.AddDuration < 0:
		return domain.Validationf("add_duration must be positive, got %s", r.AddDuration)
	default:
		return nil
	}
}

// Extend lengthens a timer's countdown, relatively or to an absolute instant.
func (m *Manager) Extend(ctx context.Context, name string, req ExtendRequest) error {
	if err := req.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[name]
	if !ok {
		return &domain.NotFoundError{Name: name}
	}

	if err := m.applyExtendLocked(t, req); err != nil {
		return err
	}

	if err := m.persistLocked(ctx); err != nil {
		return err
	}

	m.signalWake()
	logger.InfoKV(ctx, "Extended timer", "name", name)

	return nil
}

// applyExtendLocked applies a validated extension to one timer.
func (m *Manager) applyExtendLocked(t *domain.Timer, req ExtendRequest) error {
	if req.NewExpiry != nil {
		return t.SetExpiry(*req.NewExpiry)
	}

	return t.ExtendBy(req.AddDuration)
}

// Snapshot is an immutable view of the live set for the presentation layer.
type Snapshot struct {
	// Ready mirrors Manager.Ready at snapshot time.
	Ready bool
	// Timers holds deep copies of every live timer, sorted by name.
	Timers []*domain.Timer
}

// Query returns a snapshot of all live timers. The returned timers are deep
// copies; mutating them does not affect the live set.
func (m *Manager) Query() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	timers := make([]*domain.Timer, 0, len(m.timers))
	for _, t := range m.timers {
		timers = append(timers, t.Clone())
	}

	sort.Slice(timers, func(i, j int) bool {
		return timers[i].Name < timers[j].Name
	})

	return Snapshot{
		Ready:  m.ready.Load(),
		Timers: timers,
	}
}

// persistLocked rewrites the store from the in-memory set. Must be called
// with m.mu held.
func (m *Manager) persistLocked(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}

	list := make([]*domain.Timer, 0, len(m.timers)+len(m.firing))
	for _, t := range m.timers {
		list = append(list, t)
	}

	// Timers being fired stay persisted until their actions ran. A live
	// timer re-created under a fired timer's name wins the slot.
	for name, t := range m.firing {
		if _, exists := m.timers[name]; exists {
			continue
		}

		list = append(list, t)
	}

	if err := m.repo.Save(ctx, list); err != nil {
		logger.Errorf(ctx, "Failed to persist timer state: %v", err)

		return fmt.Errorf("persist timers: %w", err)
	}

	return nil
}

// signalWake nudges the expiry loop without blocking. The channel holds one
// pending signal; the loop recomputes everything on wake anyway.
func (m *Manager) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
