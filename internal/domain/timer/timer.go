package timer

import (
	"slices"
	"time"
)

// State enumerates the non-terminal timer states. A timer that has fired or
// been cancelled is removed from the live set rather than marked.
type State string

const (
	// StateActive means the timer is counting down towards Expiry.
	StateActive State = "active"
	// StatePaused means the countdown is detached from wall clock and
	// PausedRemaining holds the time left.
	StatePaused State = "paused"
)

// RestartBehavior governs what happens to an active timer whose process was
// restarted while it was counting down.
type RestartBehavior string

const (
	// RestartResume continues the countdown; if the expiry passed while the
	// process was down, actions fire immediately on startup.
	RestartResume RestartBehavior = "resume"
	// RestartSkip discards the timer silently if its expiry passed.
	RestartSkip RestartBehavior = "skip"
	// RestartExecute fires the actions immediately on startup regardless of
	// whether the expiry passed.
	RestartExecute RestartBehavior = "execute"
)

// ParseRestartBehavior validates a restart behavior string.
// An empty string selects the default, RestartResume.
func ParseRestartBehavior(s string) (RestartBehavior, error) {
	switch RestartBehavior(s) {
	case "":
		return RestartResume, nil
	case RestartResume, RestartSkip, RestartExecute:
		return RestartBehavior(s), nil
	default:
		return "", Validationf("unknown restart_behavior %q", s)
	}
}

// Timer is the record for one named countdown.
type Timer struct {
	// Name uniquely identifies the timer within the live set.
	Name string
	// State is active or paused.
	State State
	// Expiry is the absolute instant the actions fire. Set iff active.
	Expiry time.Time
	// PausedRemaining is the countdown left at the moment of pausing.
	// Set iff paused.
	PausedRemaining time.Duration
	// Actions run in order when the timer expires.
	Actions []Action
	// Groups the timer belongs to, for batch operations.
	Groups []string
	// RestartBehavior governs startup reconciliation only.
	RestartBehavior RestartBehavior
	// CreatedAt is informational.
	CreatedAt time.Time
}

// New builds an active timer expiring duration from now.
func New(name string, duration time.Duration, actions []Action, behavior RestartBehavior, groups []string, now time.Time) (*Timer, error) {
	if duration <= 0 {
		return nil, Validationf("duration must be positive, got %s", duration)
	}

	if len(actions) == 0 {
		return nil, Validationf("at least one action is required")
	}

	return &Timer{
		Name:            name,
		State:           StateActive,
		Expiry:          now.Add(duration),
		Actions:         CloneActions(actions),
		Groups:          normalizeGroups(groups),
		RestartBehavior: behavior,
		CreatedAt:       now,
	}, nil
}

// IsActive reports whether the timer is counting down.
func (t *Timer) IsActive() bool {
	return t.State == StateActive
}

// Expired reports whether an active timer's expiry has passed.
func (t *Timer) Expired(now time.Time) bool {
	return t.IsActive() && !t.Expiry.After(now)
}

// Pause converts the remaining countdown into a duration and detaches the
// timer from wall clock. Pausing a paused timer is a no-op and returns false.
func (t *Timer) Pause(now time.Time) bool {
	if t.State == StatePaused {
		return false
	}

	remaining := t.Expiry.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	t.State = StatePaused
	t.PausedRemaining = remaining
	t.Expiry = time.Time{}

	return true
}

// Resume re-anchors a paused countdown to wall clock. Resuming an active
// timer is a no-op and returns false.
func (t *Timer) Resume(now time.Time) bool {
	if t.State == StateActive {
		return false
	}

	t.State = StateActive
	t.Expiry = now.Add(t.PausedRemaining)
	t.PausedRemaining = 0

	return true
}

// ExtendBy adds a duration to the countdown in either state.
func (t *Timer) ExtendBy(d time.Duration) error {
	if d <= 0 {
		return Validationf("add_duration must be positive, got %s", d)
	}

	if t.State == StatePaused {
		t.PausedRemaining += d

		return nil
	}

	t.Expiry = t.Expiry.Add(d)

	return nil
}

// SetExpiry overwrites the absolute expiry of an active timer.
func (t *Timer) SetExpiry(expiry time.Time) error {
	if t.State != StateActive {
		return Validationf("timer %q is paused, new_expiry requires an active timer", t.Name)
	}

	t.Expiry = expiry

	return nil
}

// MemberOf reports whether the timer belongs to the named group.
func (t *Timer) MemberOf(group string) bool {
	return slices.Contains(t.Groups, group)
}

// Validate checks the state invariants of a loaded record.
func (t *Timer) Validate() error {
	if t.Name == "" {
		return Validationf("timer name is required")
	}

	switch t.State {
	case StateActive:
		if t.Expiry.IsZero() {
			return Validationf("active timer %q has no expiry", t.Name)
		}
	case StatePaused:
		if t.PausedRemaining < 0 {
			return Validationf("paused timer %q has negative remaining duration", t.Name)
		}
	default:
		return Validationf("timer %q has invalid state %q", t.Name, t.State)
	}

	if len(t.Actions) == 0 {
		return Validationf("timer %q has no actions", t.Name)
	}

	return nil
}

// Clone returns a deep copy of the timer to avoid leaking internal references.
func (t *Timer) Clone() *Timer {
	if t == nil {
		return nil
	}

	cloned := *t
	cloned.Actions = CloneActions(t.Actions)
	cloned.Groups = slices.Clone(t.Groups)

	return &cloned
}

// normalizeGroups deduplicates group names while preserving first occurrence order.
func normalizeGroups(groups []string) []string {
	if len(groups) == 0 {
		return nil
	}

	result := make([]string, 0, len(groups))

	for _, g := range groups {
		if g == "" || slices.Contains(result, g) {
			continue
		}

		result = append(result, g)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}
