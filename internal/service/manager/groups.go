package manager

import (
	"context"
	"sort"

	domain "github.com/oshokin/dynamic-timers/internal/domain/timer"
	"github.com/oshokin/dynamic-timers/internal/logger"
)

// groupIndex maps group names to member timer names. It is a derived cache
// over the timers' Groups fields and must track every membership change.
type groupIndex struct {
	// members is group name -> set of timer names.
	members map[string]map[string]struct{}
}

// newGroupIndex creates an empty index.
func newGroupIndex() *groupIndex {
	return &groupIndex{
		members: make(map[string]map[string]struct{}),
	}
}

// add records a timer's memberships.
func (g *groupIndex) add(name string, groups []string) {
	for _, group := range groups {
		set, ok := g.members[group]
		if !ok {
			set = make(map[string]struct{})
			g.members[group] = set
		}

		set[name] = struct{}{}
	}
}

// remove drops a timer's memberships, deleting emptied groups.
func (g *groupIndex) remove(name string, groups []string) {
	for _, group := range groups {
		set, ok := g.members[group]
		if !ok {
			continue
		}

		delete(set, name)

		if len(set) == 0 {
			delete(g.members, group)
		}
	}
}

// membersOf returns the sorted member names of a group.
func (g *groupIndex) membersOf(group string) []string {
	set, ok := g.members[group]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// GroupResult reports the per-member outcome of a batch operation. A batch
// never aborts midway; members already in the target state are reported as
// skipped, not failed.
type GroupResult struct {
	// Applied lists members the operation changed.
	Applied []string `json:"applied,omitempty"`
	// Skipped lists members that were already in the target state.
	Skipped []string `json:"skipped,omitempty"`
	// Failed maps members to the reason the operation could not apply.
	Failed map[string]string `json:"failed,omitempty"`
}

// PauseGroup pauses every active member of the group.
func (m *Manager) PauseGroup(ctx context.Context, group string) (GroupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.groups.membersOf(group)
	if len(members) == 0 {
		return GroupResult{}, &domain.NotFoundError{Name: group}
	}

	var result GroupResult

	now := m.now()
	for _, name := range members {
		if m.timers[name].Pause(now) {
			result.Applied = append(result.Applied, name)
		} else {
			result.Skipped = append(result.Skipped, name)
		}
	}

	if err := m.finishGroupLocked(ctx, "Paused group", group, &result); err != nil {
		return result, err
	}

	return result, nil
}

// ResumeGroup resumes every paused member of the group.
func (m *Manager) ResumeGroup(ctx context.Context, group string) (GroupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.groups.membersOf(group)
	if len(members) == 0 {
		return GroupResult{}, &domain.NotFoundError{Name: group}
	}

	var result GroupResult

	now := m.now()
	for _, name := range members {
		if m.timers[name].Resume(now) {
			result.Applied = append(result.Applied, name)
		} else {
			result.Skipped = append(result.Skipped, name)
		}
	}

	if err := m.finishGroupLocked(ctx, "Resumed group", group, &result); err != nil {
		return result, err
	}

	return result, nil
}

// CancelGroup removes every member of the group without executing actions.
func (m *Manager) CancelGroup(ctx context.Context, group string) (GroupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.groups.membersOf(group)
	if len(members) == 0 {
		return GroupResult{}, &domain.NotFoundError{Name: group}
	}

	var result GroupResult

	for _, name := range members {
		t := m.timers[name]
		delete(m.timers, name)
		m.groups.remove(name, t.Groups)
		result.Applied = append(result.Applied, name)
	}

	if err := m.finishGroupLocked(ctx, "Cancelled group", group, &result); err != nil {
		return result, err
	}

	return result, nil
}

// ExtendGroup applies one validated extension to every member, collecting
// per-member failures instead of aborting.
func (m *Manager) ExtendGroup(ctx context.Context, group string, req ExtendRequest) (GroupResult, error) {
	if err := req.validate(); err != nil {
		return GroupResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.groups.membersOf(group)
	if len(members) == 0 {
		return GroupResult{}, &domain.NotFoundError{Name: group}
	}

	var result GroupResult

	for _, name := range members {
		if err := m.applyExtendLocked(m.timers[name], req); err != nil {
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}

			result.Failed[name] = err.Error()

			continue
		}

		result.Applied = append(result.Applied, name)
	}

	if err := m.finishGroupLocked(ctx, "Extended group", group, &result); err != nil {
		return result, err
	}

	return result, nil
}

// finishGroupLocked persists after a batch that changed anything and logs
// the outcome. Must be called with m.mu held.
func (m *Manager) finishGroupLocked(ctx context.Context, message, group string, result *GroupResult) error {
	if len(result.Applied) > 0 {
		if err := m.persistLocked(ctx); err != nil {
			return err
		}

		m.signalWake()
	}

	logger.InfoKV(ctx, message,
		"group", group,
		"applied", len(result.Applied),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed))

	return nil
}
