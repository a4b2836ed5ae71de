package timer

import "strings"

// ActionType tags the canonical action variants.
type ActionType string

const (
	// ActionServiceCall invokes a service on the automation backend.
	ActionServiceCall ActionType = "service_call"
	// ActionEvent fires a named event on the automation backend.
	ActionEvent ActionType = "event"
)

// Action is the canonical descriptor of one effect to perform on expiry.
// Exactly the fields of the tagged variant are populated.
type Action struct {
	// Type selects the variant.
	Type ActionType `json:"type"`
	// Service is the "domain.service" identifier for service calls.
	Service string `json:"service,omitempty"`
	// Target selects the entities a service call applies to.
	Target map[string]any `json:"target,omitempty"`
	// Data is the service call payload. String values may contain template
	// markup rendered at dispatch time.
	Data map[string]any `json:"data,omitempty"`
	// Event is the event name for event actions.
	Event string `json:"event,omitempty"`
	// EventData is the event payload. String values may contain template
	// markup rendered at dispatch time.
	EventData map[string]any `json:"event_data,omitempty"`
}

// SplitService returns the domain and service parts of the identifier.
func (a *Action) SplitService() (string, string) {
	domain, service, _ := strings.Cut(a.Service, ".")

	return domain, service
}

// Clone returns a deep copy of the action.
func (a *Action) Clone() Action {
	return Action{
		Type:      a.Type,
		Service:   a.Service,
		Target:    cloneMap(a.Target),
		Data:      cloneMap(a.Data),
		Event:     a.Event,
		EventData: cloneMap(a.EventData),
	}
}

// CloneActions returns a deep copy of an action list.
func CloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}

	cloned := make([]Action, len(actions))
	for i := range actions {
		cloned[i] = actions[i].Clone()
	}

	return cloned
}

// NormalizeActions converts an externally supplied action specification
// (a single mapping or a list of mappings, legacy or modern field names)
// into the canonical descriptor list. Order is preserved.
func NormalizeActions(raw any) ([]Action, error) {
	switch v := raw.(type) {
	case nil:
		return nil, MalformedActionf("actions are required")
	case map[string]any:
		action, err := normalizeAction(v)
		if err != nil {
			return nil, err
		}

		return []Action{action}, nil
	case []any:
		if len(v) == 0 {
			return nil, MalformedActionf("actions are required")
		}

		actions := make([]Action, 0, len(v))

		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, MalformedActionf("action %d is not a mapping", i)
			}

			action, err := normalizeAction(m)
			if err != nil {
				return nil, err
			}

			actions = append(actions, action)
		}

		return actions, nil
	case []map[string]any:
		if len(v) == 0 {
			return nil, MalformedActionf("actions are required")
		}

		actions := make([]Action, 0, len(v))

		for _, m := range v {
			action, err := normalizeAction(m)
			if err != nil {
				return nil, err
			}

			actions = append(actions, action)
		}

		return actions, nil
	default:
		return nil, MalformedActionf("actions must be a mapping or a list of mappings, got %T", raw)
	}
}

// normalizeAction resolves one mapping into a canonical descriptor.
// Disambiguation order: explicit legacy action_type, then the modern
// action/service field, then the event field.
func normalizeAction(m map[string]any) (Action, error) {
	kind, err := resolveActionKind(m)
	if err != nil {
		return Action{}, err
	}

	switch kind {
	case ActionServiceCall:
		return normalizeServiceCall(m)
	default:
		return normalizeEvent(m)
	}
}

// resolveActionKind determines which variant a mapping describes.
func resolveActionKind(m map[string]any) (ActionType, error) {
	if raw, ok := m["action_type"]; ok {
		legacy, ok := raw.(string)
		if !ok {
			return "", MalformedActionf("action_type must be a string, got %T", raw)
		}

		switch legacy {
		case "service":
			return ActionServiceCall, nil
		case "event":
			return ActionEvent, nil
		default:
			return "", MalformedActionf("unknown action_type %q", legacy)
		}
	}

	if _, ok := m["action"]; ok {
		return ActionServiceCall, nil
	}

	if _, ok := m["service"]; ok {
		return ActionServiceCall, nil
	}

	if _, ok := m["event"]; ok {
		return ActionEvent, nil
	}

	return "", MalformedActionf("mapping has none of action_type, action, service or event")
}

// normalizeServiceCall builds the service_call variant.
func normalizeServiceCall(m map[string]any) (Action, error) {
	service := stringField(m, "action")
	if service == "" {
		service = stringField(m, "service")
	}

	if service == "" {
		return Action{}, MalformedActionf("service call is missing a service identifier")
	}

	if before, after, ok := strings.Cut(service, "."); !ok || before == "" || after == "" {
		return Action{}, MalformedActionf("service %q is not in domain.service format", service)
	}

	target, err := mapField(m, "target")
	if err != nil {
		return Action{}, err
	}

	data, err := mapField(m, "data")
	if err != nil {
		return Action{}, err
	}

	return Action{
		Type:    ActionServiceCall,
		Service: service,
		Target:  target,
		Data:    data,
	}, nil
}

// normalizeEvent builds the event variant.
func normalizeEvent(m map[string]any) (Action, error) {
	event := stringField(m, "event")
	if event == "" {
		return Action{}, MalformedActionf("event action is missing an event name")
	}

	data, err := mapField(m, "event_data")
	if err != nil {
		return Action{}, err
	}

	return Action{
		Type:      ActionEvent,
		Event:     event,
		EventData: data,
	}, nil
}

// stringField extracts a string value from a mapping, "" if absent or not a string.
func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)

	return s
}

// mapField extracts an optional mapping value, failing on wrong types.
func mapField(m map[string]any, key string) (map[string]any, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, nil
	}

	value, ok := raw.(map[string]any)
	if !ok {
		return nil, MalformedActionf("%s must be a mapping, got %T", key, raw)
	}

	return cloneMap(value), nil
}

// cloneMap deep-copies a payload mapping, descending into nested maps and lists.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	cloned := make(map[string]any, len(m))
	for k, v := range m {
		cloned[k] = cloneValue(v)
	}

	return cloned
}

// cloneValue deep-copies a payload value.
func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return cloneMap(value)
	case []any:
		cloned := make([]any, len(value))
		for i := range value {
			cloned[i] = cloneValue(value[i])
		}

		return cloned
	default:
		return v
	}
}
