package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	domain "github.com/oshokin/dynamic-timers/internal/domain/timer"
	"github.com/oshokin/dynamic-timers/internal/service/manager"
)

// Handler provides the HTTP transport for timer operations.
type Handler struct {
	// manager provides the business logic the transport depends on.
	manager *manager.Manager
}

// NewHandler wires the manager into an HTTP handler.
func NewHandler(m *manager.Manager) *Handler {
	return &Handler{
		manager: m,
	}
}

// Register attaches all routes to the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/timers", h.CreateTimer).Methods(http.MethodPost)
	r.HandleFunc("/api/timers", h.ListTimers).Methods(http.MethodGet)
	r.HandleFunc("/api/timers/pause", h.PauseTimers).Methods(http.MethodPost)
	r.HandleFunc("/api/timers/resume", h.ResumeTimers).Methods(http.MethodPost)
	r.HandleFunc("/api/timers/cancel", h.CancelTimers).Methods(http.MethodPost)
	r.HandleFunc("/api/timers/extend", h.ExtendTimers).Methods(http.MethodPost)
	r.HandleFunc("/api/ready", h.Ready).Methods(http.MethodGet)
	r.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)
}

// CreateTimer POST /api/timers
func (h *Handler) CreateTimer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string   `json:"name"`
		Duration        float64  `json:"duration"`
		Actions         any      `json:"actions"`
		RestartBehavior string   `json:"restart_behavior"`
		Groups          []string `json:"groups"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")

		return
	}

	name, err := h.manager.Create(r.Context(), manager.CreateRequest{
		Name:            req.Name,
		Duration:        time.Duration(req.Duration * float64(time.Second)),
		Actions:         req.Actions,
		RestartBehavior: req.RestartBehavior,
		Groups:          req.Groups,
	})
	if err != nil {
		writeDomainError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"name": name})
}

// targetRequest addresses an operation to exactly one timer or one group.
type targetRequest struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

// validate enforces the exactly-one-of name/group rule.
func (req *targetRequest) validate() error {
	if (req.Name == "") == (req.Group == "") {
		return domain.Validationf("provide either name or group")
	}

	return nil
}

// handleTargeted decodes a name-or-group request and routes it to the
// single or batch form of an operation.
func (h *Handler) handleTargeted(
	w http.ResponseWriter,
	r *http.Request,
	single func(ctx context.Context, name string) error,
	batch func(ctx context.Context, group string) (manager.GroupResult, error),
) {
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")

		return
	}

	if err := req.validate(); err != nil {
		writeDomainError(w, err)

		return
	}

	if req.Name != "" {
		if err := single(r.Context(), req.Name); err != nil {
			writeDomainError(w, err)

			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"name": req.Name})

		return
	}

	result, err := batch(r.Context(), req.Group)
	if err != nil {
		writeDomainError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, result)
}

// PauseTimers POST /api/timers/pause
func (h *Handler) PauseTimers(w http.ResponseWriter, r *http.Request) {
	h.handleTargeted(w, r, h.manager.Pause, h.manager.PauseGroup)
}

// ResumeTimers POST /api/timers/resume
func (h *Handler) ResumeTimers(w http.ResponseWriter, r *http.Request) {
	h.handleTargeted(w, r, h.manager.Resume, h.manager.ResumeGroup)
}

// CancelTimers POST /api/timers/cancel
func (h *Handler) CancelTimers(w http.ResponseWriter, r *http.Request) {
	h.handleTargeted(w, r, h.manager.Cancel, h.manager.CancelGroup)
}

// ExtendTimers POST /api/timers/extend
func (h *Handler) ExtendTimers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		targetRequest

		AddDuration float64 `json:"add_duration"`
		NewExpiry   string  `json:"new_expiry"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")

		return
	}

	if err := req.validate(); err != nil {
		writeDomainError(w, err)

		return
	}

	extend := manager.ExtendRequest{
		AddDuration: time.Duration(req.AddDuration * float64(time.Second)),
	}

	if req.NewExpiry != "" {
		expiry, err := time.Parse(time.RFC3339, req.NewExpiry)
		if err != nil {
			writeError(w, http.StatusBadRequest, "new_expiry must be an RFC 3339 timestamp")

			return
		}

		extend.NewExpiry = &expiry
	}

	if req.Name != "" {
		if err := h.manager.Extend(r.Context(), req.Name, extend); err != nil {
			writeDomainError(w, err)

			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"name": req.Name})

		return
	}

	result, err := h.manager.ExtendGroup(r.Context(), req.Group, extend)
	if err != nil {
		writeDomainError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, result)
}

// timerView is the read-only projection of one live timer.
type timerView struct {
	Name            string          `json:"name"`
	State           string          `json:"state"`
	Expiry          *time.Time      `json:"expiry,omitempty"`
	PausedDuration  *float64        `json:"paused_duration,omitempty"`
	Groups          []string        `json:"groups,omitempty"`
	RestartBehavior string          `json:"restart_behavior"`
	Actions         []domain.Action `json:"actions"`
}

// ListTimers GET /api/timers
func (h *Handler) ListTimers(w http.ResponseWriter, r *http.Request) {
	snapshot := h.manager.Query()

	views := make([]timerView, 0, len(snapshot.Timers))

	for _, t := range snapshot.Timers {
		view := timerView{
			Name:            t.Name,
			State:           string(t.State),
			Groups:          t.Groups,
			RestartBehavior: string(t.RestartBehavior),
			Actions:         t.Actions,
		}

		switch t.State {
		case domain.StateActive:
			expiry := t.Expiry
			view.Expiry = &expiry
		case domain.StatePaused:
			seconds := t.PausedRemaining.Seconds()
			view.PausedDuration = &seconds
		}

		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(views),
		"ready":  snapshot.Ready,
		"timers": views,
	})
}

// Ready GET /api/ready reports whether startup reconciliation completed.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	ready := h.manager.Ready()

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]bool{"ready": ready})
}

// Health GET /api/health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
