package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mcdev12/flowminder/go/internal/errs"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/rs/zerolog/log"
)

// StateHandler serves the HTTP boundary used by the REST layer and provider webhooks
type StateHandler struct {
	engine *Engine
}

// NewStateHandler creates a new state handler
func NewStateHandler(engine *Engine) *StateHandler {
	return &StateHandler{engine: engine}
}

type participantBody struct {
	Name string `json:"name"`
}

// HandleGetState handles GET /api/meetings/{id}/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	state, err := h.engine.State(r.Context(), meetingID)
	if err != nil {
		writeError(w, meetingID, "get state", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleReloadAgenda handles POST /api/meetings/{id}/agenda/reload
func (h *StateHandler) HandleReloadAgenda(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	snap, err := h.engine.Agenda.ForceReload(r.Context(), meetingID)
	if err != nil {
		writeError(w, meetingID, "reload agenda", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleGetTimerSettings handles GET /api/meetings/{id}/timer-settings
func (h *StateHandler) HandleGetTimerSettings(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	settings, err := h.engine.Timer.Settings(r.Context(), meetingID)
	if err != nil {
		writeError(w, meetingID, "get timer settings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timer_settings": settings})
}

// HandlePutTimerSettings handles PUT /api/meetings/{id}/timer-settings
func (h *StateHandler) HandlePutTimerSettings(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")

	var body struct {
		TimerSettings *models.TimerSettings `json:"timer_settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, meetingID, "put timer settings", errs.Invalid("body", err.Error()))
		return
	}
	if body.TimerSettings == nil {
		writeError(w, meetingID, "put timer settings", errs.Invalid("timer_settings", "is required"))
		return
	}

	stored, err := h.engine.Timer.UpdateSettings(r.Context(), meetingID, *body.TimerSettings)
	if err != nil {
		writeError(w, meetingID, "put timer settings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timer_settings": stored})
}

// HandleParticipantJoined handles POST /api/meetings/{id}/participants/{userId}/join
func (h *StateHandler) HandleParticipantJoined(w http.ResponseWriter, r *http.Request) {
	meetingID, userID := r.PathValue("id"), r.PathValue("userId")

	var body participantBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, meetingID, "participant join", errs.Invalid("body", err.Error()))
		return
	}
	res, err := h.engine.Nudge.JoinMeeting(r.Context(), meetingID, userID, body.Name)
	if err != nil {
		writeError(w, meetingID, "participant join", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "noop": res.IsNoOp()})
}

// HandleParticipantLeft handles POST /api/meetings/{id}/participants/{userId}/leave
func (h *StateHandler) HandleParticipantLeft(w http.ResponseWriter, r *http.Request) {
	meetingID, userID := r.PathValue("id"), r.PathValue("userId")

	res, err := h.engine.Nudge.LeaveMeeting(r.Context(), meetingID, userID)
	if err != nil {
		writeError(w, meetingID, "participant leave", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "noop": res.IsNoOp()})
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/meetings/{id}/state", h.HandleGetState)
	mux.HandleFunc("POST /api/meetings/{id}/agenda/reload", h.HandleReloadAgenda)
	mux.HandleFunc("GET /api/meetings/{id}/timer-settings", h.HandleGetTimerSettings)
	mux.HandleFunc("PUT /api/meetings/{id}/timer-settings", h.HandlePutTimerSettings)
	mux.HandleFunc("POST /api/meetings/{id}/participants/{userId}/join", h.HandleParticipantJoined)
	mux.HandleFunc("POST /api/meetings/{id}/participants/{userId}/leave", h.HandleParticipantLeft)
}

func statusFor(err error) int {
	switch errs.Reason(err) {
	case errs.ReasonInvalid:
		return http.StatusBadRequest
	case errs.ReasonNotFound, errs.ReasonTargetNotInMeeting:
		return http.StatusNotFound
	case errs.ReasonConflict:
		return http.StatusConflict
	case errs.ReasonCooldown:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, meetingID, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("meeting_id", meetingID).Msg("failed to " + op)
	}
	writeJSON(w, status, map[string]any{"ok": false, "reason": errs.Reason(err), "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
