package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"carelink/internal/model"
	"carelink/internal/service"

	"github.com/gorilla/mux"
)

// CallHandler handles call lifecycle endpoints.
type CallHandler struct {
	svc *service.CallService
}

// NewCallHandler creates a new call handler.
func NewCallHandler(svc *service.CallService) *CallHandler {
	return &CallHandler{svc: svc}
}

// CreateCallRequest is the request body for starting a call.
type CreateCallRequest struct {
	RespondentID   string         `json:"respondentId"`
	InitiatorRole  string         `json:"initiatorRole"`
	RespondentRole string         `json:"respondentRole"`
	Kind           model.CallKind `json:"kind"`
}

// Create handles POST /v1/calls
func (h *CallHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := requesterID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req CreateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.CreateSession(userID, req.RespondentID, req.InitiatorRole, req.RespondentRole, req.Kind)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// Answer handles POST /v1/calls/{id}/answer
func (h *CallHandler) Answer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	userID := requesterID(r)

	sess, err := h.svc.AnswerSession(id, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// End handles POST /v1/calls/{id}/end
func (h *CallHandler) End(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	userID := requesterID(r)

	sess, err := h.svc.EndSession(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// UpdateStatusRequest is the request body for a status update.
type UpdateStatusRequest struct {
	Status model.CallStatus `json:"status"`
}

// UpdateStatus handles POST /v1/calls/{id}/status
func (h *CallHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	userID := requesterID(r)

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.UpdateStatus(r.Context(), id, userID, req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Get handles GET /v1/calls/{id}
func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSessionState(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Active handles GET /v1/calls/active
func (h *CallHandler) Active(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetActiveSessionFor(requesterID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Concluded handles GET /v1/calls/concluded. With ?with=<userId> it narrows
// to calls between the requester and that user.
func (h *CallHandler) Concluded(w http.ResponseWriter, r *http.Request) {
	userID := requesterID(r)

	var sessions []model.Session
	if other := r.URL.Query().Get("with"); other != "" {
		sessions = h.svc.GetConcludedBetween(userID, other)
	} else {
		sessions = h.svc.GetConcludedFor(userID)
	}
	writeJSON(w, http.StatusOK, sessions)
}

// Stats handles GET /v1/calls/stats
func (h *CallHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetStats())
}

// AppendSignalRequest is the request body for queuing a relay payload.
type AppendSignalRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// AppendSignal handles POST /v1/calls/{id}/signals
func (h *CallHandler) AppendSignal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	userID := requesterID(r)

	var req AppendSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.AppendSignaling(id, userID, req.Payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"stateVersion": sess.StateVersion})
}

// ReadSignals handles GET /v1/calls/{id}/signals
func (h *CallHandler) ReadSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := h.svc.ReadSignaling(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if signals == nil {
		signals = []model.Signal{}
	}
	writeJSON(w, http.StatusOK, signals)
}

// requesterID reads the caller identity injected by the upstream gateway.
// Authentication itself is out of scope here.
func requesterID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, model.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrAlreadyAnswered),
		errors.Is(err, model.ErrAlreadyEnded),
		errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
