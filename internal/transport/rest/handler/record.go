package handler

import (
	"net/http"

	"carelink/internal/service"
)

// RecordHandler handles the durable-record read side.
type RecordHandler struct {
	svc *service.CallService
}

// NewRecordHandler creates a new record handler.
func NewRecordHandler(svc *service.CallService) *RecordHandler {
	return &RecordHandler{svc: svc}
}

// List handles GET /v1/records. Returns the requester's anchored call
// records, with payloads re-hydrated from the blob store where available.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := requesterID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	role := r.URL.Query().Get("role")

	records, err := h.svc.RecordsForUser(r.Context(), userID, role)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}
