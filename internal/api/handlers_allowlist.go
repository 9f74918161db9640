package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"ratekeeper/internal/allowlist"
	"ratekeeper/internal/models"

	"github.com/gorilla/mux"
)

// ListAllowEntries lists the persisted allow-list.
// GET /api/v1/allowlist
func (h *Handlers) ListAllowEntries(w http.ResponseWriter, r *http.Request) {
	if !h.requireAllowList(w) {
		return
	}

	resp, err := h.allowList.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// AddAllowEntry exempts a key from rate limiting.
// POST /api/v1/allowlist
func (h *Handlers) AddAllowEntry(w http.ResponseWriter, r *http.Request) {
	if !h.requireAllowList(w) {
		return
	}

	var req models.AddAllowEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON in request body")
		return
	}

	entry, err := h.allowList.Add(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, &models.AddAllowEntryResponse{
		Key:       entry.Key,
		Message:   "Allow-list entry added",
		CreatedAt: entry.CreatedAt,
	})
}

// DeleteAllowEntry subjects a key to rate limiting again.
// DELETE /api/v1/allowlist/{key}
func (h *Handlers) DeleteAllowEntry(w http.ResponseWriter, r *http.Request) {
	if !h.requireAllowList(w) {
		return
	}

	key, err := url.PathUnescape(mux.Vars(r)["key"])
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid key encoding")
		return
	}
	if err := h.allowList.Remove(r.Context(), key); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, &models.DeleteAllowEntryResponse{
		Key:     key,
		Message: "Allow-list entry removed",
	})
}

func (h *Handlers) requireAllowList(w http.ResponseWriter) bool {
	if h.allowList != nil {
		return true
	}
	writeErrorResponse(w, http.StatusNotFound, models.ErrorCodeAllowListDisabled, "The allow-list is not enabled")
	return false
}

func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *allowlist.ServiceError
	if errors.As(err, &svcErr) {
		writeErrorResponse(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}
	slog.Error("Unexpected allow-list error", "error", err)
	writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
}
