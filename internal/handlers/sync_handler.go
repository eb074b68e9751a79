package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prudhvinik1/fieldsync/internal/models"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
	"github.com/prudhvinik1/fieldsync/internal/services"
	"github.com/prudhvinik1/fieldsync/internal/syncerr"
)

// SyncHandler exposes the reconciliation API.
type SyncHandler struct {
	reconcile *services.ReconcileService
	status    *services.StatusService
	logger    *zap.Logger
}

func NewSyncHandler(reconcile *services.ReconcileService, status *services.StatusService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		reconcile: reconcile,
		status:    status,
		logger:    logger,
	}
}

// Register mounts the sync routes on r. The router is expected to carry
// AuthMiddleware already.
func (h *SyncHandler) Register(r chi.Router) {
	r.Post("/sync/bulk", h.BulkSync)
	r.Get("/sync/status", h.Status)
	r.Post("/sync/conflicts/{conflictID}/resolve", h.ResolveConflict)
}

func (h *SyncHandler) BulkSync(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	var req models.BulkSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	results, err := h.reconcile.ApplyBatch(r.Context(), principal, req.Entries)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, models.BulkSyncResponse{Results: results})
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	status, err := h.status.Status(r.Context(), principal)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	conflictID, err := strconv.ParseInt(chi.URLParam(r, "conflictID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid conflict id")
		return
	}

	var req models.ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	resp, err := h.reconcile.ResolveConflict(r.Context(), principal, conflictID, req)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(w, http.StatusNotFound, "conflict not found")
			return
		}
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *SyncHandler) respondServiceError(w http.ResponseWriter, err error) {
	switch syncerr.KindOf(err) {
	case syncerr.KindValidation:
		respondError(w, http.StatusBadRequest, err.Error())
	case syncerr.KindConflict:
		respondError(w, http.StatusConflict, err.Error())
	case syncerr.KindAuth:
		respondError(w, http.StatusUnauthorized, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
