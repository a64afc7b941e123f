// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
)

// HTTPSyncHandlers provides HTTP handlers for the mutation sync API
type HTTPSyncHandlers struct {
	service       *SyncService
	authenticator ClientAuthenticator
	logger        *slog.Logger
}

// NewHTTPSyncHandlers creates a new instance of sync handlers
func NewHTTPSyncHandlers(service *SyncService, authenticator ClientAuthenticator, logger *slog.Logger) *HTTPSyncHandlers {
	return &HTTPSyncHandlers{
		service:       service,
		authenticator: authenticator,
		logger:        logger,
	}
}

// HandleSyncBatch processes batch submissions of queued actions.
// Conflict and error statuses inside the response are business outcomes, not
// transport failures: a processed batch is 200 regardless of per-item
// results. 4xx covers auth and shape problems, 5xx only ledger/storage
// unavailability.
func (h *HTTPSyncHandlers) HandleSyncBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	actorID, err := h.authenticator.GetActorID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	tenantID, err := h.authenticator.GetTenantID(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	var syncReq SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&syncReq); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse sync request")
		return
	}

	response, err := h.service.ProcessBatch(r.Context(), tenantID, actorID, &syncReq)
	if err != nil {
		switch {
		case errors.Is(err, ErrBatchTooLarge), errors.Is(err, ErrBadItem):
			h.writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		default:
			h.logger.Error("Failed to process sync batch", "error", err, "tenant_id", tenantID, "actor_id", actorID)
			h.writeError(w, http.StatusInternalServerError, "sync_failed", "Failed to process sync batch")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode sync response", "error", err, "tenant_id", tenantID)
	}
}

// HandleStatus returns service status and the supported operation set
func (h *HTTPSyncHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}

	ops := h.service.Registry().Operations()
	sort.Strings(ops)

	response := StatusResponse{
		Status:     "healthy",
		AppName:    h.service.config.AppName,
		Operations: ops,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// writeError writes a standardized error response
func (h *HTTPSyncHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
