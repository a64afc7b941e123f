// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"encoding/json"
)

// REST/JSON models for the batch sync endpoint.
// Tenant and actor identity come from the JWT, not from the request body.

// SyncRequest represents a batch of locally queued actions flushed by a client.
type SyncRequest struct {
	Items []SyncItem `json:"items"`
}

// SyncItem represents a single queued action in a sync request.
// IdempotencyKey is generated once on the client when the action is created
// and must survive retries unchanged; that stability is what makes
// resubmission safe.
type SyncItem struct {
	QueueItemID    string          `json:"queue_item_id"`          // Client-local queue row id
	IdempotencyKey string          `json:"idempotency_key"`        // Retry-stable key, UUID
	Op             string          `json:"op"`                     // Closed operation enum
	EntityType     string          `json:"entity_type"`            // e.g. "checklist_item"
	EntityID       string          `json:"entity_id,omitempty"`    // Target entity UUID (empty for inserts)
	BaseVersion    string          `json:"base_version,omitempty"` // Opaque version token the client last saw
	Payload        json.RawMessage `json:"payload"`                // Operation-shaped JSON object
}

// SyncResponse is the server response to a processed batch.
type SyncResponse struct {
	Results []SyncResult `json:"results"` // One per item, submitted order
}

// SyncResult is the per-item outcome. Created fresh per batch item and never
// mutated after construction.
type SyncResult struct {
	QueueItemID  string `json:"queue_item_id"`
	Status       string `json:"status"` // accepted, duplicate, conflict, error
	ServerID     string `json:"server_id,omitempty"`
	Reason       string `json:"reason,omitempty"` // Conflict reason
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ErrorResponse represents a transport-level error response (4xx/5xx).
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusResponse represents service status response
type StatusResponse struct {
	Status     string   `json:"status"`   // healthy, degraded, unhealthy
	AppName    string   `json:"app_name"` // Application name
	Operations []string `json:"operations"`
}
