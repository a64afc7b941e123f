// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

// Operation names accepted by the sync batch endpoint. The set is closed;
// anything else is reported as unsupported_operation, never silently skipped.
const (
	OpChecklistItemComplete = "checklist_item.complete"
	OpTicketComplete        = "ticket.complete"
	OpInspectionItemSubmit  = "inspection_item.submit"
	OpTimeEventClockIn      = "time_event.clock_in"
	OpTimeEventClockOut     = "time_event.clock_out"
	OpPhotoUpload           = "photo.upload"
)

// Per-item result statuses
const (
	StAccepted  = "accepted"
	StDuplicate = "duplicate"
	StConflict  = "conflict"
	StError     = "error"
)

// Error codes surfaced in SyncResult and recorded in the ledger
const (
	CodeUnsupportedOperation = "unsupported_operation"
	CodeVersionConflict      = "version_conflict"
	CodeTargetNotFound       = "not_found"
	CodeStorageError         = "storage_error"
	CodeInternalError        = "internal_error"
)

// Conflict reasons carried inside a conflict outcome
const (
	ReasonVersionMismatch = "version_mismatch"
	ReasonTargetMissing   = "target_missing"
)
