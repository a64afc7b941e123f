// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"encoding/json"
	"time"
)

// LedgerEntryEntity represents a row in opsync.sync_ledger. Rows are
// append-only and immutable once written; the unique key on
// (tenant_id, idempotency_key) is the exactly-once contract.
type LedgerEntryEntity struct {
	TenantID       string          `db:"tenant_id"`
	IdempotencyKey string          `db:"idempotency_key"`
	ActorID        string          `db:"actor_id"`
	Op             string          `db:"op"`
	EntityType     string          `db:"entity_type"`
	EntityID       string          `db:"entity_id"`
	Payload        json.RawMessage `db:"payload"`       // Snapshot of the submitted payload
	ResultStatus   string          `db:"result_status"` // accepted, conflict, error
	ServerID       string          `db:"server_id"`
	ErrorCode      string          `db:"error_code"`
	ErrorMessage   string          `db:"error_message"`
	RecordedAt     time.Time       `db:"recorded_at"`
}
