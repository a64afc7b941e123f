// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Clock event kinds
const (
	ClockKindIn  = "clock_in"
	ClockKindOut = "clock_out"
)

// ClockEventHandler inserts time clock events with natural-key dedup.
// The natural key (tenant, actor, kind, occurred_at) is the true identity of
// a clock event: it catches retries that arrive under a fresh idempotency
// key, e.g. after a client crash before the original key was persisted.
type ClockEventHandler struct {
	Kind   string
	logger *slog.Logger
}

type clockEventPayload struct {
	OccurredAt time.Time `json:"occurred_at"`
	SiteID     *string   `json:"site_id,omitempty"`
}

func (h *ClockEventHandler) Apply(ctx context.Context, tx pgx.Tx, in ApplyInput) (Outcome, error) {
	var p clockEventPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		return Failed(CodeStorageError, fmt.Errorf("decode clock event payload: %w", err)), nil
	}
	if p.OccurredAt.IsZero() {
		return Failed(CodeStorageError, errors.New("clock event requires occurred_at")), nil
	}

	// Natural-key probe before inserting
	var existingID string
	err := tx.QueryRow(ctx, `
		SELECT id::text FROM ops.time_events
		WHERE tenant_id = @tenant_id
		  AND actor_id = @actor_id
		  AND kind = @kind
		  AND occurred_at = @occurred_at`,
		pgx.NamedArgs{
			"tenant_id":   in.TenantID,
			"actor_id":    in.ActorID,
			"kind":        h.Kind,
			"occurred_at": p.OccurredAt,
		}).Scan(&existingID)
	if err == nil {
		h.logger.Debug("Clock event already recorded, returning existing row",
			"tenant_id", in.TenantID, "actor_id", in.ActorID, "kind", h.Kind,
			"occurred_at", p.OccurredAt, "server_id", existingID)
		return Duplicate(existingID), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Outcome{}, fmt.Errorf("probe clock event: %w", err)
	}

	id := uuid.New().String()
	_, err = tx.Exec(ctx, `
		INSERT INTO ops.time_events (id, tenant_id, actor_id, kind, occurred_at, site_id)
		VALUES (@id::uuid, @tenant_id, @actor_id, @kind, @occurred_at, @site_id)`,
		pgx.NamedArgs{
			"id":          id,
			"tenant_id":   in.TenantID,
			"actor_id":    in.ActorID,
			"kind":        h.Kind,
			"occurred_at": p.OccurredAt,
			"site_id":     p.SiteID,
		})
	if err != nil {
		return Outcome{}, fmt.Errorf("insert clock event: %w", err)
	}
	return Accepted(id), nil
}
