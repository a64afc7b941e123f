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

// PhotoUploadHandler records photo metadata. There is no pre-existing
// identity for a photo, so this is a plain insert; the idempotency ledger is
// the only duplicate defense.
type PhotoUploadHandler struct {
	logger *slog.Logger
}

type photoUploadPayload struct {
	EntityType string     `json:"entity_type"` // What the photo documents
	EntityID   *string    `json:"entity_id,omitempty"`
	ObjectKey  string     `json:"object_key"` // Blob store key uploaded out of band
	Caption    *string    `json:"caption,omitempty"`
	TakenAt    *time.Time `json:"taken_at,omitempty"`
}

func (h *PhotoUploadHandler) Apply(ctx context.Context, tx pgx.Tx, in ApplyInput) (Outcome, error) {
	var p photoUploadPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		return Failed(CodeStorageError, fmt.Errorf("decode photo payload: %w", err)), nil
	}
	if p.ObjectKey == "" {
		return Failed(CodeStorageError, errors.New("photo upload requires object_key")), nil
	}

	id := uuid.New().String()
	_, err := tx.Exec(ctx, `
		INSERT INTO ops.photos (id, tenant_id, actor_id, entity_type, entity_id, object_key, caption, taken_at)
		VALUES (@id::uuid, @tenant_id, @actor_id, @entity_type, @entity_id::uuid, @object_key, @caption, @taken_at)`,
		pgx.NamedArgs{
			"id":          id,
			"tenant_id":   in.TenantID,
			"actor_id":    in.ActorID,
			"entity_type": p.EntityType,
			"entity_id":   p.EntityID,
			"object_key":  p.ObjectKey,
			"caption":     p.Caption,
			"taken_at":    p.TakenAt,
		})
	if err != nil {
		return Outcome{}, fmt.Errorf("insert photo: %w", err)
	}

	h.logger.Debug("Photo metadata recorded", "tenant_id", in.TenantID, "server_id", id, "object_key", p.ObjectKey)
	return Accepted(id), nil
}
