// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Conditional-update handlers. The update predicate is scoped by tenant,
// entity id and, when the client supplied one, the version token it last
// saw. Zero rows affected is a conflict, never a silent success; the
// follow-up existence probe decides between a stale token and a missing row.

// ChecklistCompleteHandler marks a checklist item complete or incomplete.
type ChecklistCompleteHandler struct {
	logger *slog.Logger
}

type checklistCompletePayload struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Note        *string    `json:"note,omitempty"`
}

func (h *ChecklistCompleteHandler) Apply(ctx context.Context, tx pgx.Tx, in ApplyInput) (Outcome, error) {
	var p checklistCompletePayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		return Failed(CodeStorageError, fmt.Errorf("decode checklist payload: %w", err)), nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE ops.checklist_items
		SET completed = @completed,
		    completed_at = @completed_at,
		    completed_by = @actor_id,
		    note = COALESCE(@note, note),
		    version = @new_version,
		    updated_at = now()
		WHERE tenant_id = @tenant_id
		  AND id = @id::uuid
		  AND (@base_version::text IS NULL OR version = @base_version)`,
		pgx.NamedArgs{
			"tenant_id":    in.TenantID,
			"id":           in.EntityID,
			"completed":    p.Completed,
			"completed_at": p.CompletedAt,
			"actor_id":     in.ActorID,
			"note":         p.Note,
			"new_version":  uuid.New().String(),
			"base_version": nullableToken(in.BaseVersion),
		})
	if err != nil {
		return Outcome{}, fmt.Errorf("update checklist item %s: %w", in.EntityID, err)
	}
	return updateOutcome(ctx, tx, "ops.checklist_items", in, tag.RowsAffected())
}

// TicketCompleteHandler closes a work ticket with a resolution.
type TicketCompleteHandler struct {
	logger *slog.Logger
}

type ticketCompletePayload struct {
	Resolution  string     `json:"resolution"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (h *TicketCompleteHandler) Apply(ctx context.Context, tx pgx.Tx, in ApplyInput) (Outcome, error) {
	var p ticketCompletePayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		return Failed(CodeStorageError, fmt.Errorf("decode ticket payload: %w", err)), nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE ops.tickets
		SET status = 'completed',
		    resolution = @resolution,
		    completed_at = @completed_at,
		    completed_by = @actor_id,
		    version = @new_version,
		    updated_at = now()
		WHERE tenant_id = @tenant_id
		  AND id = @id::uuid
		  AND (@base_version::text IS NULL OR version = @base_version)`,
		pgx.NamedArgs{
			"tenant_id":    in.TenantID,
			"id":           in.EntityID,
			"resolution":   p.Resolution,
			"completed_at": p.CompletedAt,
			"actor_id":     in.ActorID,
			"new_version":  uuid.New().String(),
			"base_version": nullableToken(in.BaseVersion),
		})
	if err != nil {
		return Outcome{}, fmt.Errorf("update ticket %s: %w", in.EntityID, err)
	}
	return updateOutcome(ctx, tx, "ops.tickets", in, tag.RowsAffected())
}

// InspectionSubmitHandler records the submitted result for one inspection item.
type InspectionSubmitHandler struct {
	logger *slog.Logger
}

type inspectionSubmitPayload struct {
	Result      string     `json:"result"` // pass, fail, n/a
	Score       *int       `json:"score,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

func (h *InspectionSubmitHandler) Apply(ctx context.Context, tx pgx.Tx, in ApplyInput) (Outcome, error) {
	var p inspectionSubmitPayload
	if err := json.Unmarshal(in.Payload, &p); err != nil {
		return Failed(CodeStorageError, fmt.Errorf("decode inspection payload: %w", err)), nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE ops.inspection_items
		SET result = @result,
		    score = @score,
		    submitted_at = @submitted_at,
		    submitted_by = @actor_id,
		    version = @new_version,
		    updated_at = now()
		WHERE tenant_id = @tenant_id
		  AND id = @id::uuid
		  AND (@base_version::text IS NULL OR version = @base_version)`,
		pgx.NamedArgs{
			"tenant_id":    in.TenantID,
			"id":           in.EntityID,
			"result":       p.Result,
			"score":        p.Score,
			"submitted_at": p.SubmittedAt,
			"actor_id":     in.ActorID,
			"new_version":  uuid.New().String(),
			"base_version": nullableToken(in.BaseVersion),
		})
	if err != nil {
		return Outcome{}, fmt.Errorf("update inspection item %s: %w", in.EntityID, err)
	}
	return updateOutcome(ctx, tx, "ops.inspection_items", in, tag.RowsAffected())
}

// updateOutcome maps an affected-row count to an outcome. One row means the
// version gate passed; zero rows means conflict and we probe the row to name
// the reason.
func updateOutcome(ctx context.Context, tx pgx.Tx, table string, in ApplyInput, affected int64) (Outcome, error) {
	if affected > 0 {
		return Accepted(in.EntityID), nil
	}

	var exists bool
	err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE tenant_id = $1 AND id = $2::uuid)`, table),
		in.TenantID, in.EntityID).Scan(&exists)
	if err != nil {
		return Outcome{}, fmt.Errorf("probe %s for conflict reason: %w", table, err)
	}
	if exists {
		return Conflict(ReasonVersionMismatch), nil
	}
	return Conflict(ReasonTargetMissing), nil
}

// nullableToken turns an empty version token into SQL NULL so the predicate
// collapses to an unconditional update.
func nullableToken(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
