// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLedgerDuplicate signals that another submission of the same
// (tenant, idempotency key) already won the ledger insert.
var ErrLedgerDuplicate = errors.New("ledger entry already exists")

// Ledger is the append-only record of every processed action. The unique
// constraint on (tenant_id, idempotency_key) is the sole source of
// exactly-once semantics: when two submissions of the same action race,
// exactly one insert succeeds and the other path falls back to a lookup.
//
// A ledger hit always resolves to a duplicate outcome with the stored server
// id, even when the first attempt was recorded as an error. One attempt per
// key, ever; a fresh attempt requires a fresh key.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a ledger over an existing pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

const ledgerSelect = `
	SELECT tenant_id, idempotency_key, actor_id, op, entity_type,
	       COALESCE(entity_id::text, ''), payload, result_status,
	       COALESCE(server_id, ''), COALESCE(error_code, ''),
	       COALESCE(error_message, ''), recorded_at
	FROM opsync.sync_ledger
	WHERE tenant_id = $1 AND idempotency_key = $2`

// Lookup fetches the ledger entry for an idempotency key, or nil when the
// key has never been processed.
func (l *Ledger) Lookup(ctx context.Context, tenantID, key string) (*LedgerEntryEntity, error) {
	return scanLedgerRow(l.pool.QueryRow(ctx, ledgerSelect, tenantID, key))
}

// LookupTx is Lookup within an existing transaction.
func (l *Ledger) LookupTx(ctx context.Context, tx pgx.Tx, tenantID, key string) (*LedgerEntryEntity, error) {
	return scanLedgerRow(tx.QueryRow(ctx, ledgerSelect, tenantID, key))
}

func scanLedgerRow(row pgx.Row) (*LedgerEntryEntity, error) {
	var e LedgerEntryEntity
	err := row.Scan(&e.TenantID, &e.IdempotencyKey, &e.ActorID, &e.Op, &e.EntityType,
		&e.EntityID, &e.Payload, &e.ResultStatus, &e.ServerID, &e.ErrorCode,
		&e.ErrorMessage, &e.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger lookup: %w", err)
	}
	return &e, nil
}

const ledgerInsert = `
	INSERT INTO opsync.sync_ledger
		(tenant_id, idempotency_key, actor_id, op, entity_type, entity_id,
		 payload, result_status, server_id, error_code, error_message)
	VALUES (@tenant_id, @idempotency_key, @actor_id, @op, @entity_type,
	        NULLIF(@entity_id, '')::uuid, @payload, @result_status,
	        NULLIF(@server_id, ''), NULLIF(@error_code, ''),
	        NULLIF(@error_message, ''))`

// RecordTx appends an entry inside the item's transaction. A unique-key
// violation returns ErrLedgerDuplicate so the caller can roll the item's
// effects back and fall back to a lookup.
func (l *Ledger) RecordTx(ctx context.Context, tx pgx.Tx, e *LedgerEntryEntity) error {
	_, err := tx.Exec(ctx, ledgerInsert, ledgerArgs(e))
	if isUniqueViolation(err) {
		return ErrLedgerDuplicate
	}
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	return nil
}

// Record appends an entry outside any caller transaction. Used for outcomes
// whose item transaction could not commit (handler storage failures,
// unsupported operations); the failed attempt still becomes permanent.
// Returns ErrLedgerDuplicate when another submission won the key.
func (l *Ledger) Record(ctx context.Context, e *LedgerEntryEntity) error {
	tag, err := l.pool.Exec(ctx, ledgerInsert+` ON CONFLICT (tenant_id, idempotency_key) DO NOTHING`, ledgerArgs(e))
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLedgerDuplicate
	}
	return nil
}

func ledgerArgs(e *LedgerEntryEntity) pgx.NamedArgs {
	return pgx.NamedArgs{
		"tenant_id":       e.TenantID,
		"idempotency_key": e.IdempotencyKey,
		"actor_id":        e.ActorID,
		"op":              e.Op,
		"entity_type":     e.EntityType,
		"entity_id":       e.EntityID,
		"payload":         e.Payload,
		"result_status":   e.ResultStatus,
		"server_id":       e.ServerID,
		"error_code":      e.ErrorCode,
		"error_message":   e.ErrorMessage,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
