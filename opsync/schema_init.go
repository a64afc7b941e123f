// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// initializeSchemaInTx creates the ledger storage within an existing
// transaction. The ledger is the only durable state this engine owns; the
// business tables the handlers touch belong to the embedding application.
func (s *SyncService) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated schema for sync-engine state
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS opsync`,

		// Append-only idempotency ledger. The unique key on
		// (tenant_id, idempotency_key) is enforced here, at the storage
		// layer, so concurrent submissions of the same action cannot both win.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS opsync.sync_ledger (
			tenant_id       TEXT        NOT NULL,
			idempotency_key UUID        NOT NULL,
			actor_id        TEXT        NOT NULL,
			op              TEXT        NOT NULL,
			entity_type     TEXT        NOT NULL,
			entity_id       UUID,
			payload         JSON        NOT NULL,
			result_status   TEXT        NOT NULL CHECK (result_status IN ('accepted','duplicate','conflict','error')),
			server_id       TEXT,
			error_code      TEXT,
			error_message   TEXT,
			recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, idempotency_key)
		)`,

		// Optimizes tenant-scoped diagnostics over recent outcomes
		`CREATE INDEX IF NOT EXISTS sync_ledger_tenant_recorded_idx ON opsync.sync_ledger(tenant_id, recorded_at)`,
		`CREATE INDEX IF NOT EXISTS sync_ledger_tenant_actor_idx ON opsync.sync_ledger(tenant_id, actor_id, recorded_at)`,
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}
