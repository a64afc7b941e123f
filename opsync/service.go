// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncService is the server-side batch processor for flushed mutations.
// It owns no in-memory coordination between requests: batches from different
// requests run concurrently and meet only at the ledger's unique key and the
// conditional update predicates.
type SyncService struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	config   *ServiceConfig
	registry *Registry
	ledger   *Ledger

	mu     sync.RWMutex
	closed bool
}

// ServiceConfig holds configuration for the sync service
type ServiceConfig struct {
	AppName string // Application name for connection tracking

	MaxBatchItems   int // Maximum items per sync request (0 = unlimited)
	MaxPayloadBytes int // Maximum JSON payload size per item in bytes (0 = unlimited)

	// MaxItemAttempts bounds retries of an item transaction that failed with
	// a retryable Postgres error (serialization failure, deadlock). The
	// idempotency ledger makes these retries safe.
	MaxItemAttempts int
	RetryBackoff    time.Duration

	StageMetrics    StageMetricsRecorder
	LogStageTimings bool
}

// NewSyncService creates a new sync service from an existing pool and an
// explicit handler registry.
func NewSyncService(pool *pgxpool.Pool, registry *Registry, config *ServiceConfig, logger *slog.Logger) (*SyncService, error) {
	if config == nil {
		config = &ServiceConfig{AppName: "gleamops-sync"}
	}
	if config.MaxBatchItems == 0 {
		config.MaxBatchItems = 100
	}
	if config.MaxItemAttempts <= 0 {
		config.MaxItemAttempts = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = DefaultRegistry(logger)
	}

	service := &SyncService{
		pool:     pool,
		logger:   logger,
		config:   config,
		registry: registry,
		ledger:   NewLedger(pool),
	}

	ctx := context.Background()
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := service.initializeSchemaInTx(ctx, tx); err != nil {
			logger.Error("Failed to initialize ledger schema", "error", err)
			return err
		}
		logger.Debug("Ledger schema initialized successfully")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sync service: %w", err)
	}

	return service, nil
}

// Close gracefully shuts down the sync service. It does NOT close the
// database pool - the caller is responsible for pool lifecycle.
func (s *SyncService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("Sync service shutdown complete")
	return nil
}

// Pool returns the underlying database connection pool
func (s *SyncService) Pool() *pgxpool.Pool {
	return s.pool
}

// Ledger returns the idempotency ledger, for diagnostics and tests
func (s *SyncService) Ledger() *Ledger {
	return s.ledger
}

// Registry returns the operation dispatch table
func (s *SyncService) Registry() *Registry {
	return s.registry
}

func (s *SyncService) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New("sync service has been closed")
	}
	return nil
}

// ProcessBatch applies a batch of queued actions for one tenant and actor.
// Items are processed sequentially in submitted order, each as an
// independent unit of work: one item's failure never aborts or rolls back
// another. Validation errors (oversized batch, malformed item) reject the
// whole request before any ledger write and wrap ErrBatchTooLarge or
// ErrBadItem for boundary mapping.
func (s *SyncService) ProcessBatch(ctx context.Context, tenantID, actorID string, req *SyncRequest) (*SyncResponse, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := s.ValidateRequest(req); err != nil {
		return nil, err
	}

	totalStart := s.stageStart()
	results := make([]SyncResult, 0, len(req.Items))

	for i := range req.Items {
		// Items already recorded stay final when the request dies mid-batch;
		// unreached items are resubmitted by the client under their original
		// idempotency keys.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		results = append(results, s.processItem(ctx, tenantID, actorID, &req.Items[i]))
	}

	s.observeStage(ctx, MetricsOpBatch, MetricsStageTotal, totalStart, len(req.Items), 1, false)

	return &SyncResponse{Results: results}, nil
}

// processItem runs the ledger-lookup → dispatch → ledger-record sequence for
// one queued action and folds every failure into a per-item result.
func (s *SyncService) processItem(ctx context.Context, tenantID, actorID string, item *SyncItem) SyncResult {
	lookupStart := s.stageStart()
	prior, err := s.ledger.Lookup(ctx, tenantID, item.IdempotencyKey)
	s.observeStage(ctx, MetricsOpBatch, MetricsStageLedgerLookup, lookupStart, 1, 1, err != nil)
	if err != nil {
		s.logger.Error("Ledger lookup failed", "error", err,
			"tenant_id", tenantID, "idempotency_key", item.IdempotencyKey)
		return resultError(item.QueueItemID, CodeStorageError, err.Error())
	}
	if prior != nil {
		s.logger.Debug("Idempotency key already processed",
			"tenant_id", tenantID, "idempotency_key", item.IdempotencyKey,
			"op", item.Op, "server_id", prior.ServerID)
		return resultFromLedger(item.QueueItemID, prior)
	}

	handler, ok := s.registry.Resolve(item.Op)
	if !ok {
		return s.recordDetachedOutcome(ctx, tenantID, actorID, item,
			Failed(CodeUnsupportedOperation, fmt.Errorf("unsupported operation %q", item.Op)))
	}

	in := ApplyInput{
		TenantID:    tenantID,
		ActorID:     actorID,
		EntityID:    item.EntityID,
		BaseVersion: item.BaseVersion,
		Payload:     item.Payload,
	}

	for attempt := 1; ; attempt++ {
		var outcome Outcome
		applyStart := s.stageStart()
		err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			out, herr := handler.Apply(ctx, tx, in)
			if herr != nil {
				return herr
			}
			outcome = out
			return s.ledger.RecordTx(ctx, tx, s.ledgerEntryFor(tenantID, actorID, item, out))
		})
		s.observeStage(ctx, MetricsOpBatch, MetricsStageHandlerApply, applyStart, 1, attempt, err != nil)

		switch {
		case err == nil:
			s.logger.Debug("Item applied", "tenant_id", tenantID, "op", item.Op,
				"idempotency_key", item.IdempotencyKey, "status", outcome.Status,
				"server_id", outcome.ServerID)
			return resultFromOutcome(item.QueueItemID, outcome)

		case errors.Is(err, ErrLedgerDuplicate):
			// Lost the record race: another submission of the same key won
			// the ledger insert and this item's effects were rolled back.
			return s.duplicateFromLedger(ctx, tenantID, item)

		case isRetryablePGTxError(err) && attempt < s.config.MaxItemAttempts:
			s.logger.Warn("Retrying item after transient storage error",
				"error", err, "attempt", attempt, "op", item.Op,
				"idempotency_key", item.IdempotencyKey)
			if serr := sleepWithContext(ctx, s.config.RetryBackoff*time.Duration(attempt)); serr != nil {
				return resultError(item.QueueItemID, CodeStorageError, serr.Error())
			}
			continue

		default:
			s.logger.Error("Handler apply failed", "error", err,
				"tenant_id", tenantID, "op", item.Op, "idempotency_key", item.IdempotencyKey)
			return s.recordDetachedOutcome(ctx, tenantID, actorID, item,
				Failed(CodeStorageError, err))
		}
	}
}

// recordDetachedOutcome persists an outcome whose item transaction never
// committed (unsupported operation, handler storage failure) so the failed
// attempt is still permanent, then builds the matching result. Losing the
// record race degrades to a duplicate like any other re-hit.
func (s *SyncService) recordDetachedOutcome(ctx context.Context, tenantID, actorID string, item *SyncItem, o Outcome) SyncResult {
	recordStart := s.stageStart()
	err := s.ledger.Record(ctx, s.ledgerEntryFor(tenantID, actorID, item, o))
	s.observeStage(ctx, MetricsOpBatch, MetricsStageLedgerRecord, recordStart, 1, 1, err != nil && !errors.Is(err, ErrLedgerDuplicate))
	if errors.Is(err, ErrLedgerDuplicate) {
		return s.duplicateFromLedger(ctx, tenantID, item)
	}
	if err != nil {
		s.logger.Error("Failed to record ledger outcome", "error", err,
			"tenant_id", tenantID, "idempotency_key", item.IdempotencyKey)
		// The outcome still reaches the client; only its permanence is lost.
	}
	return resultFromOutcome(item.QueueItemID, o)
}

func (s *SyncService) duplicateFromLedger(ctx context.Context, tenantID string, item *SyncItem) SyncResult {
	prior, err := s.ledger.Lookup(ctx, tenantID, item.IdempotencyKey)
	if err != nil {
		return resultError(item.QueueItemID, CodeStorageError, err.Error())
	}
	if prior == nil {
		return resultError(item.QueueItemID, CodeInternalError,
			"ledger reported a duplicate key but no entry was found; retry")
	}
	return resultFromLedger(item.QueueItemID, prior)
}

func (s *SyncService) ledgerEntryFor(tenantID, actorID string, item *SyncItem, o Outcome) *LedgerEntryEntity {
	code := o.ErrorCode
	if o.Status == StConflict {
		code = o.Reason
	}
	return &LedgerEntryEntity{
		TenantID:       tenantID,
		IdempotencyKey: item.IdempotencyKey,
		ActorID:        actorID,
		Op:             item.Op,
		EntityType:     item.EntityType,
		EntityID:       item.EntityID,
		Payload:        item.Payload,
		ResultStatus:   o.Status,
		ServerID:       o.ServerID,
		ErrorCode:      code,
		ErrorMessage:   o.ErrorMessage,
	}
}
