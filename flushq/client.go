// Package flushq provides the SQLite-backed local action queue and flush
// client for GleamOps field-mobile sync.
// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package flushq

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Queue item states. A queue row is the client-held side of one action:
// pending -> submitted -> {acked | needs_resolution | failed}.
// needs_resolution requires app-level reconciliation (re-fetch the entity,
// re-apply or discard) and must never be auto-retried under the same
// idempotency key expecting a different outcome.
const (
	StatePending         = "pending"
	StateSubmitted       = "submitted"
	StateAcked           = "acked"
	StateNeedsResolution = "needs_resolution"
	StateFailed          = "failed"
)

// Client manages the local SQLite action queue and flushes it to the batch
// sync endpoint.
type Client struct {
	DB      *sql.DB
	BaseURL string
	Token   func(context.Context) (string, error) // returns JWT
	HTTP    *http.Client
	config  *Config
	logger  *slog.Logger
	writeMu sync.Mutex // Serialize write operations to prevent SQLite locking issues

	uploadPaused int32
}

// Config holds configuration for the flush client
type Config struct {
	UploadLimit int           // e.g., 100 per batch
	BackoffMin  time.Duration // 1s
	BackoffMax  time.Duration // 60s
}

// DefaultConfig returns a default flush client configuration
func DefaultConfig() *Config {
	return &Config{
		UploadLimit: 100,
		BackoffMin:  1 * time.Second,
		BackoffMax:  60 * time.Second,
	}
}

// PauseUploads suspends upload operations (UploadOnce and background loops respect this flag)
func (c *Client) PauseUploads() { atomic.StoreInt32(&c.uploadPaused, 1) }

// ResumeUploads resumes upload operations
func (c *Client) ResumeUploads() { atomic.StoreInt32(&c.uploadPaused, 0) }

// NewClient creates a flush client over an open SQLite database
func NewClient(db *sql.DB, baseURL string, tok func(ctx context.Context) (string, error), config *Config, logger *slog.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Client{
		DB:      db,
		BaseURL: baseURL,
		Token:   tok,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		config:  config,
		logger:  logger,
	}, nil
}

// initializeDatabase creates the local queue table
func initializeDatabase(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS _flush_queue (
		queue_item_id   TEXT PRIMARY KEY,
		idempotency_key TEXT NOT NULL UNIQUE,  -- generated once, never regenerated on retry
		op              TEXT NOT NULL,
		entity_type     TEXT NOT NULL,
		entity_id       TEXT,
		base_version    TEXT,
		payload         TEXT NOT NULL,
		state           TEXT NOT NULL DEFAULT 'pending'
			CHECK (state IN ('pending','submitted','acked','needs_resolution','failed')),
		server_id       TEXT,
		error_code      TEXT,
		attempts        INTEGER NOT NULL DEFAULT 0,
		queued_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return fmt.Errorf("failed to create flush queue table: %w", err)
	}
	return nil
}

// Enqueue records one queued action. The idempotency key is generated here,
// exactly once per action; every later flush attempt reuses it, which is the
// invariant that makes retries safe.
func (c *Client) Enqueue(ctx context.Context, op, entityType, entityID, baseVersion string, payload json.RawMessage) (string, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	queueItemID := uuid.New().String()
	idempotencyKey := uuid.New().String()

	_, err := c.DB.ExecContext(ctx, `
		INSERT INTO _flush_queue
			(queue_item_id, idempotency_key, op, entity_type, entity_id, base_version, payload)
		VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)
	`, queueItemID, idempotencyKey, op, entityType, entityID, baseVersion, string(payload))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue action: %w", err)
	}

	c.logger.Debug("Action queued", "queue_item_id", queueItemID, "op", op, "entity_id", entityID)
	return queueItemID, nil
}

// Discard drops a queue row, typically after the app resolved a conflict by
// abandoning the local change.
func (c *Client) Discard(ctx context.Context, queueItemID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err := c.DB.ExecContext(ctx, `DELETE FROM _flush_queue WHERE queue_item_id = ?`, queueItemID)
	if err != nil {
		return fmt.Errorf("failed to discard queue item %s: %w", queueItemID, err)
	}
	return nil
}

// ItemState returns the current state of one queue row
func (c *Client) ItemState(ctx context.Context, queueItemID string) (string, error) {
	var state string
	err := c.DB.QueryRowContext(ctx,
		`SELECT state FROM _flush_queue WHERE queue_item_id = ?`, queueItemID).Scan(&state)
	if err != nil {
		return "", fmt.Errorf("failed to query queue item %s: %w", queueItemID, err)
	}
	return state, nil
}

// CountInState returns the number of queue rows in a given state
func (c *Client) CountInState(ctx context.Context, state string) (int, error) {
	var n int
	err := c.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM _flush_queue WHERE state = ?`, state).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return n, nil
}
