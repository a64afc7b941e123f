// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package flushq

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Anderson413366/gleamops-sub010/opsync"
)

// SyncBatchPath is the server endpoint queued actions are flushed to.
const SyncBatchPath = "/api/v1/sync/batch"

// UploaderLoop flushes the queue in a loop with exponential backoff between
// failed attempts, until the context is cancelled.
func (c *Client) UploaderLoop(ctx context.Context) {
	backoff := c.config.BackoffMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt32(&c.uploadPaused) == 1 {
			time.Sleep(backoff)
			continue
		}

		err := c.UploadOnce(ctx)
		if err != nil {
			time.Sleep(backoff)
			backoff = backoff * 2
			if backoff > c.config.BackoffMax {
				backoff = c.config.BackoffMax
			}
		} else {
			backoff = c.config.BackoffMin
			time.Sleep(backoff)
		}
	}
}

// UploadOnce flushes one batch of queued actions and reconciles queue states
// from the per-item results. Rows already in submitted state are included:
// an unacknowledged flush (crash, lost response) is safe to resubmit because
// the idempotency key never changes.
func (c *Client) UploadOnce(ctx context.Context) error {
	if atomic.LoadInt32(&c.uploadPaused) == 1 {
		return nil
	}

	rows, err := c.DB.QueryContext(ctx, `
		SELECT queue_item_id, idempotency_key, op, entity_type,
		       COALESCE(entity_id, ''), COALESCE(base_version, ''), payload
		FROM _flush_queue
		WHERE state IN ('pending', 'submitted')
		ORDER BY queued_at
		LIMIT ?
	`, c.config.UploadLimit)
	if err != nil {
		return fmt.Errorf("failed to query flush queue: %w", err)
	}
	defer rows.Close()

	var items []opsync.SyncItem
	for rows.Next() {
		var item opsync.SyncItem
		var payload string
		if err := rows.Scan(&item.QueueItemID, &item.IdempotencyKey, &item.Op,
			&item.EntityType, &item.EntityID, &item.BaseVersion, &payload); err != nil {
			return fmt.Errorf("failed to scan queue row: %w", err)
		}
		item.Payload = json.RawMessage(payload)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read flush queue: %w", err)
	}
	rows.Close()

	if len(items) == 0 {
		return nil // Nothing to flush
	}

	if err := c.markSubmitted(ctx, items); err != nil {
		return err
	}

	response, err := c.postBatch(ctx, &opsync.SyncRequest{Items: items})
	if err != nil {
		// Rows stay in submitted state and will be flushed again with the
		// same idempotency keys.
		return err
	}

	return c.reconcile(ctx, response.Results)
}

// markSubmitted transitions the batch rows to submitted and bumps attempts
func (c *Client) markSubmitted(ctx context.Context, items []opsync.SyncItem) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin submit transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE _flush_queue SET state = ?, attempts = attempts + 1
			WHERE queue_item_id = ?
		`, StateSubmitted, item.QueueItemID); err != nil {
			return fmt.Errorf("failed to mark %s submitted: %w", item.QueueItemID, err)
		}
	}
	return tx.Commit()
}

// postBatch submits one sync request with a bearer token
func (c *Client) postBatch(ctx context.Context, req *opsync.SyncRequest) (*opsync.SyncResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+SyncBatchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build sync request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	token, err := c.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sync request rejected: status=%d body=%s", resp.StatusCode, msg)
	}

	var response opsync.SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync response: %w", err)
	}
	return &response, nil
}

// reconcile applies per-item results to the local queue by queue_item_id.
// Accepted and duplicate both acknowledge the action; conflict parks the row
// for app-level resolution; error means the attempt is permanently recorded
// server-side and resubmitting the same key would only report duplicate.
func (c *Client) reconcile(ctx context.Context, results []opsync.SyncResult) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reconcile transaction: %w", err)
	}
	defer tx.Rollback()

	for _, result := range results {
		var state string
		switch result.Status {
		case opsync.StAccepted, opsync.StDuplicate:
			state = StateAcked
		case opsync.StConflict:
			state = StateNeedsResolution
		default:
			state = StateFailed
		}

		if err := c.applyResult(ctx, tx, result, state); err != nil {
			return err
		}

		if state != StateAcked {
			c.logger.Warn("Queue item needs attention",
				"queue_item_id", result.QueueItemID, "status", result.Status,
				"reason", result.Reason, "error_code", result.ErrorCode)
		}
	}
	return tx.Commit()
}

func (c *Client) applyResult(ctx context.Context, tx *sql.Tx, result opsync.SyncResult, state string) error {
	code := result.ErrorCode
	if code == "" {
		code = result.Reason
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE _flush_queue
		SET state = ?, server_id = NULLIF(?, ''), error_code = NULLIF(?, '')
		WHERE queue_item_id = ?
	`, state, result.ServerID, code, result.QueueItemID)
	if err != nil {
		return fmt.Errorf("failed to reconcile %s: %w", result.QueueItemID, err)
	}
	return nil
}
