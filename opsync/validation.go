// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation error sentinels for boundary rejection mapping
var (
	ErrBatchTooLarge = errors.New("batch_too_large")
	ErrBadItem       = errors.New("bad_item")
)

// ValidateRequest performs the boundary-level shape validation of a batch.
// Oversized batches and malformed items reject the whole request before any
// ledger write; an unknown operation name is deliberately not a shape error,
// it must be ledger-recorded per item instead.
func (s *SyncService) ValidateRequest(req *SyncRequest) error {
	if s.config.MaxBatchItems > 0 && len(req.Items) > s.config.MaxBatchItems {
		return fmt.Errorf("%w: items=%d limit=%d", ErrBatchTooLarge, len(req.Items), s.config.MaxBatchItems)
	}
	for i := range req.Items {
		if err := validateItem(&req.Items[i], s.config.MaxPayloadBytes); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// validateItem checks one queued action's shape. It also normalizes
// operation and entity type case so handler dispatch is exact-match.
func validateItem(item *SyncItem, maxPayloadBytes int) error {
	item.Op = strings.ToLower(strings.TrimSpace(item.Op))
	item.EntityType = strings.ToLower(strings.TrimSpace(item.EntityType))

	if strings.TrimSpace(item.QueueItemID) == "" {
		return fmt.Errorf("%w: missing queue_item_id", ErrBadItem)
	}
	if _, err := uuid.Parse(item.IdempotencyKey); err != nil {
		return fmt.Errorf("%w: idempotency_key must be a UUID: %q", ErrBadItem, item.IdempotencyKey)
	}
	if item.Op == "" {
		return fmt.Errorf("%w: missing op", ErrBadItem)
	}
	if item.EntityType == "" {
		return fmt.Errorf("%w: missing entity_type", ErrBadItem)
	}
	if item.EntityID != "" {
		if _, err := uuid.Parse(item.EntityID); err != nil {
			return fmt.Errorf("%w: entity_id must be a UUID: %q", ErrBadItem, item.EntityID)
		}
	}

	if len(item.Payload) == 0 {
		return fmt.Errorf("%w: payload required", ErrBadItem)
	}
	var obj map[string]any
	if err := json.Unmarshal(item.Payload, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: payload must be a JSON object", ErrBadItem)
	}
	if maxPayloadBytes > 0 && len(item.Payload) > maxPayloadBytes {
		return fmt.Errorf("%w: payload too large: %d > %d", ErrBadItem, len(item.Payload), maxPayloadBytes)
	}

	// The version token is opaque but bounded; anything longer is garbage.
	if len(item.BaseVersion) > 128 {
		return fmt.Errorf("%w: base_version too long", ErrBadItem)
	}
	return nil
}
