package opsync

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func validTestItem() SyncItem {
	return SyncItem{
		QueueItemID:    "q-1",
		IdempotencyKey: uuid.New().String(),
		Op:             OpChecklistItemComplete,
		EntityType:     "checklist_item",
		EntityID:       uuid.New().String(),
		BaseVersion:    uuid.New().String(),
		Payload:        json.RawMessage(`{"completed":true}`),
	}
}

func newValidationService(t *testing.T, maxItems, maxPayload int) *SyncService {
	t.Helper()
	// Validation never touches storage, so a service without a pool is fine.
	return &SyncService{
		config: &ServiceConfig{MaxBatchItems: maxItems, MaxPayloadBytes: maxPayload},
	}
}

func TestValidateRequest_OK(t *testing.T) {
	s := newValidationService(t, 10, 0)
	req := &SyncRequest{Items: []SyncItem{validTestItem(), validTestItem()}}
	require.NoError(t, s.ValidateRequest(req))
}

func TestValidateRequest_BatchTooLarge(t *testing.T) {
	s := newValidationService(t, 2, 0)
	req := &SyncRequest{Items: []SyncItem{validTestItem(), validTestItem(), validTestItem()}}
	err := s.ValidateRequest(req)
	require.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestValidateRequest_BadItems(t *testing.T) {
	cases := map[string]func(*SyncItem){
		"missing queue_item_id":   func(i *SyncItem) { i.QueueItemID = "  " },
		"bad idempotency_key":     func(i *SyncItem) { i.IdempotencyKey = "not-a-uuid" },
		"missing op":              func(i *SyncItem) { i.Op = "" },
		"missing entity_type":     func(i *SyncItem) { i.EntityType = "" },
		"bad entity_id":           func(i *SyncItem) { i.EntityID = "42" },
		"missing payload":         func(i *SyncItem) { i.Payload = nil },
		"payload not json object": func(i *SyncItem) { i.Payload = json.RawMessage(`[1,2]`) },
		"payload not json":        func(i *SyncItem) { i.Payload = json.RawMessage(`{broken`) },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := newValidationService(t, 10, 0)
			item := validTestItem()
			mutate(&item)
			err := s.ValidateRequest(&SyncRequest{Items: []SyncItem{item}})
			require.ErrorIs(t, err, ErrBadItem)
		})
	}
}

func TestValidateRequest_PayloadSizeLimit(t *testing.T) {
	s := newValidationService(t, 10, 32)
	item := validTestItem()
	item.Payload = json.RawMessage(fmt.Sprintf(`{"note":%q}`, "a very long note that exceeds the configured payload cap"))
	err := s.ValidateRequest(&SyncRequest{Items: []SyncItem{item}})
	require.ErrorIs(t, err, ErrBadItem)
}

func TestValidateRequest_UnknownOpIsNotAShapeError(t *testing.T) {
	// Unrecognized operations are per-item error outcomes, not boundary
	// rejections; the shape validator must let them through.
	s := newValidationService(t, 10, 0)
	item := validTestItem()
	item.Op = "legacy.frobnicate"
	require.NoError(t, s.ValidateRequest(&SyncRequest{Items: []SyncItem{item}}))
}

func TestValidateRequest_NormalizesOpCase(t *testing.T) {
	s := newValidationService(t, 10, 0)
	item := validTestItem()
	item.Op = "  Checklist_Item.Complete "
	item.EntityType = " Checklist_Item "
	req := &SyncRequest{Items: []SyncItem{item}}
	require.NoError(t, s.ValidateRequest(req))
	require.Equal(t, OpChecklistItemComplete, req.Items[0].Op)
	require.Equal(t, "checklist_item", req.Items[0].EntityType)
}
