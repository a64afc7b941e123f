package flushq

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/Anderson413366/gleamops-sub010/opsync"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client, err := NewClient(db, baseURL,
		func(context.Context) (string, error) { return "test-token", nil },
		nil, logger)
	require.NoError(t, err)
	return client
}

func queuedKey(t *testing.T, c *Client, queueItemID string) string {
	t.Helper()
	var key string
	err := c.DB.QueryRow(
		`SELECT idempotency_key FROM _flush_queue WHERE queue_item_id = ?`, queueItemID).Scan(&key)
	require.NoError(t, err)
	return key
}

func TestEnqueue_KeyIsStableAcrossRetries(t *testing.T) {
	// One failing flush, then a succeeding one. Both must carry the exact key
	// minted at enqueue time.
	var seenKeys []string
	fail := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req opsync.SyncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for _, item := range req.Items {
			seenKeys = append(seenKeys, item.IdempotencyKey)
		}
		if fail {
			fail = false
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		results := make([]opsync.SyncResult, len(req.Items))
		for i, item := range req.Items {
			results[i] = opsync.SyncResult{
				QueueItemID: item.QueueItemID,
				Status:      opsync.StAccepted,
				ServerID:    uuid.New().String(),
			}
		}
		_ = json.NewEncoder(w).Encode(opsync.SyncResponse{Results: results})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	qid, err := client.Enqueue(ctx, opsync.OpChecklistItemComplete, "checklist_item",
		uuid.New().String(), "v1", json.RawMessage(`{"completed":true}`))
	require.NoError(t, err)
	mintedKey := queuedKey(t, client, qid)

	require.Error(t, client.UploadOnce(ctx))
	state, err := client.ItemState(ctx, qid)
	require.NoError(t, err)
	require.Equal(t, StateSubmitted, state, "rows stay submitted after a failed flush")

	require.NoError(t, client.UploadOnce(ctx))
	state, err = client.ItemState(ctx, qid)
	require.NoError(t, err)
	require.Equal(t, StateAcked, state)

	require.Equal(t, []string{mintedKey, mintedKey}, seenKeys)
}

func TestUploadOnce_ReconcilesStates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var req opsync.SyncRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Items, 4)

		results := []opsync.SyncResult{
			{QueueItemID: req.Items[0].QueueItemID, Status: opsync.StAccepted, ServerID: "srv-1"},
			{QueueItemID: req.Items[1].QueueItemID, Status: opsync.StDuplicate, ServerID: "srv-2"},
			{QueueItemID: req.Items[2].QueueItemID, Status: opsync.StConflict, Reason: opsync.ReasonVersionMismatch},
			{QueueItemID: req.Items[3].QueueItemID, Status: opsync.StError, ErrorCode: opsync.CodeUnsupportedOperation},
		}
		_ = json.NewEncoder(w).Encode(opsync.SyncResponse{Results: results})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	var qids []string
	for i := 0; i < 4; i++ {
		qid, err := client.Enqueue(ctx, opsync.OpChecklistItemComplete, "checklist_item",
			uuid.New().String(), "", json.RawMessage(`{"completed":true}`))
		require.NoError(t, err)
		qids = append(qids, qid)
	}

	require.NoError(t, client.UploadOnce(ctx))

	for i, want := range []string{StateAcked, StateAcked, StateNeedsResolution, StateFailed} {
		state, err := client.ItemState(ctx, qids[i])
		require.NoError(t, err)
		require.Equal(t, want, state, "queue item %d", i)
	}

	// Conflict rows carry the reason for the app's resolution flow
	var code string
	err := client.DB.QueryRow(
		`SELECT COALESCE(error_code, '') FROM _flush_queue WHERE queue_item_id = ?`, qids[2]).Scan(&code)
	require.NoError(t, err)
	require.Equal(t, opsync.ReasonVersionMismatch, code)

	// Terminal rows are excluded from the next flush
	pending, err := client.CountInState(ctx, StatePending)
	require.NoError(t, err)
	require.Zero(t, pending)
	require.NoError(t, client.UploadOnce(ctx))
}

func TestUploadOnce_EmptyQueueIsNoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty queue must not hit the network")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.UploadOnce(context.Background()))
}

func TestDiscard_RemovesRow(t *testing.T) {
	client := newTestClient(t, "http://localhost:0")
	ctx := context.Background()

	qid, err := client.Enqueue(ctx, opsync.OpTicketComplete, "ticket",
		uuid.New().String(), "v1", json.RawMessage(`{"resolution":"done"}`))
	require.NoError(t, err)

	require.NoError(t, client.Discard(ctx, qid))
	_, err = client.ItemState(ctx, qid)
	require.Error(t, err)
}

func TestPauseUploads_SkipsFlush(t *testing.T) {
	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		_ = json.NewEncoder(w).Encode(opsync.SyncResponse{})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()
	_, err := client.Enqueue(ctx, opsync.OpPhotoUpload, "photo", "", "",
		json.RawMessage(`{"object_key":"k"}`))
	require.NoError(t, err)

	client.PauseUploads()
	require.NoError(t, client.UploadOnce(ctx))
	require.False(t, hit)

	client.ResumeUploads()
	require.NoError(t, client.UploadOnce(ctx))
	require.True(t, hit)
}
