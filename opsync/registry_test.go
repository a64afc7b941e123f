package opsync

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	outcome Outcome
	err     error
	calls   int
}

func (f *fakeHandler) Apply(_ context.Context, _ pgx.Tx, _ ApplyInput) (Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

func TestDefaultRegistry_CoversClosedOperationSet(t *testing.T) {
	r := DefaultRegistry(slog.Default())
	for _, op := range []string{
		OpChecklistItemComplete,
		OpTicketComplete,
		OpInspectionItemSubmit,
		OpTimeEventClockIn,
		OpTimeEventClockOut,
		OpPhotoUpload,
	} {
		_, ok := r.Resolve(op)
		require.True(t, ok, "operation %s must be registered", op)
	}
	require.Len(t, r.Operations(), 6)
}

func TestRegistry_UnknownOperation(t *testing.T) {
	r := DefaultRegistry(nil)
	_, ok := r.Resolve("checklist_item.uncomplete")
	require.False(t, ok)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first := &fakeHandler{outcome: Accepted("a")}
	second := &fakeHandler{outcome: Accepted("b")}
	r.Register("test.op", first)
	r.Register("test.op", second)

	h, ok := r.Resolve("test.op")
	require.True(t, ok)
	out, err := h.Apply(context.Background(), nil, ApplyInput{})
	require.NoError(t, err)
	require.Equal(t, "b", out.ServerID)
	require.Zero(t, first.calls)
}

func TestOutcomeConstructors(t *testing.T) {
	require.Equal(t, Outcome{Status: StAccepted, ServerID: "s1"}, Accepted("s1"))
	require.Equal(t, Outcome{Status: StDuplicate, ServerID: "s2"}, Duplicate("s2"))
	require.Equal(t, Outcome{Status: StConflict, Reason: ReasonVersionMismatch}, Conflict(ReasonVersionMismatch))

	failed := Failed(CodeStorageError, errors.New("boom"))
	require.Equal(t, StError, failed.Status)
	require.Equal(t, CodeStorageError, failed.ErrorCode)
	require.Equal(t, "boom", failed.ErrorMessage)
}

func TestResultMapping(t *testing.T) {
	require.Equal(t, SyncResult{QueueItemID: "q", Status: StAccepted, ServerID: "s"},
		resultFromOutcome("q", Accepted("s")))
	require.Equal(t, SyncResult{QueueItemID: "q", Status: StDuplicate, ServerID: "s"},
		resultFromOutcome("q", Duplicate("s")))
	require.Equal(t, SyncResult{QueueItemID: "q", Status: StConflict, Reason: ReasonTargetMissing},
		resultFromOutcome("q", Conflict(ReasonTargetMissing)))

	errRes := resultFromOutcome("q", Failed(CodeUnsupportedOperation, errors.New("nope")))
	require.Equal(t, StError, errRes.Status)
	require.Equal(t, CodeUnsupportedOperation, errRes.ErrorCode)
}

func TestResultFromLedger_AlwaysDuplicate(t *testing.T) {
	// The stored outcome is deliberately not inspected: even an error entry
	// resolves to duplicate with the originally recorded server id.
	entry := &LedgerEntryEntity{ResultStatus: StError, ServerID: "", ErrorCode: CodeStorageError}
	res := resultFromLedger("q", entry)
	require.Equal(t, StDuplicate, res.Status)

	entry = &LedgerEntryEntity{ResultStatus: StAccepted, ServerID: "srv-1"}
	res = resultFromLedger("q", entry)
	require.Equal(t, StDuplicate, res.Status)
	require.Equal(t, "srv-1", res.ServerID)
}
