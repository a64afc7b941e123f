// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

// resultAccepted creates a result for a freshly applied action
func resultAccepted(queueItemID, serverID string) SyncResult {
	return SyncResult{
		QueueItemID: queueItemID,
		Status:      StAccepted,
		ServerID:    serverID,
	}
}

// resultDuplicate creates a result for an idempotency-key re-hit, echoing the
// server id fixed by the first processing of the key
func resultDuplicate(queueItemID, serverID string) SyncResult {
	return SyncResult{
		QueueItemID: queueItemID,
		Status:      StDuplicate,
		ServerID:    serverID,
	}
}

// resultConflict creates a result for a stale-write or missing-target conflict
func resultConflict(queueItemID, reason string) SyncResult {
	return SyncResult{
		QueueItemID: queueItemID,
		Status:      StConflict,
		Reason:      reason,
	}
}

// resultError creates a result for a per-item failure
func resultError(queueItemID, code, message string) SyncResult {
	return SyncResult{
		QueueItemID:  queueItemID,
		Status:       StError,
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// resultFromOutcome maps a handler outcome onto a per-item result
func resultFromOutcome(queueItemID string, o Outcome) SyncResult {
	switch o.Status {
	case StAccepted:
		return resultAccepted(queueItemID, o.ServerID)
	case StDuplicate:
		return resultDuplicate(queueItemID, o.ServerID)
	case StConflict:
		return resultConflict(queueItemID, o.Reason)
	default:
		return resultError(queueItemID, o.ErrorCode, o.ErrorMessage)
	}
}

// resultFromLedger maps a stored ledger entry onto a duplicate result. The
// original outcome is deliberately not inspected: the first processing of a
// key fixes its result forever.
func resultFromLedger(queueItemID string, e *LedgerEntryEntity) SyncResult {
	return resultDuplicate(queueItemID, e.ServerID)
}
