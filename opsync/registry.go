// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// ApplyInput carries everything a handler needs to apply one queued action.
type ApplyInput struct {
	TenantID    string
	ActorID     string
	EntityID    string
	BaseVersion string // Opaque version token, empty means unconditional
	Payload     json.RawMessage
}

// Outcome is the handler-level result of applying one action. Exactly one of
// the four statuses is set; constructors below are the only way to build one.
type Outcome struct {
	Status       string // accepted, duplicate, conflict, error
	ServerID     string
	Reason       string // Conflict reason
	ErrorCode    string
	ErrorMessage string
}

// OperationHandler applies one kind of change inside the caller's
// transaction. Handlers return application-level failures through the
// Outcome; a non-nil error means the storage layer itself is broken and the
// item transaction must not commit.
type OperationHandler interface {
	Apply(ctx context.Context, tx pgx.Tx, in ApplyInput) (Outcome, error)
}

// Registry is the explicit operation→handler dispatch table. It is built
// once at process start and passed to the processor, which keeps the
// processor unit-testable with fake handlers.
type Registry struct {
	handlers map[string]OperationHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]OperationHandler)}
}

// Register binds an operation name to a handler. Later registrations for the
// same operation replace earlier ones.
func (r *Registry) Register(op string, h OperationHandler) {
	r.handlers[op] = h
}

// Resolve returns the handler for an operation name, or false when the
// operation is not part of the closed set.
func (r *Registry) Resolve(op string) (OperationHandler, bool) {
	h, ok := r.handlers[op]
	return h, ok
}

// Operations returns the registered operation names, for diagnostics.
func (r *Registry) Operations() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	return ops
}

// DefaultRegistry builds the production dispatch table covering every
// supported operation.
func DefaultRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry()
	r.Register(OpChecklistItemComplete, &ChecklistCompleteHandler{logger: logger})
	r.Register(OpTicketComplete, &TicketCompleteHandler{logger: logger})
	r.Register(OpInspectionItemSubmit, &InspectionSubmitHandler{logger: logger})
	r.Register(OpTimeEventClockIn, &ClockEventHandler{Kind: ClockKindIn, logger: logger})
	r.Register(OpTimeEventClockOut, &ClockEventHandler{Kind: ClockKindOut, logger: logger})
	r.Register(OpPhotoUpload, &PhotoUploadHandler{logger: logger})
	return r
}

// Outcome constructors

func Accepted(serverID string) Outcome {
	return Outcome{Status: StAccepted, ServerID: serverID}
}

func Duplicate(serverID string) Outcome {
	return Outcome{Status: StDuplicate, ServerID: serverID}
}

func Conflict(reason string) Outcome {
	return Outcome{Status: StConflict, Reason: reason}
}

func Failed(code string, err error) Outcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Status: StError, ErrorCode: code, ErrorMessage: msg}
}
