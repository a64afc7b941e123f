// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const (
	actorIDKey  contextKey = "actor_id"
	tenantIDKey contextKey = "tenant_id"
	deviceIDKey contextKey = "device_id"
)

// SetActorID sets the acting user's ID in the context
func SetActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

// GetActorID retrieves the acting user's ID from the context
func GetActorID(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(actorIDKey).(string)
	return actorID, ok
}

// SetTenantID sets the tenant ID in the context
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// GetTenantID retrieves the tenant ID from the context
func GetTenantID(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantIDKey).(string)
	return tenantID, ok
}

// SetDeviceID sets the submitting device's ID in the context
func SetDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

// GetDeviceID retrieves the submitting device's ID from the context
func GetDeviceID(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(deviceIDKey).(string)
	return deviceID, ok
}

// SetAuthContext sets actor, tenant and device identity in one call
func SetAuthContext(ctx context.Context, actorID, tenantID, deviceID string) context.Context {
	ctx = SetActorID(ctx, actorID)
	ctx = SetTenantID(ctx, tenantID)
	ctx = SetDeviceID(ctx, deviceID)
	return ctx
}
