package opsync

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Anderson413366/gleamops-sub010/internal/auth"
)

func TestJWT_GenerateAndValidate(t *testing.T) {
	j := NewJWTAuth("test-secret")

	token, err := j.GenerateToken("crew-42", "tenant-7", "device-abc", time.Hour)
	require.NoError(t, err)

	claims, err := j.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "crew-42", claims.Subject)
	require.Equal(t, "tenant-7", claims.TenantID)
	require.Equal(t, "device-abc", claims.DeviceID)
}

func TestJWT_RejectsExpiredToken(t *testing.T) {
	j := NewJWTAuth("test-secret")

	token, err := j.GenerateToken("crew-42", "tenant-7", "", -time.Minute)
	require.NoError(t, err)

	_, err = j.ValidateToken(token)
	require.Error(t, err)
}

func TestJWT_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWTAuth("secret-a").GenerateToken("crew-42", "tenant-7", "", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTAuth("secret-b").ValidateToken(token)
	require.Error(t, err)
}

func TestJWT_RequestExtraction(t *testing.T) {
	j := NewJWTAuth("test-secret")
	token, err := j.GenerateToken("crew-42", "tenant-7", "", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/sync/batch", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	actorID, err := j.GetActorID(r)
	require.NoError(t, err)
	require.Equal(t, "crew-42", actorID)

	tenantID, err := j.GetTenantID(r)
	require.NoError(t, err)
	require.Equal(t, "tenant-7", tenantID)
}

func TestJWT_RequestWithoutBearer(t *testing.T) {
	j := NewJWTAuth("test-secret")

	r := httptest.NewRequest(http.MethodPost, "/api/v1/sync/batch", nil)
	_, err := j.GetActorID(r)
	require.Error(t, err)

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err = j.GetActorID(r)
	require.Error(t, err)
}

func TestJWT_MiddlewareSetsAuthContext(t *testing.T) {
	j := NewJWTAuth("test-secret")
	token, err := j.GenerateToken("crew-42", "tenant-7", "device-abc", time.Hour)
	require.NoError(t, err)

	var gotActor, gotTenant, gotDevice string
	handler := j.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, _ = auth.GetActorID(r.Context())
		gotTenant, _ = auth.GetTenantID(r.Context())
		gotDevice, _ = auth.GetDeviceID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "crew-42", gotActor)
	require.Equal(t, "tenant-7", gotTenant)
	require.Equal(t, "device-abc", gotDevice)
}

func TestJWT_MiddlewareRejectsBadToken(t *testing.T) {
	j := NewJWTAuth("test-secret")
	handler := j.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a valid token")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer not.a.jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
