// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package opsync

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Anderson413366/gleamops-sub010/internal/auth"
)

// ClientAuthenticator resolves the acting identity for a request.
// Implementations validate auth (e.g. JWT) and return actor and tenant;
// the processor consumes this as a pass/fail precondition, once per batch.
type ClientAuthenticator interface {
	GetActorID(r *http.Request) (string, error)
	GetTenantID(r *http.Request) (string, error)
}

// JWTAuth handles JWT authentication
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a new JWT authenticator
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{
		secret: []byte(secret),
	}
}

// JWTClaims represents JWT claims for a field-mobile crew member.
// The actor goes in the standard 'sub' claim; tenant and device are custom.
type JWTClaims struct {
	TenantID string `json:"tid"`
	DeviceID string `json:"did,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken generates a JWT token for one actor on one tenant
func (j *JWTAuth) GenerateToken(actorID, tenantID, deviceID string, expiration time.Duration) (string, error) {
	claims := &JWTClaims{
		TenantID: tenantID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "gleamops-sync",
			Subject:   actorID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, fmt.Errorf("missing sub (actor ID) in token")
		}
		if claims.TenantID == "" {
			return nil, fmt.Errorf("missing tid (tenant ID) in token")
		}
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// GetActorID extracts the actor ID from the standard sub claim (implements ClientAuthenticator)
func (j *JWTAuth) GetActorID(r *http.Request) (string, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// GetTenantID extracts the tenant ID from the tid claim (implements ClientAuthenticator)
func (j *JWTAuth) GetTenantID(r *http.Request) (string, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return "", err
	}
	return claims.TenantID, nil
}

func (j *JWTAuth) claimsFromRequest(r *http.Request) (*JWTClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, fmt.Errorf("bearer token required")
	}

	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// Middleware returns an HTTP middleware for JWT authentication
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || bearerToken[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := j.ValidateToken(bearerToken[1])
		if err != nil {
			// Safely log token prefix (max 20 chars)
			tokenPrefix := bearerToken[1]
			if len(tokenPrefix) > 20 {
				tokenPrefix = tokenPrefix[:20]
			}
			slog.Error("JWT validation failed", "error", err, "token_prefix", tokenPrefix)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := auth.SetAuthContext(r.Context(), claims.Subject, claims.TenantID, claims.DeviceID)
		r = r.WithContext(ctx)

		next.ServeHTTP(w, r)
	})
}
