// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

// Package wire holds the shared wire-contract schemas for per-operation
// flush routes. Mobile and server are built and tested against this one
// definition so the two sides cannot drift: a body is valid only when it
// carries exactly the declared fields and nothing else.
package wire

import (
	"fmt"
)

// Route templates, versioned by convention. Templates with {id} are
// instantiated by the client router before submission.
const (
	RouteTravelCapture  = "/api/v1/routes/travel/capture"
	RouteStartShift     = "/api/v1/routes/{id}/start-shift"
	RouteEndShift       = "/api/v1/routes/{id}/end-shift"
	RouteSupplyRequests = "/api/v1/supplies/requests"
)

// FieldSpec describes one snake_case body field.
type FieldSpec struct {
	Required bool
}

// RouteSchema is the exact body contract for one route template.
type RouteSchema struct {
	Fields map[string]FieldSpec
}

var schemas = map[string]RouteSchema{
	RouteTravelCapture: {
		Fields: map[string]FieldSpec{
			"route_id":     {Required: true},
			"from_stop_id": {Required: true},
			"to_stop_id":   {Required: true},
		},
	},
	RouteStartShift: {
		Fields: map[string]FieldSpec{
			"started_at": {Required: true},
		},
	},
	RouteEndShift: {
		Fields: map[string]FieldSpec{
			"ended_at": {Required: true},
			"note":     {Required: false},
		},
	},
	RouteSupplyRequests: {
		Fields: map[string]FieldSpec{
			"site_id":   {Required: true},
			"item_name": {Required: true},
			"quantity":  {Required: true},
		},
	},
}

// Schema returns the contract for a route template.
func Schema(route string) (RouteSchema, bool) {
	s, ok := schemas[route]
	return s, ok
}

// Routes returns all known route templates.
func Routes() []string {
	out := make([]string, 0, len(schemas))
	for r := range schemas {
		out = append(out, r)
	}
	return out
}

// Validate checks a body against a route template's contract: every key must
// be declared, every required field must be present. Extra keys are errors,
// not noise - the server rejects them too.
func Validate(route string, body map[string]any) error {
	schema, ok := schemas[route]
	if !ok {
		return fmt.Errorf("unknown route %q", route)
	}
	for key := range body {
		if _, declared := schema.Fields[key]; !declared {
			return fmt.Errorf("route %s: unexpected field %q", route, key)
		}
	}
	for key, spec := range schema.Fields {
		if !spec.Required {
			continue
		}
		if _, present := body[key]; !present {
			return fmt.Errorf("route %s: missing required field %q", route, key)
		}
	}
	return nil
}
