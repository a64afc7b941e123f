// Copyright 2025 GleamOps
// SPDX-License-Identifier: Apache-2.0

package flushq

import (
	"strings"

	"github.com/Anderson413366/gleamops-sub010/wire"
)

// Mutation is one locally captured change, with camelCase field names as the
// app records them.
type Mutation struct {
	Type   string
	Fields map[string]any
}

// Route is the wire destination for a flushable mutation: a concrete path
// plus a body restricted to exactly the fields the server schema expects.
type Route struct {
	APIPath  string         // Concrete path, params substituted
	Template string         // wire route template for schema validation
	Body     map[string]any // snake_case wire body
}

// routeSpec maps one mutation type onto a wire route. fieldMap renames
// camelCase mutation fields to their snake_case wire names and doubles as
// the whitelist: fields outside it never reach the body.
type routeSpec struct {
	template  string
	pathField string            // camelCase field substituted for {id}, empty when none
	fieldMap  map[string]string // camelCase -> snake_case
}

var flushRoutes = map[string]routeSpec{
	"route_travel_capture": {
		template: wire.RouteTravelCapture,
		fieldMap: map[string]string{
			"routeId":    "route_id",
			"fromStopId": "from_stop_id",
			"toStopId":   "to_stop_id",
		},
	},
	"route_start_shift": {
		template:  wire.RouteStartShift,
		pathField: "routeId",
		fieldMap: map[string]string{
			"startedAt": "started_at",
		},
	},
	"route_end_shift": {
		template:  wire.RouteEndShift,
		pathField: "routeId",
		fieldMap: map[string]string{
			"endedAt": "ended_at",
			"note":    "note",
		},
	},
	"supply_request_create": {
		template: wire.RouteSupplyRequests,
		fieldMap: map[string]string{
			"siteId":   "site_id",
			"itemName": "item_name",
			"quantity": "quantity",
		},
	},
}

// localOnlyTypes are applied directly against the local-first store and are
// never flushed over this path.
var localOnlyTypes = map[string]struct{}{
	"checklist_toggle": {},
	"note_edit":        {},
	"photo_annotate":   {},
}

// IsLocalOnly reports whether a mutation type is applied locally instead of
// being flushed.
func IsLocalOnly(mutationType string) bool {
	_, ok := localOnlyTypes[mutationType]
	return ok
}

// ResolveRoute maps a mutation onto its wire route and body. It is a pure
// function: no storage, no network, deterministic for the same input.
//
// Nil means "not flushable over this path", which callers must treat as a
// normal answer: local-only types resolve to nil, and so do unknown types so
// that a client running ahead of this routing table does not crash on new
// local-only mutation kinds.
func ResolveRoute(m Mutation) *Route {
	spec, ok := flushRoutes[m.Type]
	if !ok {
		return nil
	}

	path := spec.template
	if spec.pathField != "" {
		id, ok := m.Fields[spec.pathField].(string)
		if !ok || id == "" {
			return nil
		}
		path = strings.Replace(path, "{id}", id, 1)
	}

	body := make(map[string]any, len(spec.fieldMap))
	for camel, snake := range spec.fieldMap {
		if v, present := m.Fields[camel]; present {
			body[snake] = v
		}
	}

	return &Route{
		APIPath:  path,
		Template: spec.template,
		Body:     body,
	}
}
