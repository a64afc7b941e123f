package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_ExactFields(t *testing.T) {
	body := map[string]any{
		"route_id":     "R",
		"from_stop_id": "A",
		"to_stop_id":   "B",
	}
	require.NoError(t, Validate(RouteTravelCapture, body))
}

func TestValidate_RejectsExtraKey(t *testing.T) {
	body := map[string]any{
		"route_id":     "R",
		"from_stop_id": "A",
		"to_stop_id":   "B",
		"client_ts":    "2025-06-02T08:00:00Z",
	}
	err := Validate(RouteTravelCapture, body)
	require.Error(t, err)
	require.Contains(t, err.Error(), "client_ts")
}

func TestValidate_RejectsMissingRequired(t *testing.T) {
	body := map[string]any{
		"route_id":   "R",
		"to_stop_id": "B",
	}
	err := Validate(RouteTravelCapture, body)
	require.Error(t, err)
	require.Contains(t, err.Error(), "from_stop_id")
}

func TestValidate_OptionalFieldMayBeAbsent(t *testing.T) {
	require.NoError(t, Validate(RouteEndShift, map[string]any{"ended_at": "x"}))
	require.NoError(t, Validate(RouteEndShift, map[string]any{"ended_at": "x", "note": "left early"}))
}

func TestValidate_UnknownRoute(t *testing.T) {
	err := Validate("/api/v1/nope", map[string]any{})
	require.Error(t, err)
}

func TestRoutes_CoverAllTemplates(t *testing.T) {
	routes := Routes()
	require.ElementsMatch(t, []string{
		RouteTravelCapture,
		RouteStartShift,
		RouteEndShift,
		RouteSupplyRequests,
	}, routes)
}
