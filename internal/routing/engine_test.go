package routing

import (
	"context"
	"testing"

	"ride-engagement/internal/engagement/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateEngineCalculatesRoute(t *testing.T) {
	e := NewEstimateEngine(30)

	origin := model.Coordinate{Latitude: 40.7128, Longitude: -74.0060}
	dest := model.Coordinate{Latitude: 40.80, Longitude: -73.95}

	route, err := e.CalculateRoute(context.Background(), origin, dest)
	require.NoError(t, err)

	// Roughly 10.7 km straight-line between these points.
	assert.InDelta(t, 10.7, route.DistanceKm, 0.5)
	// 10.7 km at 30 km/h is ~21 minutes, rounded up.
	assert.InDelta(t, 22, route.DurationMinutes, 2)

	assert.True(t, e.IsNavigating())
	assert.NoError(t, e.LastError())
}

func TestEstimateEngineRejectsInvalidCoordinates(t *testing.T) {
	e := NewEstimateEngine(30)

	_, err := e.CalculateRoute(context.Background(),
		model.Coordinate{Latitude: 91, Longitude: 0},
		model.Coordinate{Latitude: 40.80, Longitude: -73.95})
	require.Error(t, err)
	assert.False(t, e.IsNavigating())
	assert.Error(t, e.LastError())
}

func TestEstimateEngineClearRoute(t *testing.T) {
	e := NewEstimateEngine(30)

	_, err := e.CalculateRoute(context.Background(),
		model.Coordinate{Latitude: 40.7128, Longitude: -74.0060},
		model.Coordinate{Latitude: 40.80, Longitude: -73.95})
	require.NoError(t, err)
	require.True(t, e.IsNavigating())

	e.ClearRoute()
	assert.False(t, e.IsNavigating())
	assert.NoError(t, e.LastError())
}

func TestEstimateEngineMinimumDuration(t *testing.T) {
	e := NewEstimateEngine(30)

	// Near-zero distance still yields a one-minute estimate.
	same := model.Coordinate{Latitude: 40.7128, Longitude: -74.0060}
	route, err := e.CalculateRoute(context.Background(), same, same)
	require.NoError(t, err)
	assert.Equal(t, 1, route.DurationMinutes)
}
