package routing

import (
	"context"
	"errors"
	"math"
	"sync"

	"ride-engagement/internal/engagement/model"
)

// Route is the result of one (re)calculation.
type Route struct {
	Origin          model.Coordinate
	Destination     model.Coordinate
	DistanceKm      float64
	DurationMinutes int
}

// Engine is the external routing collaborator: it (re)calculates the route
// after certain phase transitions and exposes its loading/navigating state so
// the watchdog can tell a stall from a late success.
type Engine interface {
	CalculateRoute(ctx context.Context, origin, destination model.Coordinate) (*Route, error)
	ClearRoute()
	IsLoading() bool
	IsNavigating() bool
	LastError() error
}

// EstimateEngine is the default collaborator: straight-line haversine
// distance and an average-speed duration. Good enough for the distance-to-
// centroid coordination this service does; turn-by-turn guidance comes from
// a real engine wired in its place.
type EstimateEngine struct {
	mu          sync.Mutex
	avgSpeedKmh float64
	route       *Route
	loading     bool
	lastErr     error
}

func NewEstimateEngine(avgSpeedKmh float64) *EstimateEngine {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = 30
	}
	return &EstimateEngine{avgSpeedKmh: avgSpeedKmh}
}

func (e *EstimateEngine) CalculateRoute(ctx context.Context, origin, destination model.Coordinate) (*Route, error) {
	e.mu.Lock()
	e.loading = true
	e.mu.Unlock()

	route, err := e.estimate(origin, destination)

	e.mu.Lock()
	e.loading = false
	e.route = route
	e.lastErr = err
	e.mu.Unlock()

	return route, err
}

func (e *EstimateEngine) estimate(origin, destination model.Coordinate) (*Route, error) {
	if origin.Latitude < -90 || origin.Latitude > 90 || destination.Latitude < -90 || destination.Latitude > 90 ||
		origin.Longitude < -180 || origin.Longitude > 180 || destination.Longitude < -180 || destination.Longitude > 180 {
		return nil, errors.New("invalid latitude or longitude range")
	}

	distanceKm := haversineKm(origin, destination)
	duration := (distanceKm / e.avgSpeedKmh) * 60.0
	durationMin := int(math.Ceil(duration))
	if durationMin < 1 {
		durationMin = 1
	}

	return &Route{
		Origin:          origin,
		Destination:     destination,
		DistanceKm:      distanceKm,
		DurationMinutes: durationMin,
	}, nil
}

func (e *EstimateEngine) ClearRoute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.route = nil
	e.lastErr = nil
}

func (e *EstimateEngine) IsLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

func (e *EstimateEngine) IsNavigating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.route != nil
}

func (e *EstimateEngine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func haversineKm(a, b model.Coordinate) float64 {
	const earthRadiusKm = 6371.0

	lat1 := a.Latitude * math.Pi / 180
	lng1 := a.Longitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	lng2 := b.Longitude * math.Pi / 180

	dlat := lat2 - lat1
	dlng := lng2 - lng1
	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}
