package service

import (
	"sync"
	"testing"
	"time"

	"ride-engagement/internal/engagement/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSource struct {
	mu  sync.Mutex
	pos *model.Position
}

func (s *stubSource) Current() *model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *stubSource) set(lat, lng float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = &model.Position{Latitude: lat, Longitude: lng, Timestamp: time.Now()}
}

func (s *stubSource) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = nil
}

type phaseHolder struct {
	mu    sync.Mutex
	phase model.NavigationPhase
}

func (p *phaseHolder) get() model.NavigationPhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *phaseHolder) set(phase model.NavigationPhase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = phase
}

const (
	centerLat = 40.712800
	centerLng = -74.006000
	// ~0.00036 degrees latitude is ~40 m; comfortably inside a 50 m radius.
	insideLat = centerLat + 0.00036
	// ~0.00108 degrees latitude is ~120 m; comfortably outside.
	outsideLat = centerLat + 0.00108
)

func newTestMonitor(t *testing.T, src *stubSource, phases *phaseHolder) (*GeofenceMonitor, *[]model.Zone) {
	t.Helper()

	var entries []model.Zone
	var mu sync.Mutex

	monitor := NewGeofenceMonitor(GeofenceConfig{
		Interval:    time.Second,
		PickupZone:  model.NewZone(model.ZonePickup, model.Coordinate{Latitude: centerLat, Longitude: centerLng}, 50),
		DropoffZone: model.NewZone(model.ZoneDestination, model.Coordinate{Latitude: 40.80, Longitude: -73.95}, 50),
		Phase:       phases.get,
		Source:      src,
		OnEntry: func(zone model.Zone, _ model.Position, _ float64) {
			mu.Lock()
			entries = append(entries, zone)
			mu.Unlock()
		},
	}, zap.NewNop())

	return monitor, &entries
}

func TestEntryFiresOncePerApproach(t *testing.T) {
	src := &stubSource{}
	phases := &phaseHolder{phase: model.PhaseToPickup}
	monitor, entries := newTestMonitor(t, src, phases)

	// Approach: 120 m out, then 40 m in.
	src.set(outsideLat, centerLng)
	monitor.Check()
	require.Empty(t, *entries)

	src.set(insideLat, centerLng)
	monitor.Check()
	require.Len(t, *entries, 1)
	assert.Equal(t, model.ZonePickup, (*entries)[0].Kind)

	// Repeated ticks while continuously inside never re-fire.
	monitor.Check()
	monitor.Check()
	require.Len(t, *entries, 1)

	// Leave and approach again: a second genuine approach fires once more.
	src.set(outsideLat, centerLng)
	monitor.Check()
	src.set(insideLat, centerLng)
	monitor.Check()
	require.Len(t, *entries, 2)
}

func TestZoneVisibilityFollowsPhase(t *testing.T) {
	src := &stubSource{}
	phases := &phaseHolder{phase: model.PhaseAtPickup}
	monitor, entries := newTestMonitor(t, src, phases)

	// Inside the pickup zone, but no zone is checkable during AT_PICKUP.
	src.set(insideLat, centerLng)
	monitor.Check()
	require.Empty(t, *entries)

	phases.set(model.PhaseCompleted)
	monitor.Check()
	require.Empty(t, *entries)

	// Destination zone checked only during TO_DESTINATION.
	phases.set(model.PhaseToDestination)
	src.set(40.80, -73.95)
	monitor.Check()
	require.Len(t, *entries, 1)
	assert.Equal(t, model.ZoneDestination, (*entries)[0].Kind)
}

func TestNilPositionSkipsCheck(t *testing.T) {
	src := &stubSource{}
	phases := &phaseHolder{phase: model.PhaseToPickup}
	monitor, entries := newTestMonitor(t, src, phases)

	src.clear()
	monitor.Check()
	require.Empty(t, *entries)

	// A fix arriving later still triggers entry normally.
	src.set(insideLat, centerLng)
	monitor.Check()
	require.Len(t, *entries, 1)
}

func TestPhaseRewindRearmsZone(t *testing.T) {
	src := &stubSource{}
	phases := &phaseHolder{phase: model.PhaseToPickup}
	monitor, entries := newTestMonitor(t, src, phases)

	src.set(insideLat, centerLng)
	monitor.Check()
	require.Len(t, *entries, 1)

	// Phase moves on, then rewinds to TO_PICKUP: the zone is re-armed and a
	// fresh entry fires even though the agent never left.
	phases.set(model.PhaseAtPickup)
	monitor.Check()
	phases.set(model.PhaseToPickup)
	monitor.Check()
	require.Len(t, *entries, 2)
}

func TestResetClearsInsideState(t *testing.T) {
	src := &stubSource{}
	phases := &phaseHolder{phase: model.PhaseToPickup}
	monitor, entries := newTestMonitor(t, src, phases)

	src.set(insideLat, centerLng)
	monitor.Check()
	require.Len(t, *entries, 1)

	monitor.Reset()
	monitor.Check()
	require.Len(t, *entries, 2)
}

func TestRunChecksOnInterval(t *testing.T) {
	src := &stubSource{}
	phases := &phaseHolder{phase: model.PhaseToPickup}

	var mu sync.Mutex
	fired := 0
	monitor := NewGeofenceMonitor(GeofenceConfig{
		Interval:    10 * time.Millisecond,
		PickupZone:  model.NewZone(model.ZonePickup, model.Coordinate{Latitude: centerLat, Longitude: centerLng}, 50),
		DropoffZone: model.NewZone(model.ZoneDestination, model.Coordinate{Latitude: 40.80, Longitude: -73.95}, 50),
		Phase:       phases.get,
		Source:      src,
		OnEntry: func(_ model.Zone, _ model.Position, _ float64) {
			mu.Lock()
			fired++
			mu.Unlock()
		},
	}, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	go monitor.Run(ctx)

	src.set(insideLat, centerLng)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHaversineMeters(t *testing.T) {
	center := model.Coordinate{Latitude: centerLat, Longitude: centerLng}

	near := model.Coordinate{Latitude: insideLat, Longitude: centerLng}
	far := model.Coordinate{Latitude: outsideLat, Longitude: centerLng}

	assert.InDelta(t, 40, HaversineMeters(center, near), 5)
	assert.InDelta(t, 120, HaversineMeters(center, far), 5)
	assert.Zero(t, HaversineMeters(center, center))
}
