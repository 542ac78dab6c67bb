package service

import (
	"context"
	"math"
	"sync"
	"time"

	"ride-engagement/internal/engagement/model"

	"go.uber.org/zap"
)

// PositionSource yields the agent's latest GPS fix, or nil when no usable fix
// is available this tick.
type PositionSource interface {
	Current() *model.Position
}

// ZoneEntryFunc is fired once per approach when the agent's position crosses
// into a zone.
type ZoneEntryFunc func(zone model.Zone, pos model.Position, distanceMeters float64)

type GeofenceConfig struct {
	Interval    time.Duration
	PickupZone  model.Zone
	DropoffZone model.Zone
	Phase       func() model.NavigationPhase
	Source      PositionSource
	OnEntry     ZoneEntryFunc
}

// GeofenceMonitor periodically compares the live position to the zone implied
// by the current phase: the pickup zone is checked only during TO_PICKUP, the
// destination zone only during TO_DESTINATION. Entry is edge-triggered on the
// outside→inside transition, never on repeated ticks while inside.
type GeofenceMonitor struct {
	mu        sync.Mutex
	interval  time.Duration
	zones     map[model.ZoneKind]model.Zone
	phase     func() model.NavigationPhase
	source    PositionSource
	onEntry   ZoneEntryFunc
	inside    map[model.ZoneKind]bool
	lastPhase model.NavigationPhase
	log       *zap.Logger
}

func NewGeofenceMonitor(cfg GeofenceConfig, log *zap.Logger) *GeofenceMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	return &GeofenceMonitor{
		interval: cfg.Interval,
		zones: map[model.ZoneKind]model.Zone{
			model.ZonePickup:      cfg.PickupZone,
			model.ZoneDestination: cfg.DropoffZone,
		},
		phase:   cfg.Phase,
		source:  cfg.Source,
		onEntry: cfg.OnEntry,
		inside:  make(map[model.ZoneKind]bool),
		log:     log,
	}
}

// Run checks on a fixed interval until ctx is cancelled.
func (g *GeofenceMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Check()
		}
	}
}

// Check evaluates one tick. Exported so callers with their own scheduling
// (and tests) can drive the monitor directly.
func (g *GeofenceMonitor) Check() {
	g.mu.Lock()

	phase := g.phase()
	if phase != g.lastPhase {
		// Phase change re-arms the zone that just became checkable, so a new
		// approach can trigger again after a phase rewind.
		if kind, ok := checkableZoneKind(phase); ok {
			g.inside[kind] = false
		}
		g.lastPhase = phase
	}

	kind, ok := checkableZoneKind(phase)
	if !ok {
		g.mu.Unlock()
		return
	}
	zone := g.zones[kind]

	pos := g.source.Current()
	if pos == nil {
		// Position source temporarily unavailable: skip the check, do not
		// treat it as "outside".
		g.mu.Unlock()
		return
	}

	dist := HaversineMeters(pos.Coordinate(), zone.Center)
	in := dist <= zone.RadiusMeters

	fire := in && !g.inside[kind]
	g.inside[kind] = in
	onEntry := g.onEntry
	g.mu.Unlock()

	if fire {
		g.log.Info("zone entered",
			zap.String("zone_id", zone.ID),
			zap.String("zone_kind", string(kind)),
			zap.Float64("distance_meters", dist))
		if onEntry != nil {
			onEntry(zone, *pos, dist)
		}
	}
}

// Reset clears all inside state, used on full engagement reset.
func (g *GeofenceMonitor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inside = make(map[model.ZoneKind]bool)
	g.lastPhase = ""
}

func checkableZoneKind(phase model.NavigationPhase) (model.ZoneKind, bool) {
	switch phase {
	case model.PhaseToPickup:
		return model.ZonePickup, true
	case model.PhaseToDestination:
		return model.ZoneDestination, true
	default:
		return "", false
	}
}

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(a, b model.Coordinate) float64 {
	const earthRadiusM = 6371000.0

	lat1 := degreesToRadians(a.Latitude)
	lng1 := degreesToRadians(a.Longitude)
	lat2 := degreesToRadians(b.Latitude)
	lng2 := degreesToRadians(b.Longitude)

	dlat := lat2 - lat1
	dlng := lng2 - lng1
	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
