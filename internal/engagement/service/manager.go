package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ride-engagement/internal/engagement/model"
)

var (
	ErrEngagementInFlight = errors.New("an engagement is already in flight")
	ErrNoEngagement       = errors.New("no active engagement")
)

// EngagementDefaults come from service configuration and apply to every
// engagement unless the begin request overrides them.
type EngagementDefaults struct {
	PickupRadiusMeters  float64
	DropoffRadiusMeters float64
	ConfirmationTimeout time.Duration
	GeofenceInterval    time.Duration
	EnableAttestations  bool
	WithPickupStage     bool
}

// Manager enforces the one-engagement-per-agent rule and owns the active
// engagement's lifecycle.
type Manager struct {
	mu       sync.Mutex
	active   *EngagementService
	defaults EngagementDefaults
	deps     Deps
}

func NewManager(defaults EngagementDefaults, deps Deps) *Manager {
	return &Manager{defaults: defaults, deps: deps}
}

type BeginRequest struct {
	RideID      string
	DriverID    string
	PassengerID string
	Pickup      model.Coordinate
	Dropoff     model.Coordinate
}

// Begin starts a new engagement. Rejected while one is still in flight; a
// completed engagement is replaced.
func (m *Manager) Begin(ctx context.Context, req BeginRequest) (*EngagementService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.Phase() != model.PhaseCompleted {
		return nil, ErrEngagementInFlight
	}
	if m.active != nil {
		m.active.Stop()
	}

	cfg := EngagementConfig{
		RideID:              req.RideID,
		DriverID:            req.DriverID,
		PassengerID:         req.PassengerID,
		Pickup:              req.Pickup,
		Dropoff:             req.Dropoff,
		PickupRadiusMeters:  m.defaults.PickupRadiusMeters,
		DropoffRadiusMeters: m.defaults.DropoffRadiusMeters,
		ConfirmationTimeout: m.defaults.ConfirmationTimeout,
		GeofenceInterval:    m.defaults.GeofenceInterval,
		EnableAttestations:  m.defaults.EnableAttestations,
		WithPickupStage:     m.defaults.WithPickupStage,
	}

	svc := NewEngagementService(cfg, m.deps)
	// The engagement outlives the request that began it; only Stop or a
	// replacement ends its loops.
	svc.Run(context.WithoutCancel(ctx))
	m.active = svc
	return svc, nil
}

func (m *Manager) Current() (*EngagementService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoEngagement
	}
	return m.active, nil
}

// Cancel tears down the active engagement without completing it.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNoEngagement
	}
	m.active.Stop()
	m.active = nil
	return nil
}
