package service

import (
	"context"
	"time"

	"ride-engagement/internal/common/rmq"
	"ride-engagement/internal/engagement/model"
	"ride-engagement/internal/routing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher pushes milestone events onto the message bus. Optional; a
// nil publisher silently drops events.
type EventPublisher interface {
	PublishPhaseChanged(ctx context.Context, msg rmq.PhaseChangedMessage) error
	PublishZoneEntered(ctx context.Context, msg rmq.ZoneEnteredMessage) error
	PublishConfirmationResolved(ctx context.Context, msg rmq.ConfirmationResolvedMessage) error
	PublishAttestationCreated(ctx context.Context, msg rmq.AttestationCreatedMessage) error
}

type EngagementConfig struct {
	RideID              string
	DriverID            string
	PassengerID         string
	Pickup              model.Coordinate
	Dropoff             model.Coordinate
	PickupRadiusMeters  float64
	DropoffRadiusMeters float64
	ConfirmationTimeout time.Duration
	GeofenceInterval    time.Duration
	EnableAttestations  bool
	// WithPickupStage selects the transition topology that routes through
	// the intermediate PICKING_UP phase.
	WithPickupStage bool
}

type Deps struct {
	Source    PositionSource
	Attestor  Attestor
	Identity  SigningIdentity
	Prompter  PromptPresenter
	Engine    routing.Engine
	Publisher EventPublisher
	Watchdog  WatchdogConfig
	Log       *zap.Logger
}

// EngagementService coordinates one transport assignment: the phase machine,
// the geofence monitor, one confirmation session per zone kind, and the route
// transition watchdog.
type EngagementService struct {
	engagement model.Engagement
	cfg        EngagementConfig

	machine        *PhaseMachine
	monitor        *GeofenceMonitor
	pickupSession  *ConfirmationSession
	dropoffSession *ConfirmationSession
	watchdog       *RouteWatchdog

	source    PositionSource
	publisher EventPublisher
	runCtx    context.Context
	cancel    context.CancelFunc
	log       *zap.Logger
}

func NewEngagementService(cfg EngagementConfig, deps Deps) *EngagementService {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("ride_id", cfg.RideID))

	pickupZone := model.NewZone(model.ZonePickup, cfg.Pickup, cfg.PickupRadiusMeters)
	dropoffZone := model.NewZone(model.ZoneDestination, cfg.Dropoff, cfg.DropoffRadiusMeters)

	table := model.DirectPickupTable()
	if cfg.WithPickupStage {
		table = model.StagedPickupTable()
	}

	s := &EngagementService{
		engagement: model.Engagement{
			ID:                 uuid.NewString(),
			RideID:             cfg.RideID,
			DriverID:           cfg.DriverID,
			PassengerID:        cfg.PassengerID,
			Phase:              model.PhaseToPickup,
			PickupZone:         pickupZone,
			DropoffZone:        dropoffZone,
			EnableAttestations: cfg.EnableAttestations,
			CreatedAt:          time.Now().UTC(),
		},
		cfg:       cfg,
		source:    deps.Source,
		publisher: deps.Publisher,
		runCtx:    context.Background(),
		log:       log,
	}

	s.machine = NewPhaseMachine(model.PhaseToPickup, table, log)
	s.watchdog = NewRouteWatchdog(deps.Watchdog, deps.Engine, s.onRoutingStuck, log)

	sessionDeps := SessionDeps{
		Attestor: deps.Attestor,
		Identity: deps.Identity,
		Prompter: deps.Prompter,
		Phase:    s.machine.Phase,
		Position: s.currentPosition,
	}

	pickupCfg := SessionConfig{
		Zone:               pickupZone,
		Timeout:            cfg.ConfirmationTimeout,
		RideID:             cfg.RideID,
		DriverID:           cfg.DriverID,
		PassengerID:        cfg.PassengerID,
		EnableAttestations: cfg.EnableAttestations,
	}
	dropoffCfg := pickupCfg
	dropoffCfg.Zone = dropoffZone

	pickupDeps := sessionDeps
	pickupDeps.OnOutcome = s.onPickupOutcome
	dropoffDeps := sessionDeps
	dropoffDeps.OnOutcome = s.onDropoffOutcome

	s.pickupSession = NewConfirmationSession(pickupCfg, pickupDeps, log)
	s.dropoffSession = NewConfirmationSession(dropoffCfg, dropoffDeps, log)

	s.monitor = NewGeofenceMonitor(GeofenceConfig{
		Interval:    cfg.GeofenceInterval,
		PickupZone:  pickupZone,
		DropoffZone: dropoffZone,
		Phase:       s.machine.Phase,
		Source:      deps.Source,
		OnEntry:     s.onZoneEntry,
	}, log)

	// Entering TO_DESTINATION means the route to the new target must be
	// recalculated; the watchdog supervises that call.
	s.machine.OnTransition(func(from, to model.NavigationPhase) {
		if to == model.PhaseToDestination {
			origin := cfg.Pickup
			if pos := s.currentPosition(); pos != nil {
				origin = pos.Coordinate()
			}
			s.watchdog.Begin(s.runCtx, origin, cfg.Dropoff)
		}
	})

	return s
}

// Run starts the geofence loop and keeps it alive until ctx is cancelled or
// Stop is called.
func (s *EngagementService) Run(ctx context.Context) {
	s.runCtx, s.cancel = context.WithCancel(ctx)
	go s.monitor.Run(s.runCtx)
}

// Stop cancels the background loops and any in-flight confirmation wait.
func (s *EngagementService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.pickupSession.Cancel()
	s.dropoffSession.Cancel()
}

func (s *EngagementService) currentPosition() *model.Position {
	if s.source == nil {
		return nil
	}
	return s.source.Current()
}

func (s *EngagementService) onZoneEntry(zone model.Zone, pos model.Position, distanceMeters float64) {
	if s.publisher != nil {
		_ = s.publisher.PublishZoneEntered(s.runCtx, rmq.ZoneEnteredMessage{
			RideID:         s.engagement.RideID,
			ZoneID:         zone.ID,
			ZoneKind:       string(zone.Kind),
			Location:       rmq.LatLng{Lat: pos.Latitude, Lng: pos.Longitude},
			DistanceMeters: distanceMeters,
			Timestamp:      time.Now().UTC(),
		})
	}

	switch zone.Kind {
	case model.ZonePickup:
		if err := s.RequestTransition(model.PhaseAtPickup); err != nil {
			s.log.Warn("zone entry transition rejected", zap.Error(err))
		}
		s.pickupSession.Start(s.runCtx)
	case model.ZoneDestination:
		if err := s.RequestTransition(model.PhaseAtDestination); err != nil {
			s.log.Warn("zone entry transition rejected", zap.Error(err))
		}
		s.dropoffSession.Start(s.runCtx)
	}
}

func (s *EngagementService) onPickupOutcome(out ConfirmationOutcome) {
	s.publishOutcome(out)

	// Pickup settled; advance towards the destination. In the staged
	// topology the operator confirms loading via a PICKING_UP transition
	// before heading out.
	next := model.PhaseToDestination
	if s.cfg.WithPickupStage {
		next = model.PhasePickingUp
	}
	if err := s.RequestTransition(next); err != nil {
		s.log.Warn("post-pickup transition rejected", zap.Error(err))
	}
}

func (s *EngagementService) onDropoffOutcome(out ConfirmationOutcome) {
	s.publishOutcome(out)

	if err := s.RequestTransition(model.PhaseCompleted); err != nil {
		s.log.Warn("completion transition rejected", zap.Error(err))
	}
}

func (s *EngagementService) publishOutcome(out ConfirmationOutcome) {
	if s.publisher == nil {
		return
	}
	msg := rmq.ConfirmationResolvedMessage{
		RideID:        s.engagement.RideID,
		ZoneKind:      string(out.Zone.Kind),
		Confirmed:     out.Confirmed,
		AutoConfirmed: out.TimedOut,
		Timestamp:     time.Now().UTC(),
	}
	if out.Confirmation != nil {
		msg.AttestationUID = out.Confirmation.UID
		msg.TxHash = out.Confirmation.TxHash
	}
	_ = s.publisher.PublishConfirmationResolved(s.runCtx, msg)

	for _, att := range []*model.Attestation{out.Entry, out.Confirmation} {
		if att == nil {
			continue
		}
		_ = s.publisher.PublishAttestationCreated(s.runCtx, rmq.AttestationCreatedMessage{
			RideID:      s.engagement.RideID,
			UID:         att.UID,
			TxHash:      att.TxHash,
			BlockNumber: att.BlockNumber,
			GasUsed:     att.GasUsed,
			Memo:        att.Memo,
			Timestamp:   time.Now().UTC(),
		})
	}
}

func (s *EngagementService) onRoutingStuck(choices []RecoveryChoice) {
	// Recovery is surfaced to the operator through the snapshot; nothing
	// here may block or fail the engagement.
	s.log.Warn("route recalculation needs operator recovery",
		zap.Int("choices", len(choices)))
}

// RequestTransition validates and commits a phase change, publishing the
// milestone on success.
func (s *EngagementService) RequestTransition(target model.NavigationPhase) error {
	from := s.machine.Phase()
	if err := s.machine.RequestTransition(target); err != nil {
		return err
	}
	if s.publisher != nil {
		_ = s.publisher.PublishPhaseChanged(s.runCtx, rmq.PhaseChangedMessage{
			RideID:    s.engagement.RideID,
			From:      string(from),
			To:        string(target),
			Timestamp: time.Now().UTC(),
		})
	}
	return nil
}

// ForcePhaseChange bypasses the transition table. Emergency use only.
func (s *EngagementService) ForcePhaseChange(target model.NavigationPhase) {
	from := s.machine.Phase()
	s.machine.ForcePhaseChange(target)
	if s.publisher != nil {
		_ = s.publisher.PublishPhaseChanged(s.runCtx, rmq.PhaseChangedMessage{
			RideID:    s.engagement.RideID,
			From:      string(from),
			To:        string(target),
			Forced:    true,
			Timestamp: time.Now().UTC(),
		})
	}
}

// TriggerManualConfirmation re-enters the start path for the phase's zone,
// for when automatic zone-entry detection fails.
func (s *EngagementService) TriggerManualConfirmation() error {
	session, ok := s.sessionForPhase()
	if !ok {
		return &model.MissingPreconditionError{What: "no confirmable zone for current phase"}
	}
	session.Start(s.runCtx)
	return nil
}

func (s *EngagementService) sessionForPhase() (*ConfirmationSession, bool) {
	switch s.machine.Phase() {
	case model.PhaseToPickup, model.PhaseAtPickup, model.PhasePickingUp:
		return s.pickupSession, true
	case model.PhaseToDestination, model.PhaseAtDestination:
		return s.dropoffSession, true
	default:
		return nil, false
	}
}

func (s *EngagementService) session(kind model.ZoneKind) *ConfirmationSession {
	if kind == model.ZoneDestination {
		return s.dropoffSession
	}
	return s.pickupSession
}

func (s *EngagementService) CancelConfirmation(kind model.ZoneKind) {
	s.session(kind).Cancel()
}

func (s *EngagementService) ResetConfirmation(kind model.ZoneKind) {
	s.session(kind).Reset()
}

func (s *EngagementService) ClearError() {
	s.machine.ClearError()
}

func (s *EngagementService) RetryRoute() {
	s.watchdog.Retry(s.runCtx)
}

func (s *EngagementService) ResolveRoute(choice RecoveryChoice) {
	s.watchdog.Resolve(s.runCtx, choice)
}

func (s *EngagementService) Phase() model.NavigationPhase {
	return s.machine.Phase()
}

// Attestations recomputes the aggregate from the two confirmation states.
func (s *EngagementService) Attestations() model.RideAttestations {
	pickup := s.pickupSession.State()
	dropoff := s.dropoffSession.State()
	return model.RideAttestations{
		PickupEntry:      pickup.EntryAttestation,
		PickupConfirmed:  pickup.ConfirmationAttestation,
		DropoffEntry:     dropoff.EntryAttestation,
		DropoffConfirmed: dropoff.ConfirmationAttestation,
	}
}

// View is the full caller-facing snapshot of one engagement.
type View struct {
	Engagement    model.Engagement        `json:"engagement"`
	Phase         model.NavigationPhase   `json:"phase"`
	Transitioning bool                    `json:"transitioning"`
	Pickup        model.ConfirmationState `json:"pickup_confirmation"`
	Dropoff       model.ConfirmationState `json:"dropoff_confirmation"`
	Attestations  model.RideAttestations  `json:"attestations"`
	Routing       WatchdogState           `json:"routing"`
	LastError     string                  `json:"last_error,omitempty"`
}

func (s *EngagementService) Snapshot() View {
	v := View{
		Engagement:    s.engagement,
		Phase:         s.machine.Phase(),
		Transitioning: s.machine.Transitioning(),
		Pickup:        s.pickupSession.State(),
		Dropoff:       s.dropoffSession.State(),
		Attestations:  s.Attestations(),
		Routing:       s.watchdog.State(),
	}
	v.Engagement.Phase = v.Phase
	if err := s.machine.LastError(); err != nil {
		v.LastError = err.Error()
	}
	return v
}
