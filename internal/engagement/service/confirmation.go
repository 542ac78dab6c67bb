package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ride-engagement/internal/engagement/model"

	"go.uber.org/zap"
)

// Attestor writes one signed location statement to the ledger. No internal
// retries; any failure means "no attestation this time".
type Attestor interface {
	CreateAttestation(ctx context.Context, in model.AttestationInput) (*model.Attestation, error)
}

// SigningIdentity is owned by an external authentication collaborator; the
// core only checks its presence before attempting an attestation.
type SigningIdentity interface {
	IsConnected() bool
	Account() string
}

// PromptPresenter shows a two-option confirmation dialog and returns the
// selection. A dismissed prompt that never returns is handled by the
// session's own timeout, not by the presenter.
type PromptPresenter interface {
	Prompt(ctx context.Context, zone model.Zone) (confirmed bool, err error)
}

// ConfirmationOutcome is reported exactly once per session lifetime.
type ConfirmationOutcome struct {
	Zone         model.Zone
	Confirmed    bool
	TimedOut     bool
	Entry        *model.Attestation
	Confirmation *model.Attestation
}

type sessionStatus int

const (
	sessionIdle sessionStatus = iota
	sessionWaiting
	sessionResolved
	sessionTimedOut
)

type SessionConfig struct {
	Zone        model.Zone
	Timeout     time.Duration
	RideID      string
	DriverID    string
	PassengerID string
	// EnableAttestations gates every ledger write; the confirmation protocol
	// itself runs regardless.
	EnableAttestations bool
}

// ConfirmationSession runs one bounded-time confirmation exchange for one
// zone. idle → waiting → {confirmed | timedOut}; terminal states are sticky
// until Reset.
type ConfirmationSession struct {
	mu  sync.Mutex
	cfg SessionConfig

	attestor  Attestor
	identity  SigningIdentity
	prompter  PromptPresenter
	phase     func() model.NavigationPhase
	position  func() *model.Position
	onOutcome func(ConfirmationOutcome)

	status        sessionStatus
	hasConfirmed  bool
	timeRemaining int
	entryAtt      *model.Attestation
	confirmAtt    *model.Attestation

	hardTimer    *time.Timer
	tickStop     chan struct{}
	promptCancel context.CancelFunc

	log *zap.Logger
}

type SessionDeps struct {
	Attestor  Attestor
	Identity  SigningIdentity
	Prompter  PromptPresenter
	Phase     func() model.NavigationPhase
	Position  func() *model.Position
	OnOutcome func(ConfirmationOutcome)
}

func NewConfirmationSession(cfg SessionConfig, deps SessionDeps, log *zap.Logger) *ConfirmationSession {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ConfirmationSession{
		cfg:       cfg,
		attestor:  deps.Attestor,
		identity:  deps.Identity,
		prompter:  deps.Prompter,
		phase:     deps.Phase,
		position:  deps.Position,
		onOutcome: deps.OnOutcome,
		log:       log,
	}
}

// Start begins the exchange: entry attestation (best effort), confirmation
// prompt, 1-second countdown and hard timeout. No-op while already waiting
// (duplicate zone-entry callbacks) and while a terminal state is sticky.
func (s *ConfirmationSession) Start(ctx context.Context) {
	s.mu.Lock()
	if s.status != sessionIdle {
		s.mu.Unlock()
		s.log.Debug("confirmation start ignored, session not idle",
			zap.String("zone_kind", string(s.cfg.Zone.Kind)))
		return
	}
	s.status = sessionWaiting
	s.timeRemaining = int(s.cfg.Timeout / time.Second)
	s.mu.Unlock()

	s.log.Info("confirmation session started",
		zap.String("zone_id", s.cfg.Zone.ID),
		zap.String("zone_kind", string(s.cfg.Zone.Kind)),
		zap.String("ride_id", s.cfg.RideID))

	// Entry attestation is attempted before the prompt is shown, but a
	// failure never blocks the confirmation flow.
	if att := s.tryAttest(ctx, model.AttestationEntry, false); att != nil {
		s.mu.Lock()
		if s.entryAtt == nil {
			s.entryAtt = att
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	if s.status != sessionWaiting {
		// Cancelled while the entry attestation was in flight.
		s.mu.Unlock()
		return
	}

	promptCtx, cancel := context.WithCancel(ctx)
	s.promptCancel = cancel
	s.tickStop = make(chan struct{})
	tickStop := s.tickStop
	s.hardTimer = time.AfterFunc(s.cfg.Timeout, s.Timeout)
	s.mu.Unlock()

	go s.runPrompt(promptCtx)
	go s.runCountdown(tickStop)
}

func (s *ConfirmationSession) runPrompt(ctx context.Context) {
	confirmed, err := s.prompter.Prompt(ctx, s.cfg.Zone)
	if err != nil {
		// Dismissed or cancelled; the timeout owns this case.
		return
	}
	s.Resolve(confirmed)
}

func (s *ConfirmationSession) runCountdown(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.status != sessionWaiting {
				s.mu.Unlock()
				return
			}
			s.timeRemaining--
			expired := s.timeRemaining <= 0
			s.mu.Unlock()
			if expired {
				// Races the hard timer; whichever fires first wins, the
				// other becomes a no-op behind the terminal guard.
				s.Timeout()
				return
			}
		}
	}
}

// Resolve records the counterparty's answer. No-op once the session is
// terminal, which guards against a stale prompt callback firing after a
// timeout already occurred.
func (s *ConfirmationSession) Resolve(confirmed bool) {
	s.mu.Lock()
	if s.status != sessionWaiting {
		s.mu.Unlock()
		return
	}
	s.status = sessionResolved
	s.hasConfirmed = confirmed
	s.clearTimersLocked()
	s.mu.Unlock()

	var confirmAtt *model.Attestation
	if confirmed {
		confirmAtt = s.tryAttest(context.Background(), model.AttestationConfirmation, false)
	}

	s.mu.Lock()
	s.confirmAtt = confirmAtt
	outcome := ConfirmationOutcome{
		Zone:         s.cfg.Zone,
		Confirmed:    confirmed,
		Entry:        s.entryAtt,
		Confirmation: confirmAtt,
	}
	handler := s.onOutcome
	s.mu.Unlock()

	s.log.Info("confirmation resolved",
		zap.String("zone_kind", string(s.cfg.Zone.Kind)),
		zap.Bool("confirmed", confirmed),
		zap.String("ride_id", s.cfg.RideID))

	if handler != nil {
		handler(outcome)
	}
}

// Timeout auto-confirms after the bounded wait elapses. Same terminal guard
// as Resolve; invoked by both the countdown and the hard timer.
func (s *ConfirmationSession) Timeout() {
	s.mu.Lock()
	if s.status != sessionWaiting {
		s.mu.Unlock()
		return
	}
	s.status = sessionTimedOut
	s.timeRemaining = 0
	s.clearTimersLocked()
	s.mu.Unlock()

	confirmAtt := s.tryAttest(context.Background(), model.AttestationConfirmation, true)

	s.mu.Lock()
	s.confirmAtt = confirmAtt
	outcome := ConfirmationOutcome{
		Zone:         s.cfg.Zone,
		TimedOut:     true,
		Entry:        s.entryAtt,
		Confirmation: confirmAtt,
	}
	handler := s.onOutcome
	s.mu.Unlock()

	s.log.Warn("confirmation timed out, auto-confirming",
		zap.String("zone_kind", string(s.cfg.Zone.Kind)),
		zap.String("ride_id", s.cfg.RideID))

	if handler != nil {
		handler(outcome)
	}
}

// Cancel clears timers and the waiting flag without marking either terminal
// state. Used when an operator aborts mid-wait; the session can be restarted.
func (s *ConfirmationSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != sessionWaiting {
		return
	}
	s.status = sessionIdle
	s.timeRemaining = 0
	s.clearTimersLocked()
}

// Reset returns the session to idle, clearing attestations and terminal
// flags. Used on phase rewind or engagement restart.
func (s *ConfirmationSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearTimersLocked()
	s.status = sessionIdle
	s.hasConfirmed = false
	s.timeRemaining = 0
	s.entryAtt = nil
	s.confirmAtt = nil
}

func (s *ConfirmationSession) State() model.ConfirmationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.ConfirmationState{
		EntryAttestation:         s.entryAtt,
		ConfirmationAttestation:  s.confirmAtt,
		IsWaitingForConfirmation: s.status == sessionWaiting,
		HasConfirmed:             s.status == sessionResolved && s.hasConfirmed,
		HasTimedOut:              s.status == sessionTimedOut,
		TimeRemainingSeconds:     s.timeRemaining,
	}
}

// clearTimersLocked stops both timers and nils the handles so a double clear
// is safe and no late callback can fire after the caller gave up.
func (s *ConfirmationSession) clearTimersLocked() {
	if s.hardTimer != nil {
		s.hardTimer.Stop()
		s.hardTimer = nil
	}
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
	if s.promptCancel != nil {
		s.promptCancel()
		s.promptCancel = nil
	}
}

// tryAttest wraps every ledger write so a failure degrades to "attestation
// absent" rather than blocking or erroring the confirmation outcome.
func (s *ConfirmationSession) tryAttest(ctx context.Context, kind model.AttestationKind, auto bool) *model.Attestation {
	if !s.cfg.EnableAttestations || s.attestor == nil {
		return nil
	}
	if s.identity == nil || !s.identity.IsConnected() {
		s.log.Debug("skipping attestation, no signing identity",
			zap.String("zone_kind", string(s.cfg.Zone.Kind)))
		return nil
	}

	memo := fmt.Sprintf("%s %s at %s zone", s.cfg.RideID, kind, s.cfg.Zone.Kind)
	if auto {
		memo = fmt.Sprintf("%s auto-confirmation at %s zone (timeout)", s.cfg.RideID, s.cfg.Zone.Kind)
	}

	var pos *model.Position
	if s.position != nil {
		pos = s.position()
	}
	var phase model.NavigationPhase
	if s.phase != nil {
		phase = s.phase()
	}

	att, err := s.attestor.CreateAttestation(ctx, model.AttestationInput{
		Kind:          kind,
		ZoneID:        s.cfg.Zone.ID,
		ZoneKind:      s.cfg.Zone.Kind,
		Phase:         phase,
		Position:      pos,
		Memo:          memo,
		RideID:        s.cfg.RideID,
		DriverID:      s.cfg.DriverID,
		PassengerID:   s.cfg.PassengerID,
		AutoConfirmed: auto,
	})
	if err != nil {
		s.log.Warn("attestation write failed, continuing without it",
			zap.String("kind", string(kind)),
			zap.String("zone_kind", string(s.cfg.Zone.Kind)),
			zap.String("ride_id", s.cfg.RideID),
			zap.Error(err))
		return nil
	}
	return att
}
