package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ride-engagement/internal/engagement/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAttestor struct {
	mu    sync.Mutex
	calls []model.AttestationInput
	err   error
}

func (a *stubAttestor) CreateAttestation(_ context.Context, in model.AttestationInput) (*model.Attestation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, in)
	if a.err != nil {
		return nil, a.err
	}
	return &model.Attestation{
		UID:       "att-" + string(in.Kind),
		TxHash:    "0xdeadbeef",
		Memo:      in.Memo,
		CreatedAt: time.Now(),
	}, nil
}

func (a *stubAttestor) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type stubIdentity struct{ connected bool }

func (i *stubIdentity) IsConnected() bool { return i.connected }
func (i *stubIdentity) Account() string   { return "0xabc" }

// stubPrompter blocks until an answer is pushed or the prompt context is
// cancelled, like a real dialog would.
type stubPrompter struct {
	answers chan bool
}

func newStubPrompter() *stubPrompter {
	return &stubPrompter{answers: make(chan bool, 1)}
}

func (p *stubPrompter) Prompt(ctx context.Context, _ model.Zone) (bool, error) {
	select {
	case v := <-p.answers:
		return v, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type sessionFixture struct {
	session  *ConfirmationSession
	attestor *stubAttestor
	identity *stubIdentity
	prompter *stubPrompter
	outcomes chan ConfirmationOutcome
	position *model.Position
}

func newSessionFixture(t *testing.T, mutate func(*SessionConfig)) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		attestor: &stubAttestor{},
		identity: &stubIdentity{connected: true},
		prompter: newStubPrompter(),
		outcomes: make(chan ConfirmationOutcome, 4),
		position: &model.Position{Latitude: centerLat, Longitude: centerLng, Timestamp: time.Now()},
	}

	cfg := SessionConfig{
		Zone:               model.NewZone(model.ZonePickup, model.Coordinate{Latitude: centerLat, Longitude: centerLng}, 50),
		Timeout:            time.Hour,
		RideID:             "ride-1",
		DriverID:           "driver-1",
		PassengerID:        "passenger-1",
		EnableAttestations: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	f.session = NewConfirmationSession(cfg, SessionDeps{
		Attestor:  f.attestor,
		Identity:  f.identity,
		Prompter:  f.prompter,
		Phase:     func() model.NavigationPhase { return model.PhaseToPickup },
		Position:  func() *model.Position { return f.position },
		OnOutcome: func(o ConfirmationOutcome) { f.outcomes <- o },
	}, zap.NewNop())

	return f
}

func waitOutcome(t *testing.T, ch chan ConfirmationOutcome) ConfirmationOutcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no confirmation outcome arrived")
		return ConfirmationOutcome{}
	}
}

func TestSessionResolveConfirmed(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	require.True(t, f.session.State().IsWaitingForConfirmation)

	f.prompter.answers <- true
	outcome := waitOutcome(t, f.outcomes)

	assert.True(t, outcome.Confirmed)
	assert.False(t, outcome.TimedOut)
	require.NotNil(t, outcome.Entry, "entry attestation recorded before the prompt")
	require.NotNil(t, outcome.Confirmation)

	state := f.session.State()
	assert.False(t, state.IsWaitingForConfirmation)
	assert.True(t, state.HasConfirmed)
	assert.False(t, state.HasTimedOut)
}

func TestSessionResolveDeclined(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	f.prompter.answers <- false
	outcome := waitOutcome(t, f.outcomes)

	assert.False(t, outcome.Confirmed)
	assert.Nil(t, outcome.Confirmation, "declined answers are not attested")

	state := f.session.State()
	assert.False(t, state.IsWaitingForConfirmation)
	assert.False(t, state.HasConfirmed)
	assert.False(t, state.HasTimedOut)
}

func TestSessionTimeoutAutoConfirms(t *testing.T) {
	f := newSessionFixture(t, func(cfg *SessionConfig) {
		cfg.Timeout = 50 * time.Millisecond
	})
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	outcome := waitOutcome(t, f.outcomes)

	assert.True(t, outcome.TimedOut)
	assert.False(t, outcome.Confirmed)
	require.NotNil(t, outcome.Confirmation, "timeout writes an auto-confirmation attestation")

	state := f.session.State()
	assert.True(t, state.HasTimedOut)
	assert.Zero(t, state.TimeRemainingSeconds)
}

func TestSessionTerminalStatesAreSticky(t *testing.T) {
	f := newSessionFixture(t, func(cfg *SessionConfig) {
		cfg.Timeout = 50 * time.Millisecond
	})
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	waitOutcome(t, f.outcomes)

	// Neither a late answer nor a second start produces a second outcome.
	f.session.Resolve(true)
	f.session.Start(ctx)
	f.session.Timeout()

	select {
	case <-f.outcomes:
		t.Fatal("terminal session emitted a second outcome")
	case <-time.After(150 * time.Millisecond):
	}
	assert.True(t, f.session.State().HasTimedOut)
}

func TestSessionStartIsNoOpWhileWaiting(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	entryCalls := f.attestor.callCount()
	f.session.Start(ctx)
	assert.Equal(t, entryCalls, f.attestor.callCount(), "duplicate start must not re-attest")

	f.prompter.answers <- true
	outcome := waitOutcome(t, f.outcomes)
	assert.True(t, outcome.Confirmed)
}

func TestSessionContinuesWhenAttestationFails(t *testing.T) {
	f := newSessionFixture(t, nil)
	f.attestor.err = errors.New("ledger unreachable")
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	require.True(t, f.session.State().IsWaitingForConfirmation, "failed entry attestation must not block the prompt")

	f.prompter.answers <- true
	outcome := waitOutcome(t, f.outcomes)

	assert.True(t, outcome.Confirmed)
	assert.Nil(t, outcome.Entry)
	assert.Nil(t, outcome.Confirmation)
}

func TestSessionSkipsAttestationsWhenDisabled(t *testing.T) {
	f := newSessionFixture(t, func(cfg *SessionConfig) {
		cfg.EnableAttestations = false
	})
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	f.prompter.answers <- true
	outcome := waitOutcome(t, f.outcomes)

	assert.True(t, outcome.Confirmed)
	assert.Nil(t, outcome.Entry)
	assert.Nil(t, outcome.Confirmation)
	assert.Zero(t, f.attestor.callCount())
}

func TestSessionSkipsAttestationsWithoutIdentity(t *testing.T) {
	f := newSessionFixture(t, nil)
	f.identity.connected = false
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	f.prompter.answers <- true
	outcome := waitOutcome(t, f.outcomes)

	assert.True(t, outcome.Confirmed)
	assert.Zero(t, f.attestor.callCount())
}

func TestSessionCancelAllowsRestart(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	f.session.Cancel()

	state := f.session.State()
	assert.False(t, state.IsWaitingForConfirmation)
	assert.False(t, state.HasConfirmed)
	assert.False(t, state.HasTimedOut)

	f.session.Start(ctx)
	require.True(t, f.session.State().IsWaitingForConfirmation)

	f.prompter.answers <- true
	outcome := waitOutcome(t, f.outcomes)
	assert.True(t, outcome.Confirmed)
}

func TestSessionResetClearsTerminalState(t *testing.T) {
	f := newSessionFixture(t, nil)
	ctx, cancel := testContext(t)
	defer cancel()

	f.session.Start(ctx)
	f.prompter.answers <- true
	waitOutcome(t, f.outcomes)

	f.session.Reset()
	state := f.session.State()
	assert.False(t, state.HasConfirmed)
	assert.Nil(t, state.EntryAttestation)
	assert.Nil(t, state.ConfirmationAttestation)

	// A fresh exchange runs after the reset.
	f.session.Start(ctx)
	f.prompter.answers <- false
	outcome := waitOutcome(t, f.outcomes)
	assert.False(t, outcome.Confirmed)
}
