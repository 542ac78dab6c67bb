package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"ride-engagement/internal/engagement/model"
	"ride-engagement/internal/routing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubEngine is a controllable routing collaborator: it can hang until the
// context dies, fail, or produce a route immediately.
type stubEngine struct {
	mu         sync.Mutex
	hang       bool
	calcErr    error
	navigating bool
	calcCalls  int
	clearCalls int
}

func (e *stubEngine) CalculateRoute(ctx context.Context, origin, destination model.Coordinate) (*routing.Route, error) {
	e.mu.Lock()
	e.calcCalls++
	hang, calcErr := e.hang, e.calcErr
	e.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if calcErr != nil {
		return nil, calcErr
	}

	e.mu.Lock()
	e.navigating = true
	e.mu.Unlock()
	return &routing.Route{Origin: origin, Destination: destination, DistanceKm: 1.2, DurationMinutes: 3}, nil
}

func (e *stubEngine) ClearRoute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearCalls++
	e.navigating = false
}

func (e *stubEngine) IsLoading() bool { return false }

func (e *stubEngine) IsNavigating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.navigating
}

func (e *stubEngine) LastError() error { return nil }

func (e *stubEngine) setNavigating(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.navigating = v
}

func (e *stubEngine) calculateCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calcCalls
}

func fastWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		SettleDelay:  time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		RetryAfter:   40 * time.Millisecond,
		StuckAfter:   120 * time.Millisecond,
	}
}

var (
	testOrigin = model.Coordinate{Latitude: centerLat, Longitude: centerLng}
	testDest   = model.Coordinate{Latitude: 40.80, Longitude: -73.95}
)

func TestWatchdogClearsAfterSuccessfulRecalculation(t *testing.T) {
	engine := &stubEngine{}
	w := NewRouteWatchdog(fastWatchdogConfig(), engine, nil, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	w.Begin(ctx, testOrigin, testDest)

	require.Eventually(t, func() bool {
		return !w.State().Transitioning
	}, 2*time.Second, 5*time.Millisecond)

	state := w.State()
	assert.False(t, state.Stuck)
	assert.False(t, state.GuidanceUnavailable)
	assert.True(t, engine.IsNavigating())
}

func TestWatchdogOffersRetryWhenSlow(t *testing.T) {
	engine := &stubEngine{hang: true}
	w := NewRouteWatchdog(fastWatchdogConfig(), engine, nil, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	w.Begin(ctx, testOrigin, testDest)

	require.Eventually(t, func() bool {
		return w.State().RetryAvailable
	}, 2*time.Second, 5*time.Millisecond)

	state := w.State()
	assert.True(t, state.Transitioning, "still waiting, not yet force-cleared")
	assert.False(t, state.Stuck)
}

func TestWatchdogForceClearsAndSurfacesRecovery(t *testing.T) {
	engine := &stubEngine{hang: true}

	var mu sync.Mutex
	var choices []RecoveryChoice
	w := NewRouteWatchdog(fastWatchdogConfig(), engine, func(c []RecoveryChoice) {
		mu.Lock()
		choices = c
		mu.Unlock()
	}, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	w.Begin(ctx, testOrigin, testDest)

	require.Eventually(t, func() bool {
		return w.State().Stuck
	}, 2*time.Second, 5*time.Millisecond)

	state := w.State()
	assert.False(t, state.Transitioning, "stall force-clears the transitioning flag")
	assert.True(t, state.Handled)
	assert.True(t, state.GuidanceUnavailable)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []RecoveryChoice{RecoveryRetry, RecoverySkipGuidance, RecoveryAbort}, choices)
}

func TestWatchdogLateNavigationCancelsTimeout(t *testing.T) {
	engine := &stubEngine{hang: true}
	w := NewRouteWatchdog(fastWatchdogConfig(), engine, nil, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	w.Begin(ctx, testOrigin, testDest)

	// The route arrives through a side channel before the hard threshold.
	engine.setNavigating(true)

	require.Eventually(t, func() bool {
		return !w.State().Transitioning
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, w.State().Stuck)
	assert.False(t, w.State().GuidanceUnavailable)
}

func TestWatchdogBeginIsNoOpWhileInFlight(t *testing.T) {
	engine := &stubEngine{hang: true}
	w := NewRouteWatchdog(fastWatchdogConfig(), engine, nil, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	w.Begin(ctx, testOrigin, testDest)
	w.Begin(ctx, testOrigin, testDest)

	require.Eventually(t, func() bool {
		return engine.calculateCalls() == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, engine.calculateCalls())
}

func TestWatchdogRetryAfterStall(t *testing.T) {
	engine := &stubEngine{hang: true}
	w := NewRouteWatchdog(fastWatchdogConfig(), engine, nil, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	w.Begin(ctx, testOrigin, testDest)

	require.Eventually(t, func() bool {
		return w.State().Stuck
	}, 2*time.Second, 5*time.Millisecond)

	// The operator fixes connectivity and retries; this attempt succeeds.
	engine.mu.Lock()
	engine.hang = false
	engine.mu.Unlock()

	w.Retry(ctx)
	require.Eventually(t, func() bool {
		s := w.State()
		return !s.Transitioning && !s.Stuck
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, engine.IsNavigating())
}

func TestWatchdogResolveSkipGuidance(t *testing.T) {
	engine := &stubEngine{hang: true}
	w := NewRouteWatchdog(fastWatchdogConfig(), engine, nil, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	w.Begin(ctx, testOrigin, testDest)
	require.Eventually(t, func() bool {
		return w.State().Stuck
	}, 2*time.Second, 5*time.Millisecond)

	w.Resolve(ctx, RecoverySkipGuidance)
	state := w.State()
	assert.False(t, state.Stuck)
	assert.True(t, state.GuidanceUnavailable, "engagement continues on raw coordinates")
}

func TestWatchdogResolveAbort(t *testing.T) {
	engine := &stubEngine{hang: true}
	w := NewRouteWatchdog(fastWatchdogConfig(), engine, nil, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	w.Begin(ctx, testOrigin, testDest)
	require.Eventually(t, func() bool {
		return w.State().Stuck
	}, 2*time.Second, 5*time.Millisecond)

	w.Resolve(ctx, RecoveryAbort)
	state := w.State()
	assert.False(t, state.Stuck)
	assert.False(t, state.Transitioning)
}

func TestWatchdogReset(t *testing.T) {
	engine := &stubEngine{hang: true}
	w := NewRouteWatchdog(fastWatchdogConfig(), engine, nil, zap.NewNop())

	ctx, cancel := testContext(t)
	defer cancel()
	w.Begin(ctx, testOrigin, testDest)
	require.Eventually(t, func() bool {
		return w.State().Stuck
	}, 2*time.Second, 5*time.Millisecond)

	w.Reset()
	assert.Equal(t, WatchdogState{}, w.State())
}
