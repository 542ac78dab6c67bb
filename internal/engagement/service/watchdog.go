package service

import (
	"context"
	"sync"
	"time"

	"ride-engagement/internal/engagement/model"
	"ride-engagement/internal/routing"

	"go.uber.org/zap"
)

// RecoveryChoice is one of the options surfaced when route recalculation
// stalls past the hard threshold.
type RecoveryChoice string

const (
	RecoveryRetry        RecoveryChoice = "retry"
	RecoverySkipGuidance RecoveryChoice = "skip_guidance"
	RecoveryAbort        RecoveryChoice = "abort"
)

// RecoveryFunc receives the available choices when the watchdog declares the
// transition stuck.
type RecoveryFunc func(choices []RecoveryChoice)

type WatchdogConfig struct {
	SettleDelay  time.Duration
	PollInterval time.Duration
	RetryAfter   time.Duration
	StuckAfter   time.Duration
}

// WatchdogState is a snapshot for callers/UI.
type WatchdogState struct {
	Transitioning       bool `json:"transitioning"`
	RetryAvailable      bool `json:"retry_available"`
	Stuck               bool `json:"stuck"`
	Handled             bool `json:"handled"`
	GuidanceUnavailable bool `json:"guidance_unavailable"`
}

// RouteWatchdog supervises the external route recalculation triggered by the
// TO_DESTINATION transition. Staged thresholds: past RetryAfter a manual
// retry becomes available; past StuckAfter the transitioning flag is
// force-cleared and recovery choices are surfaced. A late-arriving route
// cancels the pending timeout. Best-effort degradation only: the engagement
// stays operable on raw coordinates even if guidance never arrives.
type RouteWatchdog struct {
	mu     sync.Mutex
	cfg    WatchdogConfig
	engine routing.Engine

	transitioning       bool
	handled             bool
	stuck               bool
	retryAvailable      bool
	guidanceUnavailable bool
	startedAt           time.Time
	origin              model.Coordinate
	destination         model.Coordinate

	onRecovery RecoveryFunc
	log        *zap.Logger
}

func NewRouteWatchdog(cfg WatchdogConfig, engine routing.Engine, onRecovery RecoveryFunc, log *zap.Logger) *RouteWatchdog {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 5 * time.Second
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 15 * time.Second
	}
	return &RouteWatchdog{
		cfg:        cfg,
		engine:     engine,
		onRecovery: onRecovery,
		log:        log,
	}
}

// Begin clears prior route state and kicks off recalculation plus the polling
// watchdog. No-op if a transition is already in flight or was already handled.
func (w *RouteWatchdog) Begin(ctx context.Context, origin, destination model.Coordinate) {
	w.mu.Lock()
	if w.transitioning || w.handled || w.engine.IsNavigating() {
		w.mu.Unlock()
		return
	}
	w.transitioning = true
	w.stuck = false
	w.retryAvailable = false
	w.startedAt = time.Now()
	w.origin = origin
	w.destination = destination
	w.mu.Unlock()

	w.engine.ClearRoute()
	w.log.Info("route transition started, watchdog armed")

	go w.recalculate(ctx)
	go w.poll(ctx)
}

func (w *RouteWatchdog) recalculate(ctx context.Context) {
	// Short settling delay so the phase commit and map state land first.
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.cfg.SettleDelay):
	}

	route, err := w.engine.CalculateRoute(ctx, w.origin, w.destination)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.log.Warn("route recalculation failed", zap.Error(err))
		return
	}
	if route != nil && w.transitioning {
		w.transitioning = false
		w.guidanceUnavailable = false
		w.log.Info("route recalculated",
			zap.Float64("distance_km", route.DistanceKm),
			zap.Int("duration_min", route.DurationMinutes))
	}
}

func (w *RouteWatchdog) poll(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := w.evaluate(); done {
				return
			}
		}
	}
}

// evaluate runs one watchdog tick; returns true when polling should stop.
func (w *RouteWatchdog) evaluate() bool {
	w.mu.Lock()

	if !w.transitioning {
		w.mu.Unlock()
		return true
	}
	if w.engine.IsNavigating() {
		// Late success cancels the pending timeout.
		w.transitioning = false
		w.guidanceUnavailable = false
		w.mu.Unlock()
		return true
	}

	elapsed := time.Since(w.startedAt)
	if elapsed >= w.cfg.StuckAfter {
		w.transitioning = false
		w.handled = true
		w.stuck = true
		w.guidanceUnavailable = true
		onRecovery := w.onRecovery
		w.mu.Unlock()

		w.log.Error("route recalculation stalled, force-clearing transition",
			zap.Duration("elapsed", elapsed),
			zap.Error(model.ErrRoutingStalled))
		if onRecovery != nil {
			onRecovery([]RecoveryChoice{RecoveryRetry, RecoverySkipGuidance, RecoveryAbort})
		}
		return true
	}
	if elapsed >= w.cfg.RetryAfter && !w.retryAvailable {
		w.retryAvailable = true
		w.log.Warn("route recalculation slow, manual retry available",
			zap.Duration("elapsed", elapsed))
	}

	w.mu.Unlock()
	return false
}

// Retry re-arms the watchdog and re-runs the recalculation with the same
// endpoints. Clears the handled latch so a fresh transition can be supervised.
func (w *RouteWatchdog) Retry(ctx context.Context) {
	w.mu.Lock()
	if w.transitioning {
		w.mu.Unlock()
		return
	}
	w.handled = false
	origin, destination := w.origin, w.destination
	w.mu.Unlock()

	w.log.Info("route recalculation retry requested")
	w.Begin(ctx, origin, destination)
}

// Resolve applies the operator's recovery choice after a stall.
func (w *RouteWatchdog) Resolve(ctx context.Context, choice RecoveryChoice) {
	switch choice {
	case RecoveryRetry:
		w.Retry(ctx)
	case RecoverySkipGuidance:
		w.mu.Lock()
		w.stuck = false
		w.guidanceUnavailable = true
		w.mu.Unlock()
		w.engine.ClearRoute()
		w.log.Info("turn-by-turn guidance skipped, continuing with raw coordinates")
	case RecoveryAbort:
		w.mu.Lock()
		w.stuck = false
		w.transitioning = false
		w.mu.Unlock()
		w.engine.ClearRoute()
		w.log.Warn("route transition aborted by operator")
	}
}

// Reset clears all watchdog state, used on engagement restart.
func (w *RouteWatchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transitioning = false
	w.handled = false
	w.stuck = false
	w.retryAvailable = false
	w.guidanceUnavailable = false
}

func (w *RouteWatchdog) State() WatchdogState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WatchdogState{
		Transitioning:       w.transitioning,
		RetryAvailable:      w.retryAvailable,
		Stuck:               w.stuck,
		Handled:             w.handled,
		GuidanceUnavailable: w.guidanceUnavailable,
	}
}
