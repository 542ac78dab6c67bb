package service

import (
	"sync"

	"ride-engagement/internal/engagement/model"

	"go.uber.org/zap"
)

// TransitionHook runs before a legal transition is committed, e.g. to start a
// counterparty timer. The machine only guards legality; callers that need
// "phase changed AND downstream action started" must sequence explicitly.
type TransitionHook func(from, to model.NavigationPhase)

// PhaseMachine owns the current lifecycle phase and validates requested
// transitions against its table.
type PhaseMachine struct {
	mu            sync.Mutex
	table         model.TransitionTable
	phase         model.NavigationPhase
	transitioning bool
	lastErr       error
	hooks         []TransitionHook
	log           *zap.Logger
}

func NewPhaseMachine(initial model.NavigationPhase, table model.TransitionTable, log *zap.Logger) *PhaseMachine {
	return &PhaseMachine{
		table: table,
		phase: initial,
		log:   log,
	}
}

func (m *PhaseMachine) Phase() model.NavigationPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Transitioning reports whether a transition is in flight, so callers can
// avoid concurrent double-transitions.
func (m *PhaseMachine) Transitioning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitioning
}

func (m *PhaseMachine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *PhaseMachine) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = nil
}

// OnTransition registers a pre-commit side effect. Hooks run outside the
// machine's lock and may read the machine.
func (m *PhaseMachine) OnTransition(hook TransitionHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// RequestTransition moves to target if the table allows it from the current
// phase. An illegal request leaves the phase untouched and records an
// InvalidTransitionError; a committed transition clears any previous error.
func (m *PhaseMachine) RequestTransition(target model.NavigationPhase) error {
	m.mu.Lock()
	from := m.phase
	if !m.table.Allows(from, target) {
		err := &model.InvalidTransitionError{From: from, To: target}
		m.lastErr = err
		m.mu.Unlock()
		m.log.Warn("invalid phase transition requested",
			zap.String("from", string(from)), zap.String("to", string(target)))
		return err
	}
	m.transitioning = true
	hooks := make([]TransitionHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(from, target)
	}

	m.mu.Lock()
	m.phase = target
	m.transitioning = false
	m.lastErr = nil
	m.mu.Unlock()

	m.log.Info("phase transition committed",
		zap.String("from", string(from)), zap.String("to", string(target)))
	return nil
}

// ForcePhaseChange bypasses the table entirely. Emergency/manual override for
// recovery paths the table does not anticipate; must be rare.
func (m *PhaseMachine) ForcePhaseChange(target model.NavigationPhase) {
	m.mu.Lock()
	from := m.phase
	m.phase = target
	m.transitioning = false
	m.lastErr = nil
	m.mu.Unlock()

	m.log.Warn("phase change forced, bypassing transition table",
		zap.String("from", string(from)), zap.String("to", string(target)))
}
