package model

// NavigationPhase is the current stage of an engagement's lifecycle.
type NavigationPhase string

const (
	PhaseToPickup      NavigationPhase = "TO_PICKUP"
	PhaseAtPickup      NavigationPhase = "AT_PICKUP"
	PhasePickingUp     NavigationPhase = "PICKING_UP"
	PhaseToDestination NavigationPhase = "TO_DESTINATION"
	PhaseAtDestination NavigationPhase = "AT_DESTINATION"
	PhaseCompleted     NavigationPhase = "COMPLETED"
)

// TransitionTable maps a phase to the set of phases it may legally move to.
// COMPLETED is terminal and has no outgoing transitions in either topology.
type TransitionTable map[NavigationPhase][]NavigationPhase

// StagedPickupTable routes pickups through the intermediate PICKING_UP phase.
func StagedPickupTable() TransitionTable {
	return TransitionTable{
		PhaseToPickup:      {PhaseAtPickup},
		PhaseAtPickup:      {PhasePickingUp, PhaseToDestination},
		PhasePickingUp:     {PhaseToDestination},
		PhaseToDestination: {PhaseAtDestination},
		PhaseAtDestination: {PhaseCompleted},
		PhaseCompleted:     {},
	}
}

// DirectPickupTable skips PICKING_UP and goes straight from AT_PICKUP to
// TO_DESTINATION.
func DirectPickupTable() TransitionTable {
	return TransitionTable{
		PhaseToPickup:      {PhaseAtPickup},
		PhaseAtPickup:      {PhaseToDestination},
		PhaseToDestination: {PhaseAtDestination},
		PhaseAtDestination: {PhaseCompleted},
		PhaseCompleted:     {},
	}
}

func (t TransitionTable) Allows(from, to NavigationPhase) bool {
	for _, p := range t[from] {
		if p == to {
			return true
		}
	}
	return false
}
