package indexservice

import "fmt"

// Phase is one node of the IndexService lifecycle state machine:
// CREATED -> INITIALIZED -> STARTED -> INITIALIZED -> CREATED.
type Phase int32

const (
	PhaseCreated Phase = iota
	PhaseInitialized
	PhaseStarted
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "CREATED"
	case PhaseInitialized:
		return "INITIALIZED"
	case PhaseStarted:
		return "STARTED"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// validTransitions enumerates the only legal phase-to-phase moves. Init and
// Start walk forward; Stop and Cleanup walk back down the same ladder —
// there is no direct CREATED<->STARTED shortcut.
var validTransitions = map[[2]Phase]bool{
	{PhaseCreated, PhaseInitialized}: true, // Init
	{PhaseInitialized, PhaseStarted}: true, // Start
	{PhaseStarted, PhaseInitialized}: true, // Stop
	{PhaseInitialized, PhaseCreated}: true, // Cleanup
}

func transitionAllowed(from, to Phase) bool {
	return validTransitions[[2]Phase{from, to}]
}
