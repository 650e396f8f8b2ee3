package domain

import (
	"errors"
	"fmt"
)

// Phase is the lifecycle phase of the single WhatsApp session this process owns.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseAwaitingQR
	PhaseAuthenticated
	PhaseReady
	PhaseRestarting
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseAwaitingQR:
		return "awaiting_qr"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseReady:
		return "ready"
	case PhaseRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}

var ErrInvalidTransition = errors.New("invalid phase transition")

func NewInvalidTransitionError(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// validTransitions encodes the lifecycle table. Restarting is reachable from
// every phase (auth failure, disconnect, or watchdog staleness can strike at
// any time), and re-initialization is reachable from every phase because a
// recovery always funnels back through Initializing.
var validTransitions = map[Phase][]Phase{
	PhaseUninitialized: {PhaseInitializing, PhaseRestarting},
	PhaseInitializing:  {PhaseAwaitingQR, PhaseAuthenticated, PhaseReady, PhaseRestarting},
	PhaseAwaitingQR:    {PhaseAwaitingQR, PhaseAuthenticated, PhaseReady, PhaseRestarting},
	PhaseAuthenticated: {PhaseReady, PhaseRestarting},
	PhaseReady:         {PhaseReady, PhaseRestarting},
	PhaseRestarting:    {PhaseInitializing},
}

func CanTransition(from, to Phase) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, p := range allowed {
		if p == to {
			return true
		}
	}
	return false
}
