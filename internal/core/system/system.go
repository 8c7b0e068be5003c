package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: apply inbound frames
	PhasePreUpdate               // 1: deliver events raised by those frames
	PhaseUpdate                  // 2: run posted fetch completions
	PhasePostUpdate              // 3: gauges and bookkeeping
	PhaseOutput                  // 4: encode + send outbound messages
	PhasePersist                 // 5: journal flush
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "Input"
	case PhasePreUpdate:
		return "PreUpdate"
	case PhaseUpdate:
		return "Update"
	case PhasePostUpdate:
		return "PostUpdate"
	case PhaseOutput:
		return "Output"
	case PhasePersist:
		return "Persist"
	default:
		return "Unknown"
	}
}

// System is the interface every loop system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
