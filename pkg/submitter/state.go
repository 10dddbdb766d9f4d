package submitter

import (
	"github.com/initia-labs/batch-submitter/pkg/batch"
)

// Phase is the step of the loop a batch is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInitializing
	PhaseComputingRange
	PhaseAwaitingAvailability
	PhaseFetching
	PhaseBuildingPayload
	PhaseSubmitting
	PhasePersisting
	PhaseStopped
)

var phaseNames = [...]string{
	PhaseIdle:                 "idle",
	PhaseInitializing:         "initializing",
	PhaseComputingRange:       "computing_range",
	PhaseAwaitingAvailability: "awaiting_availability",
	PhaseFetching:             "fetching",
	PhaseBuildingPayload:      "building_payload",
	PhaseSubmitting:           "submitting",
	PhasePersisting:           "persisting",
	PhaseStopped:              "stopped",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// State is a snapshot of the loop. A new value is built for every transition;
// published values are never mutated.
type State struct {
	Index uint64
	Range batch.Range
	Phase Phase
}

func (s State) with(p Phase) State {
	s.Phase = p
	return s
}

// Outcome is the non-fatal result of one iteration.
type Outcome int

const (
	// Committed means the batch was submitted and persisted.
	Committed Outcome = iota
	// AwaitAvailability means the range is not produced yet; the loop waits and retries the same index.
	AwaitAvailability
	// Interrupted means cancellation was observed before the batch reached settlement.
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case AwaitAvailability:
		return "await_availability"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}
