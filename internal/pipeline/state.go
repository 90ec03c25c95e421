package pipeline

import "fmt"

// Phase is the fine-grained state of a run.
type Phase string

// Phase constants
const (
	PhaseIdle                  Phase = "idle"
	PhaseIntelRunning          Phase = "intel_running"
	PhaseIntelDone             Phase = "intel_done"
	PhaseStrategyRunning       Phase = "strategy_running"
	PhaseStrategyRepairRunning Phase = "strategy_repair_running"
	PhaseStrategyDone          Phase = "strategy_done"
	PhaseGatingCheck           Phase = "gating_check"
	PhaseBlocked               Phase = "blocked"
	PhaseAssetsRunning         Phase = "assets_running"
	PhaseSucceeded             Phase = "succeeded"
	PhaseFailed                Phase = "failed"
)

// Status is the coarse state of a run, derived from its Phase.
type Status string

// Status constants
const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusBlocked   Status = "blocked"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// PhaseDefinition describes a phase and the phases it may move to.
type PhaseDefinition struct {
	Phase    Phase
	Status   Status
	Next     []Phase
	Terminal bool
}

// PhaseRegistry holds every phase of the state machine. Failed is reachable
// from every non-terminal phase and is not listed in Next.
var PhaseRegistry = map[Phase]PhaseDefinition{
	PhaseIdle: {
		Phase:  PhaseIdle,
		Status: StatusIdle,
		Next:   []Phase{PhaseIntelRunning},
	},
	PhaseIntelRunning: {
		Phase:  PhaseIntelRunning,
		Status: StatusRunning,
		Next:   []Phase{PhaseIntelDone},
	},
	PhaseIntelDone: {
		Phase:  PhaseIntelDone,
		Status: StatusRunning,
		Next:   []Phase{PhaseStrategyRunning},
	},
	PhaseStrategyRunning: {
		Phase:  PhaseStrategyRunning,
		Status: StatusRunning,
		Next:   []Phase{PhaseStrategyRepairRunning, PhaseStrategyDone},
	},
	PhaseStrategyRepairRunning: {
		Phase:  PhaseStrategyRepairRunning,
		Status: StatusRunning,
		Next:   []Phase{PhaseStrategyDone},
	},
	PhaseStrategyDone: {
		Phase:  PhaseStrategyDone,
		Status: StatusRunning,
		Next:   []Phase{PhaseGatingCheck},
	},
	PhaseGatingCheck: {
		Phase:  PhaseGatingCheck,
		Status: StatusRunning,
		Next:   []Phase{PhaseBlocked, PhaseAssetsRunning},
	},
	PhaseAssetsRunning: {
		Phase:  PhaseAssetsRunning,
		Status: StatusRunning,
		Next:   []Phase{PhaseSucceeded},
	},
	PhaseBlocked: {
		Phase:    PhaseBlocked,
		Status:   StatusBlocked,
		Terminal: true,
	},
	PhaseSucceeded: {
		Phase:    PhaseSucceeded,
		Status:   StatusSucceeded,
		Terminal: true,
	},
	PhaseFailed: {
		Phase:    PhaseFailed,
		Status:   StatusFailed,
		Terminal: true,
	},
}

// TransitionError is an attempted move the state machine does not allow.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// Status returns the coarse status for p.
func (p Phase) Status() Status {
	if def, ok := PhaseRegistry[p]; ok {
		return def.Status
	}
	return StatusIdle
}

// Terminal reports whether no further transition is possible from p.
func (p Phase) Terminal() bool {
	return PhaseRegistry[p].Terminal
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Phase) bool {
	def, ok := PhaseRegistry[from]
	if !ok || def.Terminal {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	for _, next := range def.Next {
		if next == to {
			return true
		}
	}
	return false
}
