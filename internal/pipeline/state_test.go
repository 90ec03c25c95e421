package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseIntelRunning, true},
		{PhaseIdle, PhaseFailed, true},
		{PhaseIdle, PhaseStrategyRunning, false},
		{PhaseIntelRunning, PhaseIntelDone, true},
		{PhaseIntelDone, PhaseStrategyRunning, true},
		{PhaseStrategyRunning, PhaseStrategyRepairRunning, true},
		{PhaseStrategyRunning, PhaseStrategyDone, true},
		{PhaseStrategyRepairRunning, PhaseStrategyDone, true},
		{PhaseStrategyRepairRunning, PhaseStrategyRunning, false},
		{PhaseStrategyDone, PhaseGatingCheck, true},
		{PhaseGatingCheck, PhaseBlocked, true},
		{PhaseGatingCheck, PhaseAssetsRunning, true},
		{PhaseAssetsRunning, PhaseSucceeded, true},
		{PhaseAssetsRunning, PhaseIntelRunning, false},
		{PhaseSucceeded, PhaseFailed, false},
		{PhaseBlocked, PhaseAssetsRunning, false},
		{PhaseFailed, PhaseIdle, false},
		{Phase("unknown"), PhaseFailed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestPhaseStatus(t *testing.T) {
	assert.Equal(t, StatusIdle, PhaseIdle.Status())
	assert.Equal(t, StatusRunning, PhaseStrategyRepairRunning.Status())
	assert.Equal(t, StatusBlocked, PhaseBlocked.Status())
	assert.Equal(t, StatusSucceeded, PhaseSucceeded.Status())
	assert.Equal(t, StatusFailed, PhaseFailed.Status())

	assert.True(t, PhaseBlocked.Terminal())
	assert.False(t, PhaseGatingCheck.Terminal())
}

func TestPhaseRegistry_Consistent(t *testing.T) {
	for phase, def := range PhaseRegistry {
		assert.Equal(t, phase, def.Phase)
		for _, next := range def.Next {
			_, ok := PhaseRegistry[next]
			assert.True(t, ok, "%s lists unknown next phase %s", phase, next)
		}
		if def.Terminal {
			assert.Empty(t, def.Next, "terminal phase %s has successors", phase)
		}
	}
}

func TestRunner_IllegalTransitionLoggedNotApplied(t *testing.T) {
	run := &Run{Phase: PhaseSucceeded, Status: StatusSucceeded, Trail: NewTrail()}
	r := &runner{run: run}

	assert.False(t, r.transition(PhaseIntelRunning))
	assert.Equal(t, PhaseSucceeded, run.Phase)
	assert.Equal(t, StatusSucceeded, run.Status)

	errs := run.Trail.Filter("error")
	if assert.Len(t, errs, 1) {
		assert.Equal(t, "illegal transition succeeded -> intel_running", errs[0].Message)
	}
}
