// Package lifecycle decides, on timeframe and date transitions, whether the
// client-visible series must be destroyed and rebuilt versus updated
// incrementally.
package lifecycle

import (
	"sync"

	"chartreplay/internal/model"
)

// State is the client-series lifecycle state.
type State int

const (
	StateClean State = iota
	StateSkipModified
	StateTransitioning
	StateDataLoaded
	StateCorrupted
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "CLEAN"
	case StateSkipModified:
		return "SKIP_MODIFIED"
	case StateTransitioning:
		return "TRANSITIONING"
	case StateDataLoaded:
		return "DATA_LOADED"
	case StateCorrupted:
		return "CORRUPTED"
	default:
		return "UNKNOWN"
	}
}

// Machine tracks the lifecycle state, the skip counter feeding transition
// decisions, and the monotonically increasing recreation version.
// CORRUPTED is sticky: once entered, every prepared transition demands
// recreation until a transition completes successfully.
type Machine struct {
	mu        sync.Mutex
	state     State
	skipCount int
	version   int64
}

// NewMachine starts in CLEAN.
func NewMachine() *Machine {
	return &Machine{state: StateClean}
}

// RecordSkip notes a skip operation: the first one moves a clean or loaded
// machine to SKIP_MODIFIED.
func (m *Machine) RecordSkip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipCount++
	if m.state == StateClean || m.state == StateDataLoaded {
		m.state = StateSkipModified
	}
}

// PrepareTransition snapshots the pre-call flags, moves to TRANSITIONING, and
// returns the plan. The snapshot must happen before entering TRANSITIONING:
// evaluated after, the flags would only ever see the freshly-entered state
// and miss the real signal.
func (m *Machine) PrepareTransition(from, to model.Timeframe) model.TransitionPlan {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasCorrupted := m.state == StateCorrupted
	wasSkipModified := m.state == StateSkipModified
	hadSkipOps := m.skipCount > 0

	m.state = StateTransitioning

	plan := model.TransitionPlan{
		FromTimeframe:   from,
		ToTimeframe:     to,
		NeedsRecreation: hadSkipOps || wasCorrupted || wasSkipModified,
	}
	switch {
	case wasCorrupted:
		plan.Reason = "previous transition failed"
	case hadSkipOps:
		plan.Reason = "skip operations modified the series"
	case wasSkipModified:
		plan.Reason = "series carries skip modifications"
	default:
		plan.Reason = "series is clean"
	}
	return plan
}

// RecreationCommand returns the next recreation version token. A consumer
// holding a client-visible series discards and rebuilds it whenever it
// observes a new version.
func (m *Machine) RecreationCommand() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	return m.version
}

// CompleteTransition closes the transition: success lands in DATA_LOADED and
// resets the skip counter, failure lands in sticky CORRUPTED.
func (m *Machine) CompleteTransition(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.state = StateDataLoaded
		m.skipCount = 0
	} else {
		m.state = StateCorrupted
	}
}

// Reset returns the machine to CLEAN with a zero skip counter. Used when a
// hard jump re-anchors the session; the recreation version is preserved so
// tokens stay monotonic across the session.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateClean
	m.skipCount = 0
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SkipCount returns the number of skips since the last successful transition
// or reset.
func (m *Machine) SkipCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipCount
}

// Version returns the current recreation version without incrementing it.
func (m *Machine) Version() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}
