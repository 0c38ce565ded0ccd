// Package replay owns the authoritative replay clock and the cross-timeframe
// step coordinator. Clock, coordinator, and contamination tracker form one
// logical unit: callers serialize temporal operations so that at most one
// step, jump, or timeframe switch is in flight at a time.
package replay

import (
	"chartreplay/internal/model"
)

// Operation tags the kind of mutation that last touched the clock. Step and
// jump operations legitimately pull candles from a historical dataset whose
// alignment to the clock is looser than normal playback, so validation widens
// its tolerance for them.
type Operation int

const (
	OpNone Operation = iota
	OpStep
	OpJump
)

// wideToleranceMinutes is the validation tolerance floor after a step or jump.
const wideToleranceMinutes = 120

// Clock is the single authoritative replay timestamp plus per-timeframe
// cursor bookkeeping. Exactly one instance exists per session; it has no
// internal locking because callers serialize all temporal operations.
type Clock struct {
	currentTime int64 // Unix seconds
	initialized bool
	lastOp      Operation
	lastSource  model.Timeframe
	cursors     map[model.Timeframe]int64
}

// NewClock returns an uninitialized clock.
func NewClock() *Clock {
	return &Clock{cursors: make(map[model.Timeframe]int64)}
}

// Initialize sets the starting time exactly once. Calling it again is a
// silent no-op.
func (c *Clock) Initialize(ts int64) {
	if c.initialized {
		return
	}
	c.currentTime = ts
	c.initialized = true
}

// Advance moves the clock forward by minutes on behalf of sourceTimeframe and
// clears every per-timeframe cursor: after any advance, each timeframe's
// relationship to the new time is unknown until the coordinator re-derives it.
func (c *Clock) Advance(minutes int, source model.Timeframe) error {
	if !c.initialized {
		return model.ErrClockNotInitialized
	}
	c.currentTime += int64(minutes) * 60
	c.lastOp = OpStep
	c.lastSource = source
	c.clearCursors()
	return nil
}

// SetTime hard-resets the clock for a jump: sets the time, marks it
// initialized, and clears all cursors.
func (c *Clock) SetTime(ts int64, source model.Timeframe) {
	c.currentTime = ts
	c.initialized = true
	c.lastOp = OpJump
	c.lastSource = source
	c.clearCursors()
}

// ValidateCandleTime accepts ts when it sits within tolerance of the current
// time. Tolerance defaults to the timeframe's own duration and widens to at
// least 120 minutes after a step or jump. The very first validation call
// initializes the clock instead of rejecting.
func (c *Clock) ValidateCandleTime(ts int64, tf model.Timeframe) (bool, error) {
	mins, err := tf.Minutes()
	if err != nil {
		return false, err
	}
	if !c.initialized {
		c.Initialize(ts)
		return true, nil
	}

	tolerance := mins
	if c.lastOp == OpStep || c.lastOp == OpJump {
		if tolerance < wideToleranceMinutes {
			tolerance = wideToleranceMinutes
		}
	}

	diff := ts - c.currentTime
	if diff < 0 {
		diff = -diff
	}
	return diff <= int64(tolerance)*60, nil
}

// Now returns the current replay time in Unix seconds.
func (c *Clock) Now() int64 { return c.currentTime }

// Initialized reports whether the clock has a starting time.
func (c *Clock) Initialized() bool { return c.initialized }

// LastSource returns the timeframe that drove the last mutation.
func (c *Clock) LastSource() model.Timeframe { return c.lastSource }

// Cursor returns the last reached timestamp for tf.
func (c *Clock) Cursor(tf model.Timeframe) (int64, bool) {
	ts, ok := c.cursors[tf]
	return ts, ok
}

// SetCursor records the last reached timestamp for tf.
func (c *Clock) SetCursor(tf model.Timeframe, ts int64) {
	c.cursors[tf] = ts
}

// Cursors returns a copy of the cursor set.
func (c *Clock) Cursors() map[model.Timeframe]int64 {
	out := make(map[model.Timeframe]int64, len(c.cursors))
	for tf, ts := range c.cursors {
		out[tf] = ts
	}
	return out
}

func (c *Clock) clearCursors() {
	for tf := range c.cursors {
		delete(c.cursors, tf)
	}
}

// Snapshot captures the full clock state so a failed temporal operation can
// be rolled back atomically. Partial application is never an acceptable end
// state.
type Snapshot struct {
	currentTime int64
	initialized bool
	lastOp      Operation
	lastSource  model.Timeframe
	cursors     map[model.Timeframe]int64
}

// Snapshot returns a copy of the current clock state.
func (c *Clock) Snapshot() Snapshot {
	return Snapshot{
		currentTime: c.currentTime,
		initialized: c.initialized,
		lastOp:      c.lastOp,
		lastSource:  c.lastSource,
		cursors:     c.Cursors(),
	}
}

// Restore resets the clock to a previously captured snapshot.
func (c *Clock) Restore(s Snapshot) {
	c.currentTime = s.currentTime
	c.initialized = s.initialized
	c.lastOp = s.lastOp
	c.lastSource = s.lastSource
	c.cursors = make(map[model.Timeframe]int64, len(s.cursors))
	for tf, ts := range s.cursors {
		c.cursors[tf] = ts
	}
}
