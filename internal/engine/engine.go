// Package engine exposes the request surface over the replay core: getWindow,
// step, jumpTo, and switchTimeframe. Exactly one temporal operation (step,
// jump, or switch) is in flight at a time; window reads interleave freely
// with them because windows depend only on the caller-supplied anchor and
// count, never on cursor state.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chartreplay/internal/bus"
	"chartreplay/internal/cache"
	"chartreplay/internal/contamination"
	"chartreplay/internal/lifecycle"
	"chartreplay/internal/model"
	"chartreplay/internal/replay"
	"chartreplay/internal/series"
)

// Engine wires the master series, the window cache, and the temporal unit
// (clock + coordinator + tracker + lifecycle machine) behind the four
// request-surface operations.
type Engine struct {
	store     *series.Store
	cache     *cache.WindowCache
	clock     *replay.Clock
	coord     *replay.Coordinator
	tracker   *contamination.Tracker
	lifecycle *lifecycle.Machine
	events    *bus.FanOut
	log       *slog.Logger

	opMu sync.Mutex // serializes temporal operations
	seq  atomic.Int64

	defaultCount int

	// Observability hooks, all optional.
	OnStep      func(tf model.Timeframe)
	OnJump      func()
	OnSwitch    func(recreated bool)
	OnWindowDur func(d time.Duration)
}

// SwitchResult is the payload of a timeframe switch: the plan, the recreation
// token when one was issued (0 otherwise), and the freshly built window for
// the destination timeframe.
type SwitchResult struct {
	Plan            model.TransitionPlan   `json:"plan"`
	RecreationToken int64                  `json:"recreation_token"`
	Window          *model.TimeframeWindow `json:"window"`
}

// New assembles an engine. defaultCount sizes the window built on a
// timeframe switch.
func New(store *series.Store, wc *cache.WindowCache, clock *replay.Clock, coord *replay.Coordinator, tracker *contamination.Tracker, machine *lifecycle.Machine, events *bus.FanOut, defaultCount int, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if defaultCount <= 0 {
		defaultCount = 500
	}
	return &Engine{
		store:        store,
		cache:        wc,
		clock:        clock,
		coord:        coord,
		tracker:      tracker,
		lifecycle:    machine,
		events:       events,
		defaultCount: defaultCount,
		log:          log,
	}
}

// GetWindow serves a materialized window for (tf, anchorDate, count) and
// reports whether it came from cache. When the timeframe carries skip
// candles, the skips falling inside the window's span are overlaid onto its
// candles, winning ties on identical timestamps. Windows for other anchors
// keep their own candles.
func (e *Engine) GetWindow(tf model.Timeframe, anchorDate string, count int) (*model.TimeframeWindow, bool, error) {
	mins, err := tf.Minutes()
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	w, hit, err := e.cache.Get(tf, anchorDate, count)
	if err != nil {
		return nil, false, err
	}
	if e.OnWindowDur != nil {
		e.OnWindowDur(time.Since(start))
	}

	e.tracker.RegisterCanonicalBasis(tf, w.Candles)
	if e.tracker.SkipCount(tf) > 0 {
		span := int64(count) * int64(mins) * 60
		w = w.WithCandles(e.tracker.Overlay(tf, w.Candles, span))
	}
	return w, hit, nil
}

// Step advances the target timeframe by one candle, fanning the clock change
// out across all synchronized timeframes. A failure partway rolls the clock
// and cursors back to their pre-operation values before returning.
func (e *Engine) Step(tf model.Timeframe) (*replay.StepResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if _, err := tf.Minutes(); err != nil {
		return nil, err
	}

	snap := e.clock.Snapshot()
	res, err := e.coord.Skip(tf)
	if err != nil {
		e.clock.Restore(snap)
		return nil, err
	}

	e.lifecycle.RecordSkip()
	if e.OnStep != nil {
		e.OnStep(tf)
	}

	c := res.Candle
	e.publish(model.Event{
		Type:      model.EventStep,
		Timeframe: tf,
		Candle:    &c,
	})
	return res, nil
}

// JumpTo hard-resets the session to the candle nearest the given date:
// the clock is re-anchored, all cursors are dropped, and every timeframe's
// contamination is cleared back to canonical data.
func (e *Engine) JumpTo(date string) (model.Candle, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	idx := e.store.IndexForDate(date)
	anchor := e.store.At(idx)

	// The jump keeps the timeframe that drove the last temporal operation so
	// the event stream stays uniformly stamped.
	source := e.clock.LastSource()
	e.clock.SetTime(anchor.Timestamp, source)
	e.tracker.ClearAll()
	e.lifecycle.Reset()

	if e.OnJump != nil {
		e.OnJump()
	}
	e.log.Info("jumped to date",
		slog.String("date", date),
		slog.Int64("anchor_ts", anchor.Timestamp))

	c := anchor
	e.publish(model.Event{
		Type:      model.EventJump,
		Timeframe: source,
		Candle:    &c,
	})
	return anchor, nil
}

// SwitchTimeframe runs the lifecycle transition from one displayed timeframe
// to another: it produces the plan, issues a recreation token when the
// destination view must be rebuilt from scratch, and materializes the
// destination window. A failed rebuild leaves the machine CORRUPTED and the
// destination timeframe escalated to CRITICAL.
func (e *Engine) SwitchTimeframe(from, to model.Timeframe) (*SwitchResult, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if _, err := from.Minutes(); err != nil {
		return nil, err
	}
	if _, err := to.Minutes(); err != nil {
		return nil, err
	}

	plan := e.lifecycle.PrepareTransition(from, to)

	var token int64
	if plan.NeedsRecreation {
		token = e.lifecycle.RecreationCommand()
	}

	w, _, err := e.cache.Get(to, e.anchorDate(), e.defaultCount)
	if err != nil {
		e.lifecycle.CompleteTransition(false)
		e.tracker.Escalate(to)
		return nil, fmt.Errorf("rebuild %s window: %w", to, err)
	}

	e.lifecycle.CompleteTransition(true)
	e.tracker.Clear(from)
	e.tracker.Clear(to)
	e.tracker.RegisterCanonicalBasis(to, w.Candles)

	if e.OnSwitch != nil {
		e.OnSwitch(plan.NeedsRecreation)
	}

	p := plan
	e.publish(model.Event{
		Type:            model.EventTransition,
		Timeframe:       to,
		Window:          w,
		Plan:            &p,
		RecreationToken: token,
	})
	return &SwitchResult{Plan: plan, RecreationToken: token, Window: w}, nil
}

// ContaminationLevel reports the current grade for a timeframe.
func (e *Engine) ContaminationLevel(tf model.Timeframe) model.ContaminationLevel {
	return e.tracker.Level(tf)
}

// anchorDate positions rebuilt windows at the replay clock when it is
// running, else at the start of the series.
func (e *Engine) anchorDate() string {
	if e.clock.Initialized() {
		return time.Unix(e.clock.Now(), 0).UTC().Format("2006-01-02")
	}
	first := e.store.First()
	return first.Date()
}

// publish stamps and broadcasts an event. Best-effort: observers can never
// fail a core operation.
func (e *Engine) publish(ev model.Event) {
	if e.events == nil {
		return
	}
	ev.Seq = e.seq.Add(1)
	ev.TS = time.Now().UTC()
	e.events.Publish(ev)
}
