package replay

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"chartreplay/internal/agg"
	"chartreplay/internal/contamination"
	"chartreplay/internal/model"
	"chartreplay/internal/series"
)

// SyncStatus describes how a synchronized timeframe reacted to a step.
type SyncStatus string

const (
	// SyncComplete: a coarser timeframe's tracked bucket closed and its own
	// candle was fetched.
	SyncComplete SyncStatus = "complete"
	// SyncIncomplete: a coarser timeframe's bucket is still open.
	SyncIncomplete SyncStatus = "incomplete"
	// SyncStepped: a finer timeframe was stepped forward multiple times to
	// catch up to the same wall-clock point.
	SyncStepped SyncStatus = "stepped"
	// SyncAligned: an equal-duration timeframe had its cursor assigned
	// directly.
	SyncAligned SyncStatus = "aligned"
)

// TimeframeSync is the per-timeframe completeness metadata reported for every
// synchronized timeframe on each step.
type TimeframeSync struct {
	Timeframe       model.Timeframe `json:"timeframe"`
	Status          SyncStatus      `json:"status"`
	Candle          *model.Candle   `json:"candle,omitempty"`
	Steps           int             `json:"steps,omitempty"`
	ElapsedMinutes  int             `json:"elapsed_minutes"`
	TotalMinutes    int             `json:"total_minutes"`
	CompletionRatio float64         `json:"completion_ratio"`
}

// StepResult is the outcome of one skip: the primary candle for the target
// timeframe, its completeness, and the sync metadata for every other active
// timeframe.
type StepResult struct {
	Timeframe   model.Timeframe                   `json:"timeframe"`
	Candle      model.Candle                      `json:"candle"`
	Complete    bool                              `json:"complete"`
	OperationID string                            `json:"operation_id"`
	Sync        map[model.Timeframe]TimeframeSync `json:"sync"`
}

// Coordinator advances the clock and reconciles cursors across all active
// timeframes on every step. The fan-out is asymmetric: finer timeframes must
// multi-step to catch up, coarser ones may stay incomplete. Rounding favors
// leaving a coarser bucket open over prematurely closing it.
type Coordinator struct {
	store      *series.Store
	clock      *Clock
	tracker    *contamination.Tracker
	timeframes []model.Timeframe
	log        *slog.Logger
}

// NewCoordinator builds a coordinator synchronizing the given timeframes.
// The caller owns and passes the clock instance; there are no hidden globals.
func NewCoordinator(store *series.Store, clock *Clock, tracker *contamination.Tracker, timeframes []model.Timeframe, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		store:      store,
		clock:      clock,
		tracker:    tracker,
		timeframes: timeframes,
		log:        log,
	}
}

// Timeframes returns the synchronized timeframe set.
func (r *Coordinator) Timeframes() []model.Timeframe { return r.timeframes }

// Skip advances the target timeframe by one of its candles, moves the clock,
// reconciles every other active timeframe, and registers each synthesized
// candle with the contamination tracker.
func (r *Coordinator) Skip(target model.Timeframe) (*StepResult, error) {
	targetMins, err := target.Minutes()
	if err != nil {
		return nil, err
	}

	// Locate the next target-aligned base candle after the cursor. With no
	// cursor yet, start from the clock (or the series start on a fresh
	// session).
	var searchTS int64
	if cursor, ok := r.clock.Cursor(target); ok {
		searchTS = cursor + int64(targetMins)*60 - 1
	} else if r.clock.Initialized() {
		searchTS = r.clock.Now() - 1
	} else {
		searchTS = r.store.First().Timestamp - 1
	}

	idx, ok := r.store.IndexAfter(searchTS)
	if !ok {
		return nil, fmt.Errorf("no candle after cursor for %s: %w", target, model.ErrSeriesExhausted)
	}
	startTS := r.store.At(idx).Timestamp

	basis := r.store.SliceForward(idx, targetMins)
	primary, _ := agg.Rollup(basis)
	complete := len(basis) == targetMins

	if accepted, verr := r.clock.ValidateCandleTime(startTS, target); verr == nil && !accepted {
		// Advisory for step-sourced candles: log the drift, keep going.
		r.log.Warn("step candle outside clock tolerance",
			slog.String("timeframe", string(target)),
			slog.Int64("candle_ts", startTS),
			slog.Int64("clock", r.clock.Now()))
	}

	// Cursors vanish on advance; snapshot them first so the fan-out below
	// can re-derive every timeframe's relationship to the new time.
	prev := r.clock.Cursors()

	if err := r.clock.Advance(targetMins, target); err != nil {
		return nil, err
	}
	now := r.clock.Now()

	opID := uuid.NewString()
	r.clock.SetCursor(target, startTS)
	r.tracker.RegisterSkip(target, primary, opID)

	result := &StepResult{
		Timeframe:   target,
		Candle:      primary,
		Complete:    complete,
		OperationID: opID,
		Sync:        make(map[model.Timeframe]TimeframeSync, len(r.timeframes)),
	}

	for _, tf := range r.timeframes {
		if tf == target {
			continue
		}
		mins, merr := tf.Minutes()
		if merr != nil {
			continue
		}
		switch {
		case mins < targetMins:
			result.Sync[tf] = r.catchUpFiner(tf, mins, targetMins, idx, startTS, opID)
		case mins > targetMins:
			result.Sync[tf] = r.settleCoarser(tf, mins, startTS, now, prev, opID)
		default:
			r.clock.SetCursor(tf, startTS)
			c := primary
			result.Sync[tf] = TimeframeSync{
				Timeframe:       tf,
				Status:          SyncAligned,
				Candle:          &c,
				ElapsedMinutes:  targetMins,
				TotalMinutes:    mins,
				CompletionRatio: 1,
			}
		}
	}
	return result, nil
}

// catchUpFiner steps a finer timeframe forward exactly targetMins/mins times
// so it reaches the same wall-clock point, synthesizing and registering each
// intermediate candle.
func (r *Coordinator) catchUpFiner(tf model.Timeframe, mins, targetMins, baseIdx int, startTS int64, opID string) TimeframeSync {
	steps := targetMins / mins
	var last model.Candle
	produced := 0

	for i := 0; i < steps; i++ {
		sub := r.store.SliceForward(baseIdx+i*mins, mins)
		c, ok := agg.Rollup(sub)
		if !ok {
			break
		}
		r.tracker.RegisterSkip(tf, c, opID)
		last = c
		produced++
	}

	sync := TimeframeSync{
		Timeframe:       tf,
		Status:          SyncStepped,
		Steps:           produced,
		ElapsedMinutes:  produced * mins,
		TotalMinutes:    targetMins,
		CompletionRatio: float64(produced*mins) / float64(targetMins),
	}
	if produced > 0 {
		r.clock.SetCursor(tf, startTS+int64((produced-1)*mins)*60)
		sync.Candle = &last
	}
	return sync
}

// settleCoarser reconciles a coarser timeframe: once the elapsed minutes in
// its tracked bucket reach the bucket's duration, the bucket closes and the
// timeframe's own candle is fetched; otherwise the cursor stays put and the
// bucket is reported incomplete.
func (r *Coordinator) settleCoarser(tf model.Timeframe, mins int, startTS, now int64, prev map[model.Timeframe]int64, opID string) TimeframeSync {
	bucketStart, tracked := prev[tf]
	if !tracked {
		// First contact: the coarser bucket opens at this step's start.
		bucketStart = startTS
	}
	elapsed := int((now - bucketStart) / 60)

	if elapsed < mins {
		r.clock.SetCursor(tf, bucketStart)
		return TimeframeSync{
			Timeframe:       tf,
			Status:          SyncIncomplete,
			ElapsedMinutes:  elapsed,
			TotalMinutes:    mins,
			CompletionRatio: float64(elapsed) / float64(mins),
		}
	}

	// Bucket closed: fetch the coarser timeframe's own candle over the
	// bucket it was tracking.
	sync := TimeframeSync{
		Timeframe:       tf,
		Status:          SyncComplete,
		ElapsedMinutes:  mins,
		TotalMinutes:    mins,
		CompletionRatio: 1,
	}
	if bIdx, ok := r.store.IndexAfter(bucketStart - 1); ok {
		if c, ok := agg.Rollup(r.store.SliceForward(bIdx, mins)); ok {
			r.tracker.RegisterSkip(tf, c, opID)
			sync.Candle = &c
		}
	}
	r.clock.SetCursor(tf, bucketStart+int64(mins)*60)
	return sync
}
