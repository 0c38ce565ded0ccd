// Package contamination isolates synthetic step-generated candles from
// canonical candles per timeframe, merges them for reads, and grades how
// dirty each timeframe's view is.
package contamination

import (
	"sort"
	"sync"

	"chartreplay/internal/model"
)

// Tracker keeps, per timeframe, the list of skip candles registered since the
// last clear, the canonical candle basis, and the derived contamination
// level. Mutations happen inside the caller's single-temporal-operation
// boundary; the internal mutex only protects concurrent readers.
type Tracker struct {
	mu        sync.RWMutex
	skips     map[model.Timeframe][]model.SkipCandle
	canonical map[model.Timeframe][]model.Candle
	escalated map[model.Timeframe]bool

	// OnLevelChange fires whenever a timeframe's level is recomputed.
	OnLevelChange func(tf model.Timeframe, level model.ContaminationLevel)
}

// NewTracker returns an empty tracker: every timeframe is CLEAN.
func NewTracker() *Tracker {
	return &Tracker{
		skips:     make(map[model.Timeframe][]model.SkipCandle),
		canonical: make(map[model.Timeframe][]model.Candle),
		escalated: make(map[model.Timeframe]bool),
	}
}

// RegisterSkip appends a synthetic candle for tf and recomputes its level.
func (t *Tracker) RegisterSkip(tf model.Timeframe, c model.Candle, operationID string) {
	t.mu.Lock()
	sc := model.SkipCandle{
		Candle:          c,
		Timeframe:       tf,
		OperationID:     operationID,
		LevelAtCreation: t.levelLocked(tf),
	}
	t.skips[tf] = append(t.skips[tf], sc)
	level := t.levelLocked(tf)
	t.mu.Unlock()

	if t.OnLevelChange != nil {
		t.OnLevelChange(tf, level)
	}
}

// RegisterCanonicalBasis stores the canonical candle basis for tf, but only
// if the new basis is longer than the existing one. The guard keeps a smaller
// partial reload from shrinking a previously-larger basis.
func (t *Tracker) RegisterCanonicalBasis(tf model.Timeframe, candles []model.Candle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(candles) <= len(t.canonical[tf]) {
		return
	}
	basis := make([]model.Candle, len(candles))
	copy(basis, candles)
	t.canonical[tf] = basis
}

// MergedView starts from the canonical basis and overlays every registered
// skip candle: a skip replaces the canonical candle sharing its timestamp and
// is appended otherwise. Skip candles always win ties. The result is sorted
// by timestamp and truncated to the last maxCount entries.
func (t *Tracker) MergedView(tf model.Timeframe, maxCount int) []model.Candle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	basis := t.canonical[tf]
	byTS := make(map[int64]model.Candle, len(basis)+len(t.skips[tf]))
	for _, c := range basis {
		byTS[c.Timestamp] = c
	}
	for _, sc := range t.skips[tf] {
		byTS[sc.Timestamp] = sc.Candle
	}

	merged := make([]model.Candle, 0, len(byTS))
	for _, c := range byTS {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})

	if maxCount > 0 && len(merged) > maxCount {
		merged = merged[len(merged)-maxCount:]
	}
	return merged
}

// Overlay merges tf's skip candles into the given canonical candle run and
// returns the result sorted by timestamp, skip candles winning ties. Only
// skips inside the run's span are applied: the span starts at the first
// candle and extends spanSeconds. Unlike MergedView this never reads the
// stored session basis, so a window built for any anchor keeps its own
// candles.
func (t *Tracker) Overlay(tf model.Timeframe, candles []model.Candle, spanSeconds int64) []model.Candle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(candles) == 0 {
		return candles
	}
	start := candles[0].Timestamp
	end := start + spanSeconds

	byTS := make(map[int64]model.Candle, len(candles)+len(t.skips[tf]))
	for _, c := range candles {
		byTS[c.Timestamp] = c
	}
	for _, sc := range t.skips[tf] {
		if sc.Timestamp < start || sc.Timestamp >= end {
			continue
		}
		byTS[sc.Timestamp] = sc.Candle
	}

	merged := make([]model.Candle, 0, len(byTS))
	for _, c := range byTS {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// Level returns the contamination grade for tf.
func (t *Tracker) Level(tf model.Timeframe) model.ContaminationLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.levelLocked(tf)
}

func (t *Tracker) levelLocked(tf model.Timeframe) model.ContaminationLevel {
	if t.escalated[tf] {
		return model.ContaminationCritical
	}
	return model.LevelForSkipCount(len(t.skips[tf]))
}

// SkipCount returns the number of skip candles registered for tf since its
// last clear.
func (t *Tracker) SkipCount(tf model.Timeframe) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.skips[tf])
}

// Escalate forces tf to CRITICAL until its next clear. Used when a
// recreation fails.
func (t *Tracker) Escalate(tf model.Timeframe) {
	t.mu.Lock()
	t.escalated[tf] = true
	t.mu.Unlock()

	if t.OnLevelChange != nil {
		t.OnLevelChange(tf, model.ContaminationCritical)
	}
}

// Clear drops tf's skip candles and escalation, returning it to CLEAN.
// The canonical basis is kept: it is canonical data.
func (t *Tracker) Clear(tf model.Timeframe) {
	t.mu.Lock()
	delete(t.skips, tf)
	delete(t.escalated, tf)
	t.mu.Unlock()

	if t.OnLevelChange != nil {
		t.OnLevelChange(tf, model.ContaminationClean)
	}
}

// ClearAll clears every timeframe. Used when a hard jump re-anchors the
// session to canonical data.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	tfs := make([]model.Timeframe, 0, len(t.skips)+len(t.escalated))
	for tf := range t.skips {
		tfs = append(tfs, tf)
	}
	for tf := range t.escalated {
		if _, dup := t.skips[tf]; !dup {
			tfs = append(tfs, tf)
		}
	}
	t.skips = make(map[model.Timeframe][]model.SkipCandle)
	t.escalated = make(map[model.Timeframe]bool)
	t.mu.Unlock()

	if t.OnLevelChange != nil {
		for _, tf := range tfs {
			t.OnLevelChange(tf, model.ContaminationClean)
		}
	}
}
