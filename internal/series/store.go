// Package series owns the immutable base-resolution candle sequence and its
// lookup indexes. The store is built once at load time and is read-only
// thereafter, so no locking is needed anywhere in it.
package series

import (
	"log/slog"
	"sort"

	"chartreplay/internal/model"
)

// Store holds the master series: time-ascending, duplicate-free 1-minute
// candles plus two O(1) indexes (calendar date -> first row, exact
// timestamp -> row).
type Store struct {
	candles   []model.Candle
	dateIndex map[string]int
	timeIndex map[int64]int
	firstDate string
	lastDate  string
}

// Load validates and indexes a time-sorted, duplicate-free candle sequence.
// Corrupted OHLC values are repaired in place from neighboring candles before
// indexing (see repair.go); the repair never surfaces to the caller.
func Load(candles []model.Candle) (*Store, error) {
	if len(candles) == 0 {
		return nil, model.ErrEmptySeries
	}

	repaired := repairSeries(candles)

	s := &Store{
		candles:   repaired,
		dateIndex: make(map[string]int, len(repaired)/1440+1),
		timeIndex: make(map[int64]int, len(repaired)),
	}
	for i := range s.candles {
		c := &s.candles[i]
		s.timeIndex[c.Timestamp] = i
		d := c.Date()
		if _, seen := s.dateIndex[d]; !seen {
			s.dateIndex[d] = i
		}
	}
	s.firstDate = s.candles[0].Date()
	s.lastDate = s.candles[len(s.candles)-1].Date()

	slog.Info("master series loaded",
		slog.Int("candles", len(s.candles)),
		slog.String("first", s.firstDate),
		slog.String("last", s.lastDate))
	return s, nil
}

// Len returns the number of base candles.
func (s *Store) Len() int { return len(s.candles) }

// At returns the candle at row index i. Panics on out-of-range, like a slice.
func (s *Store) At(i int) model.Candle { return s.candles[i] }

// First returns the earliest candle.
func (s *Store) First() model.Candle { return s.candles[0] }

// Last returns the latest candle.
func (s *Store) Last() model.Candle { return s.candles[len(s.candles)-1] }

// IndexForDate resolves a "YYYY-MM-DD" date to a row index, clamping to the
// nearest available data: dates before the series map to row 0, dates after
// it map to the last row. A date inside the range with no exact match (a
// weekend or data gap) resolves to the first row at or after it. The clamp is
// deliberate: a UI recovers better from "closest available" than from a hard
// failure.
func (s *Store) IndexForDate(date string) int {
	if date <= s.firstDate {
		return 0
	}
	if date >= s.lastDate {
		if i, ok := s.dateIndex[date]; ok {
			return i
		}
		return len(s.candles) - 1
	}
	if i, ok := s.dateIndex[date]; ok {
		return i
	}
	// In-range gap: first row whose date is >= the requested one. Dates
	// sort lexicographically in "YYYY-MM-DD" form, so binary search works.
	return sort.Search(len(s.candles), func(i int) bool {
		return s.candles[i].Date() >= date
	})
}

// SliceForward returns up to count candles starting at startIndex. Returns
// fewer if the series ends first; no padding.
func (s *Store) SliceForward(startIndex, count int) []model.Candle {
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(s.candles) || count <= 0 {
		return nil
	}
	end := startIndex + count
	if end > len(s.candles) {
		end = len(s.candles)
	}
	return s.candles[startIndex:end]
}

// IndexAfter returns the row index of the first candle with timestamp
// strictly greater than ts. The exact-timestamp index answers the common case
// in O(1); anything else falls back to binary search.
func (s *Store) IndexAfter(ts int64) (int, bool) {
	if i, ok := s.timeIndex[ts]; ok {
		if i+1 < len(s.candles) {
			return i + 1, true
		}
		return 0, false
	}
	i := sort.Search(len(s.candles), func(i int) bool {
		return s.candles[i].Timestamp > ts
	})
	if i >= len(s.candles) {
		return 0, false
	}
	return i, true
}

// NextAfter returns the first candle with timestamp strictly greater than ts.
func (s *Store) NextAfter(ts int64) (model.Candle, bool) {
	i, ok := s.IndexAfter(ts)
	if !ok {
		return model.Candle{}, false
	}
	return s.candles[i], true
}
