package series

import (
	"errors"
	"testing"
	"time"

	"chartreplay/internal/model"
)

// dayStart is 2024-01-01 00:00:00 UTC.
const dayStart int64 = 1704067200

func makeSeries(baseTS int64, n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = model.Candle{
			Timestamp: baseTS + int64(i)*60,
			Open:      100 + float64(i),
			High:      110 + float64(i),
			Low:       90 + float64(i),
			Close:     105 + float64(i),
			Volume:    10,
		}
	}
	return out
}

func TestLoad_EmptySeries(t *testing.T) {
	if _, err := Load(nil); !errors.Is(err, model.ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestIndexForDate_ExactAndClamp(t *testing.T) {
	// Three full days of 1m candles.
	s, err := Load(makeSeries(dayStart, 3*1440))
	if err != nil {
		t.Fatal(err)
	}

	if got := s.IndexForDate("2024-01-01"); got != 0 {
		t.Errorf("day 1: expected index 0, got %d", got)
	}
	if got := s.IndexForDate("2024-01-02"); got != 1440 {
		t.Errorf("day 2: expected index 1440, got %d", got)
	}

	// Clamp to start and end.
	if got := s.IndexForDate("2023-12-25"); got != 0 {
		t.Errorf("before range: expected index 0, got %d", got)
	}
	if got := s.IndexForDate("2024-02-01"); got != s.Len()-1 {
		t.Errorf("after range: expected last index, got %d", got)
	}
}

func TestIndexForDate_InRangeGap(t *testing.T) {
	// Day 1 and day 3, with day 2 missing entirely.
	candles := append(makeSeries(dayStart, 1440), makeSeries(dayStart+2*86400, 1440)...)
	s, err := Load(candles)
	if err != nil {
		t.Fatal(err)
	}

	// The missing date resolves to the first row after the gap.
	if got := s.IndexForDate("2024-01-02"); got != 1440 {
		t.Errorf("gap date: expected index 1440, got %d", got)
	}
}

func TestSliceForward(t *testing.T) {
	s, err := Load(makeSeries(dayStart, 100))
	if err != nil {
		t.Fatal(err)
	}

	got := s.SliceForward(10, 20)
	if len(got) != 20 {
		t.Fatalf("expected 20 candles, got %d", len(got))
	}
	if got[0].Timestamp != dayStart+10*60 {
		t.Errorf("expected slice to start at row 10")
	}

	// Series ends first: no padding.
	got = s.SliceForward(90, 20)
	if len(got) != 10 {
		t.Fatalf("expected 10 candles at series end, got %d", len(got))
	}

	if got := s.SliceForward(200, 5); got != nil {
		t.Fatalf("expected nil past end, got %d candles", len(got))
	}
}

func TestNextAfter(t *testing.T) {
	s, err := Load(makeSeries(dayStart, 10))
	if err != nil {
		t.Fatal(err)
	}

	// Exact timestamp: strict >, so the following row comes back.
	c, ok := s.NextAfter(dayStart)
	if !ok || c.Timestamp != dayStart+60 {
		t.Fatalf("expected next candle at +60s, got %+v ok=%v", c, ok)
	}

	// Between rows.
	c, ok = s.NextAfter(dayStart + 90)
	if !ok || c.Timestamp != dayStart+120 {
		t.Fatalf("expected next candle at +120s, got %+v ok=%v", c, ok)
	}

	// Past the end.
	if _, ok := s.NextAfter(dayStart + 9*60); ok {
		t.Fatal("expected no candle after the last row")
	}
}

func TestLoad_RepairsCorruptedValues(t *testing.T) {
	candles := makeSeries(dayStart, 5)
	// A timestamp leaked into the high field, and a non-positive low.
	candles[2].High = float64(time.Now().Unix())
	candles[3].Low = -4

	s, err := Load(candles)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < s.Len(); i++ {
		c := s.At(i)
		if !c.Valid() {
			t.Errorf("candle %d exposed with broken OHLC envelope: %+v", i, c)
		}
		if c.High >= 1e9 || c.Low <= 0 {
			t.Errorf("candle %d still carries a corrupted value: %+v", i, c)
		}
	}

	// The input slice itself must stay untouched: the store owns a copy.
	if candles[2].High < 1e9 {
		t.Error("load mutated the caller's slice")
	}
}
