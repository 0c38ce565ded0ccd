package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"chartreplay/internal/bus"
	"chartreplay/internal/cache"
	"chartreplay/internal/contamination"
	"chartreplay/internal/lifecycle"
	"chartreplay/internal/model"
	"chartreplay/internal/replay"
	"chartreplay/internal/series"
)

const baseTS int64 = 1704067200 // 2024-01-01 00:00:00 UTC

func makeStore(t *testing.T, n int) *series.Store {
	t.Helper()
	candles := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = model.Candle{
			Timestamp: baseTS + int64(i)*60,
			Open:      100 + float64(i),
			High:      110 + float64(i),
			Low:       90 + float64(i),
			Close:     105 + float64(i),
			Volume:    10,
		}
	}
	s, err := series.Load(candles)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newEngine(t *testing.T, n int, events *bus.FanOut) *Engine {
	t.Helper()
	store := makeStore(t, n)
	wc := cache.New(store, 32)
	clock := replay.NewClock()
	tracker := contamination.NewTracker()
	tfs := []model.Timeframe{model.TF1m, model.TF5m, model.TF15m}
	coord := replay.NewCoordinator(store, clock, tracker, tfs, nil)
	machine := lifecycle.NewMachine()
	return New(store, wc, clock, coord, tracker, machine, events, 50, nil)
}

func TestGetWindow_UnknownTimeframe(t *testing.T) {
	e := newEngine(t, 120, nil)
	if _, _, err := e.GetWindow("7m", "2024-01-01", 10); !errors.Is(err, model.ErrUnknownTimeframe) {
		t.Fatalf("expected ErrUnknownTimeframe, got %v", err)
	}
}

func TestStep_ThenWindowCarriesSkipState(t *testing.T) {
	e := newEngine(t, 240, nil)

	res, err := e.Step(model.TF5m)
	if err != nil {
		t.Fatal(err)
	}
	if res.Candle.Timestamp != baseTS {
		t.Fatalf("first step should produce the opening bucket, got %d", res.Candle.Timestamp)
	}
	if lvl := e.ContaminationLevel(model.TF5m); lvl != model.ContaminationLight {
		t.Fatalf("one skip should grade LIGHT, got %s", lvl)
	}
	if e.lifecycle.State() != lifecycle.StateSkipModified {
		t.Fatalf("step must mark the lifecycle machine, got %s", e.lifecycle.State())
	}

	// Window reads keep working while the timeframe is contaminated; the
	// merged view stays time-ascending and bounded by count.
	w, _, err := e.GetWindow(model.TF5m, "2024-01-01", 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Candles) == 0 || len(w.Candles) > 20 {
		t.Fatalf("merged window has %d candles", len(w.Candles))
	}
	for i := 1; i < len(w.Candles); i++ {
		if w.Candles[i].Timestamp <= w.Candles[i-1].Timestamp {
			t.Fatalf("merged window out of order at %d", i)
		}
	}
}

// A contaminated timeframe must not bleed one anchor's candles into a window
// requested for another anchor.
func TestGetWindow_ContaminationStaysWithItsAnchor(t *testing.T) {
	e := newEngine(t, 4*1440, nil)

	if _, err := e.JumpTo("2024-01-01"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Step(model.TF5m); err != nil {
		t.Fatal(err)
	}

	w1, _, err := e.GetWindow(model.TF5m, "2024-01-01", 50)
	if err != nil {
		t.Fatal(err)
	}
	if w1.Candles[0].Timestamp != baseTS {
		t.Fatalf("day-1 window starts at %d, want %d", w1.Candles[0].Timestamp, baseTS)
	}

	w3, _, err := e.GetWindow(model.TF5m, "2024-01-03", 50)
	if err != nil {
		t.Fatal(err)
	}
	dayThree := baseTS + 2*86400
	if w3.AnchorDate != "2024-01-03" {
		t.Fatalf("window labeled %q", w3.AnchorDate)
	}
	if len(w3.Candles) != 50 {
		t.Fatalf("expected 50 candles, got %d", len(w3.Candles))
	}
	if w3.Candles[0].Timestamp != dayThree {
		t.Fatalf("day-3 window starts at %d, want %d", w3.Candles[0].Timestamp, dayThree)
	}
	for i, c := range w3.Candles {
		if c.Timestamp < dayThree {
			t.Fatalf("candle %d predates the anchor: %d", i, c.Timestamp)
		}
	}
}

func TestStep_RollbackOnExhaustion(t *testing.T) {
	e := newEngine(t, 10, nil)

	for i := 0; i < 2; i++ {
		if _, err := e.Step(model.TF5m); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	before := e.clock.Now()

	_, err := e.Step(model.TF5m)
	if !errors.Is(err, model.ErrSeriesExhausted) {
		t.Fatalf("expected ErrSeriesExhausted, got %v", err)
	}
	if e.clock.Now() != before {
		t.Fatalf("failed step moved the clock from %d to %d", before, e.clock.Now())
	}

	// The engine is still serviceable after the rollback.
	if _, _, err := e.GetWindow(model.TF5m, "2024-01-01", 2); err != nil {
		t.Fatalf("window read after failed step: %v", err)
	}
}

func TestJumpTo_ResetsSession(t *testing.T) {
	e := newEngine(t, 3*1440, nil)

	if _, err := e.Step(model.TF5m); err != nil {
		t.Fatal(err)
	}

	anchor, err := e.JumpTo("2024-01-02")
	if err != nil {
		t.Fatal(err)
	}
	if anchor.Timestamp != baseTS+86400 {
		t.Fatalf("jump anchored at %d, want %d", anchor.Timestamp, baseTS+86400)
	}
	if lvl := e.ContaminationLevel(model.TF5m); lvl != model.ContaminationClean {
		t.Fatalf("jump must clear contamination, got %s", lvl)
	}
	if e.lifecycle.State() != lifecycle.StateClean {
		t.Fatalf("jump must reset the lifecycle machine, got %s", e.lifecycle.State())
	}

	// The first step after the jump consumes the bucket at the anchor.
	res, err := e.Step(model.TF5m)
	if err != nil {
		t.Fatal(err)
	}
	if res.Candle.Timestamp != anchor.Timestamp {
		t.Fatalf("post-jump step at %d, want %d", res.Candle.Timestamp, anchor.Timestamp)
	}
}

func TestSwitchTimeframe_CleanIsIncremental(t *testing.T) {
	e := newEngine(t, 240, nil)

	res, err := e.SwitchTimeframe(model.TF5m, model.TF15m)
	if err != nil {
		t.Fatal(err)
	}
	if res.Plan.NeedsRecreation {
		t.Error("clean switch must not demand recreation")
	}
	if res.RecreationToken != 0 {
		t.Errorf("clean switch issued token %d", res.RecreationToken)
	}
	if res.Window == nil || len(res.Window.Candles) == 0 {
		t.Fatal("switch must materialize the destination window")
	}
}

func TestSwitchTimeframe_RecreationAfterSkips(t *testing.T) {
	e := newEngine(t, 3*1440, nil)

	if _, err := e.JumpTo("2024-01-01"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := e.Step(model.TF5m); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	res, err := e.SwitchTimeframe(model.TF5m, model.TF15m)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Plan.NeedsRecreation {
		t.Fatal("skip-modified session must demand recreation")
	}
	if res.RecreationToken == 0 {
		t.Fatal("recreation must carry a token")
	}

	// Both endpoints come out of the switch decontaminated and the machine
	// settles in DATA_LOADED with the counter reset.
	if lvl := e.ContaminationLevel(model.TF5m); lvl != model.ContaminationClean {
		t.Errorf("source timeframe still %s after switch", lvl)
	}
	if lvl := e.ContaminationLevel(model.TF15m); lvl != model.ContaminationClean {
		t.Errorf("destination timeframe still %s after switch", lvl)
	}
	if e.lifecycle.State() != lifecycle.StateDataLoaded || e.lifecycle.SkipCount() != 0 {
		t.Errorf("machine at %s/%d after successful switch", e.lifecycle.State(), e.lifecycle.SkipCount())
	}

	// A second switch right after is incremental again, with a strictly
	// newer token if one were ever issued.
	res2, err := e.SwitchTimeframe(model.TF15m, model.TF5m)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Plan.NeedsRecreation {
		t.Error("post-recreation switch must be incremental")
	}
}

// Identical operation sequences on identical data must produce identical
// candle streams and windows.
func TestReplayDeterminism(t *testing.T) {
	run := func() ([]model.Candle, []byte) {
		e := newEngine(t, 2*1440, nil)
		if _, err := e.JumpTo("2024-01-01"); err != nil {
			t.Fatal(err)
		}
		var candles []model.Candle
		for i := 0; i < 5; i++ {
			res, err := e.Step(model.TF5m)
			if err != nil {
				t.Fatal(err)
			}
			candles = append(candles, res.Candle)
		}
		w, _, err := e.GetWindow(model.TF15m, "2024-01-01", 30)
		if err != nil {
			t.Fatal(err)
		}
		raw, err := json.Marshal(w)
		if err != nil {
			t.Fatal(err)
		}
		return candles, raw
	}

	c1, w1 := run()
	c2, w2 := run()

	if len(c1) != len(c2) {
		t.Fatalf("runs produced %d vs %d candles", len(c1), len(c2))
	}
	for i := range c1 {
		if c1[i] != c2[i] {
			t.Fatalf("candle %d diverged: %+v vs %+v", i, c1[i], c2[i])
		}
	}
	if string(w1) != string(w2) {
		t.Fatalf("window views diverged:\n%s\n%s", w1, w2)
	}
}

func TestEventsPublished(t *testing.T) {
	events := bus.New(16)
	e := newEngine(t, 3*1440, events)
	sub := events.Subscribe()

	if _, err := e.JumpTo("2024-01-01"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Step(model.TF5m); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SwitchTimeframe(model.TF5m, model.TF15m); err != nil {
		t.Fatal(err)
	}

	wantTypes := []model.EventType{model.EventJump, model.EventStep, model.EventTransition}
	var prevSeq int64
	for i, want := range wantTypes {
		ev := <-sub
		if ev.Type != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, ev.Type)
		}
		if ev.Seq <= prevSeq {
			t.Fatalf("event %d: sequence %d not increasing past %d", i, ev.Seq, prevSeq)
		}
		prevSeq = ev.Seq
	}
}

func TestJumpEventCarriesSourceTimeframe(t *testing.T) {
	events := bus.New(16)
	e := newEngine(t, 3*1440, events)
	sub := events.Subscribe()

	if _, err := e.Step(model.TF5m); err != nil {
		t.Fatal(err)
	}
	if _, err := e.JumpTo("2024-01-02"); err != nil {
		t.Fatal(err)
	}

	stepEv := <-sub
	if stepEv.Type != model.EventStep {
		t.Fatalf("expected step event first, got %s", stepEv.Type)
	}
	jumpEv := <-sub
	if jumpEv.Type != model.EventJump {
		t.Fatalf("expected jump event, got %s", jumpEv.Type)
	}
	if jumpEv.Timeframe != model.TF5m {
		t.Fatalf("jump event should carry the driving timeframe, got %q", jumpEv.Timeframe)
	}
}
