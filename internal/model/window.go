package model

import "encoding/json"

// defaultVisibleCount is the trailing sub-range marked for initial on-screen
// display; everything before it is scroll-back context.
const defaultVisibleCount = 50

// TimeframeWindow is a materialized, aggregated run of candles positioned by
// an anchor date. Immutable once built; a re-fetch replaces the whole window.
type TimeframeWindow struct {
	Timeframe      Timeframe `json:"timeframe"`
	AnchorDate     string    `json:"anchor_date"`
	RequestedCount int       `json:"requested_count"`
	Candles        []Candle  `json:"candles"`
	VisibleStart   int       `json:"visible_start"`
	VisibleEnd     int       `json:"visible_end"`
}

// NewWindow wraps candles into a window, marking the trailing
// min(50, len) candles as the initially visible sub-range.
func NewWindow(tf Timeframe, anchorDate string, requested int, candles []Candle) *TimeframeWindow {
	visible := defaultVisibleCount
	if len(candles) < visible {
		visible = len(candles)
	}
	return &TimeframeWindow{
		Timeframe:      tf,
		AnchorDate:     anchorDate,
		RequestedCount: requested,
		Candles:        candles,
		VisibleStart:   len(candles) - visible,
		VisibleEnd:     len(candles),
	}
}

// WithCandles returns a copy of the window carrying a different candle run.
// Used when a merged (skip-overlaid) view replaces the canonical one.
func (w *TimeframeWindow) WithCandles(candles []Candle) *TimeframeWindow {
	return NewWindow(w.Timeframe, w.AnchorDate, w.RequestedCount, candles)
}

// JSON returns the JSON-encoded window.
func (w *TimeframeWindow) JSON() []byte {
	b, _ := json.Marshal(w)
	return b
}
