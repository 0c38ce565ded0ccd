package model

import (
	"encoding/json"
	"time"
)

// Candle is a single OHLC bar at some resolution.
// Timestamp is Unix seconds (UTC, bucket start). Candles are value types:
// once built they are never mutated, only replaced.
type Candle struct {
	Timestamp int64   `json:"timestamp"` // bucket start, Unix seconds UTC
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

// Time returns the candle's timestamp as a time.Time in UTC.
func (c *Candle) Time() time.Time {
	return time.Unix(c.Timestamp, 0).UTC()
}

// Date returns the candle's calendar date as "YYYY-MM-DD" (UTC).
func (c *Candle) Date() string {
	return c.Time().Format("2006-01-02")
}

// Valid reports whether the OHLC envelope holds: high dominates open/close,
// low bounds them from below, volume is non-negative.
func (c *Candle) Valid() bool {
	if c.High < c.Open || c.High < c.Close {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close {
		return false
	}
	return c.Volume >= 0
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
