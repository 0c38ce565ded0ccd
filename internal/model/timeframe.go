package model

import (
	"fmt"
	"time"
)

// Timeframe is a named candle duration derived from the 1-minute base
// resolution, e.g. "5m" or "1h".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// timeframeMinutes is the closed vocabulary of supported timeframes.
// Anything outside it is rejected with ErrUnknownTimeframe, no fallback.
var timeframeMinutes = map[Timeframe]int{
	TF1m:  1,
	TF3m:  3,
	TF5m:  5,
	TF15m: 15,
	TF30m: 30,
	TF1h:  60,
	TF4h:  240,
	TF1d:  1440,
}

// ParseTimeframe validates s against the supported vocabulary.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeMinutes[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// Minutes returns the timeframe's duration in minutes,
// or ErrUnknownTimeframe for anything outside the vocabulary.
func (tf Timeframe) Minutes() (int, error) {
	m, ok := timeframeMinutes[tf]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, string(tf))
	}
	return m, nil
}

// Duration returns the timeframe's duration, 0 for unknown timeframes.
func (tf Timeframe) Duration() time.Duration {
	m := timeframeMinutes[tf]
	return time.Duration(m) * time.Minute
}

// Known reports whether tf is part of the supported vocabulary.
func (tf Timeframe) Known() bool {
	_, ok := timeframeMinutes[tf]
	return ok
}
