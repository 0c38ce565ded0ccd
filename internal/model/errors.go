package model

import "errors"

// Error taxonomy. Clamp policies (date lookup out of range, value repair)
// are handled locally and never surface; only structural misuse reaches
// callers as one of these.
var (
	// ErrEmptySeries means no base data was supplied at load. Fatal at startup.
	ErrEmptySeries = errors.New("master series is empty")

	// ErrUnknownTimeframe rejects a timeframe outside the supported vocabulary.
	ErrUnknownTimeframe = errors.New("unknown timeframe")

	// ErrClockNotInitialized is returned by an explicit advance before the
	// replay clock has been given a starting time.
	ErrClockNotInitialized = errors.New("replay clock not initialized")

	// ErrSeriesExhausted means a step ran past the end of available data.
	// Recoverable: the caller may jump to an earlier date.
	ErrSeriesExhausted = errors.New("master series exhausted")

	// ErrCorruptedValue marks an OHLC value outside sane bounds. Repaired in
	// place from neighboring candles and logged; never propagated to readers.
	ErrCorruptedValue = errors.New("corrupted candle value")
)
