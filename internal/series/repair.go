package series

import (
	"log/slog"

	"chartreplay/internal/model"
)

// Price sanity bounds. A value at or above maxSanePrice is almost certainly a
// timestamp that leaked into a price field upstream; at or below zero it is a
// missing value. Either way the candle is repaired from its neighbors rather
// than exposed to a reader.
const maxSanePrice = 1e9

// repairSeries returns a copy of candles with corrupted OHLC values repaired
// in place. Each repair is logged as a repair event referencing
// model.ErrCorruptedValue; nothing is ever propagated to the caller.
func repairSeries(candles []model.Candle) []model.Candle {
	out := make([]model.Candle, len(candles))
	copy(out, candles)

	repairs := 0
	for i := range out {
		c := &out[i]
		ref := repairReference(out, i)

		fixed := false
		for _, f := range []*float64{&c.Open, &c.High, &c.Low, &c.Close} {
			if *f <= 0 || *f >= maxSanePrice {
				*f = ref
				fixed = true
			}
		}
		if c.Volume < 0 {
			c.Volume = 0
			fixed = true
		}

		// Re-establish the OHLC envelope after any field replacement.
		if fixed || !c.Valid() {
			if c.High < c.Open {
				c.High = c.Open
			}
			if c.High < c.Close {
				c.High = c.Close
			}
			if c.Low > c.Open {
				c.Low = c.Open
			}
			if c.Low > c.Close {
				c.Low = c.Close
			}
			repairs++
			slog.Warn("repaired corrupted candle value",
				slog.Int64("timestamp", c.Timestamp),
				slog.String("reason", model.ErrCorruptedValue.Error()))
		}
	}
	if repairs > 0 {
		slog.Info("series repair pass complete", slog.Int("repaired", repairs))
	}
	return out
}

// repairReference picks a sane replacement price for row i: the previous
// candle's close when available, otherwise the next candle's open, otherwise
// any sane field of the row itself.
func repairReference(candles []model.Candle, i int) float64 {
	if i > 0 {
		if v := candles[i-1].Close; v > 0 && v < maxSanePrice {
			return v
		}
	}
	if i+1 < len(candles) {
		if v := candles[i+1].Open; v > 0 && v < maxSanePrice {
			return v
		}
	}
	for _, v := range []float64{candles[i].Close, candles[i].Open, candles[i].High, candles[i].Low} {
		if v > 0 && v < maxSanePrice {
			return v
		}
	}
	return 1
}
