// Package agg rolls contiguous base-resolution candles up into coarser
// timeframes. Buckets are input-relative: grouping is by elapsed minutes from
// the first candle, not by wall-clock boundaries, so a window anchored at an
// arbitrary date buckets deterministically regardless of calendar alignment.
package agg

import "chartreplay/internal/model"

// baseMinutes is the master series resolution.
const baseMinutes = 1

// Aggregate groups base candles into bucketMinutes-sized bars.
// bucketMinutes = 1 is the identity transform. A trailing bucket that does
// not hold a full bucketMinutes worth of base candles is dropped.
// Pure function, O(n), safe for concurrent use.
func Aggregate(base []model.Candle, bucketMinutes int) []model.Candle {
	if len(base) == 0 || bucketMinutes <= 0 {
		return nil
	}
	if bucketMinutes == baseMinutes {
		return base
	}

	first := base[0].Timestamp
	out := make([]model.Candle, 0, len(base)/bucketMinutes+1)
	lastBucket := int64(-1)
	lastCount := 0

	for i := range base {
		c := &base[i]
		bucket := (c.Timestamp - first) / 60 / int64(bucketMinutes)

		if bucket != lastBucket {
			out = append(out, *c)
			lastBucket = bucket
			lastCount = 1
			continue
		}

		merged := &out[len(out)-1]
		if c.High > merged.High {
			merged.High = c.High
		}
		if c.Low < merged.Low {
			merged.Low = c.Low
		}
		merged.Close = c.Close
		merged.Volume += c.Volume
		lastCount++
	}

	// Incomplete-bucket policy: the trailing bucket only survives when it
	// absorbed a full bucket's worth of base candles.
	if lastCount < bucketMinutes {
		out = out[:len(out)-1]
	}
	return out
}

// Rollup merges an entire slice into a single candle using the same merge
// rule as Aggregate. Used by the replay path to synthesize one timeframe
// candle from its base rows. Returns false on empty input.
func Rollup(candles []model.Candle) (model.Candle, bool) {
	if len(candles) == 0 {
		return model.Candle{}, false
	}
	merged := candles[0]
	for i := 1; i < len(candles); i++ {
		c := &candles[i]
		if c.High > merged.High {
			merged.High = c.High
		}
		if c.Low < merged.Low {
			merged.Low = c.Low
		}
		merged.Close = c.Close
		merged.Volume += c.Volume
	}
	return merged, true
}
