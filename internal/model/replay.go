package model

// ContaminationLevel grades how far a timeframe's visible data has drifted
// from canonical data due to synthetic step-generated candles. Derived, never
// set directly (CRITICAL excepted: it is an external escalation).
type ContaminationLevel int

const (
	ContaminationClean ContaminationLevel = iota
	ContaminationLight
	ContaminationModerate
	ContaminationHeavy
	ContaminationCritical
)

func (l ContaminationLevel) String() string {
	switch l {
	case ContaminationClean:
		return "CLEAN"
	case ContaminationLight:
		return "LIGHT"
	case ContaminationModerate:
		return "MODERATE"
	case ContaminationHeavy:
		return "HEAVY"
	case ContaminationCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// LevelForSkipCount maps a timeframe's skip-candle count since its last clear
// to a contamination grade. CRITICAL is never produced here; it is reserved
// for external escalation such as a failed recreation.
func LevelForSkipCount(n int) ContaminationLevel {
	switch {
	case n <= 0:
		return ContaminationClean
	case n <= 2:
		return ContaminationLight
	case n <= 5:
		return ContaminationModerate
	default:
		return ContaminationHeavy
	}
}

// SkipCandle is a synthetic candle produced by a replay step, tagged so it can
// be isolated from canonical data until explicitly cleared.
type SkipCandle struct {
	Candle
	Timeframe       Timeframe          `json:"timeframe"`
	OperationID     string             `json:"operation_id"`
	LevelAtCreation ContaminationLevel `json:"level_at_creation"`
}

// TransitionPlan is the one-shot decision produced on a timeframe switch:
// rebuild the client-visible series from scratch, or update it incrementally.
type TransitionPlan struct {
	FromTimeframe   Timeframe `json:"from_timeframe"`
	ToTimeframe     Timeframe `json:"to_timeframe"`
	NeedsRecreation bool      `json:"needs_recreation"`
	Reason          string    `json:"reason"`
}
