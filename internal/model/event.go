package model

import (
	"encoding/json"
	"time"
)

// EventType labels the mutation that produced an Event.
type EventType string

const (
	EventWindow     EventType = "window"
	EventStep       EventType = "step"
	EventJump       EventType = "jump"
	EventTransition EventType = "transition"
)

// Event is the record broadcast to observers after any successful mutation.
// Delivery is best-effort fan-out; a failed delivery never rolls back state.
type Event struct {
	Seq       int64     `json:"seq"`
	Type      EventType `json:"type"`
	Timeframe Timeframe `json:"timeframe"`
	TS        time.Time `json:"ts"`

	// Payload: one of the following, depending on Type.
	Window          *TimeframeWindow `json:"window,omitempty"`
	Candle          *Candle          `json:"candle,omitempty"`
	Plan            *TransitionPlan  `json:"plan,omitempty"`
	RecreationToken int64            `json:"recreation_token,omitempty"`
}

// JSON returns the JSON-encoded event.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
