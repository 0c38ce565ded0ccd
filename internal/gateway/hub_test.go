package gateway

import (
	"encoding/json"
	"testing"

	"chartreplay/internal/model"
)

func TestRegister_PrimesInFixedOrder(t *testing.T) {
	h := NewHub()

	// Cache one frame per type in a scrambled arrival order.
	h.broadcast(&model.Event{Seq: 1, Type: model.EventStep})
	h.broadcast(&model.Event{Seq: 2, Type: model.EventWindow})
	h.broadcast(&model.Event{Seq: 3, Type: model.EventTransition})
	h.broadcast(&model.Event{Seq: 4, Type: model.EventJump})

	c := &Client{hub: h, send: make(chan []byte, 8)}
	h.register(c)

	want := []model.EventType{
		model.EventJump,
		model.EventTransition,
		model.EventWindow,
		model.EventStep,
	}
	for i, typ := range want {
		select {
		case data := <-c.send:
			var ev model.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("frame %d: %v", i, err)
			}
			if ev.Type != typ {
				t.Fatalf("frame %d: expected %s, got %s", i, typ, ev.Type)
			}
		default:
			t.Fatalf("frame %d missing", i)
		}
	}
	if n := h.ClientCount(); n != 1 {
		t.Errorf("expected 1 client, got %d", n)
	}
}

func TestRegister_PrimesOnlyCachedTypes(t *testing.T) {
	h := NewHub()
	h.broadcast(&model.Event{Seq: 1, Type: model.EventStep})

	c := &Client{hub: h, send: make(chan []byte, 8)}
	h.register(c)

	if got := len(c.send); got != 1 {
		t.Fatalf("expected exactly 1 primed frame, got %d", got)
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := NewHub()
	c := &Client{hub: h, send: make(chan []byte, 8)}
	h.register(c)
	h.unregister(c)

	if _, open := <-c.send; open {
		t.Fatal("send channel must be closed after unregister")
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("expected 0 clients, got %d", n)
	}

	// Unregistering twice must not panic.
	h.unregister(c)
}
