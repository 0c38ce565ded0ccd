package gateway

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"chartreplay/internal/engine"
	"chartreplay/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Chart clients are served from arbitrary origins in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server maps HTTP requests onto the engine's request surface.
type Server struct {
	engine *engine.Engine
	hub    *Hub
}

// NewServer wires the HTTP surface over an engine and a hub.
func NewServer(e *engine.Engine, h *Hub) *Server {
	return &Server{engine: e, hub: h}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/window", s.handleWindow)
	mux.HandleFunc("POST /api/step", s.handleStep)
	mux.HandleFunc("POST /api/jump", s.handleJump)
	mux.HandleFunc("POST /api/switch", s.handleSwitch)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tf := model.Timeframe(q.Get("tf"))
	anchor := q.Get("anchor")
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil || count <= 0 {
		count = 200
	}

	window, hit, err := s.engine.GetWindow(tf, anchor, count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"window":    window,
		"cache_hit": hit,
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Timeframe string `json:"timeframe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.engine.Step(model.Timeframe(req.Timeframe))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Date == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	anchor, err := s.engine.JumpTo(req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"anchor": anchor})
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.engine.SwitchTimeframe(model.Timeframe(req.From), model.Timeframe(req.To))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade failed: %v", err)
		return
	}
	c := newClient(s.hub, conn)
	s.hub.register(c)
	go c.writePump()
	go c.readPump()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] response encode failed: %v", err)
	}
}

// writeError maps the typed error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnknownTimeframe):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrSeriesExhausted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrClockNotInitialized):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
