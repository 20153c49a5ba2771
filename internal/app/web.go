package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/hip_feedback/internal/jointangles"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// clientBacklog is how many records may queue for a slow websocket client
// before records are dropped for it.
const clientBacklog = 32

// WSMessage is a command sent by a websocket client.
type WSMessage struct {
	Action string `json:"action"` // recalibrate
}

// WSResponse acknowledges a command.
type WSResponse struct {
	Type    string `json:"type"` // ack, error
	Message string `json:"message,omitempty"`
}

// StatusResponse is served at /api/status.
type StatusResponse struct {
	Leg         string      `json:"leg"`
	State       string      `json:"state"`
	Generation  uint64      `json:"calibration_generation"`
	Calibration *CalSummary `json:"calibration,omitempty"`
}

// CalSummary is the part of a calibration worth showing to an operator.
type CalSummary struct {
	PelvisYaw    float64   `json:"pelvis_yaw"`
	ThighYaw     float64   `json:"thigh_yaw"`
	OffsetAngle  float64   `json:"offset_angle"`
	CalibratedAt time.Time `json:"calibrated_at"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan AngleRecord
}

// Hub fans records out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: map[*wsClient]struct{}{}}
}

// HandleRecord queues r for every client, dropping it for clients that are
// not keeping up.
func (h *Hub) HandleRecord(r AngleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- r:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// NewWebHandler serves the live angle API:
//
//	GET  /api/angle        latest record
//	GET  /api/status       calibration state
//	POST /api/recalibrate  use the next sample as the calibration pose
//	GET  /ws               record stream; accepts {"action":"recalibrate"}
func NewWebHandler(hip *HipApp, hub *Hub) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/angle", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := hip.Latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusOf(hip.Joints()))
	})

	mux.HandleFunc("/api/recalibrate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		hip.RequestRecalibration()
		writeJSON(w, http.StatusAccepted, WSResponse{Type: "ack", Message: "recalibration requested"})
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWS(w, r, hip, hub)
	})

	return mux
}

// ServeWeb listens on addr until ctx is done.
func ServeWeb(ctx context.Context, addr string, hip *HipApp, hub *Hub) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewWebHandler(hip, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveWS(w http.ResponseWriter, r *http.Request, hip *HipApp, hub *Hub) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan AngleRecord, clientBacklog)}
	hub.register(c)

	// Writer: the only goroutine writing to conn.
	acks := make(chan WSResponse, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case rec, ok := <-c.send:
				if !ok {
					return
				}
				if err := conn.WriteJSON(rec); err != nil {
					return
				}
			case ack := <-acks:
				if err := conn.WriteJSON(ack); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: websocket error: %v", err)
			}
			break
		}

		resp := WSResponse{Type: "ack"}
		switch msg.Action {
		case "recalibrate":
			hip.RequestRecalibration()
			resp.Message = "recalibration requested"
		default:
			resp = WSResponse{Type: "error", Message: "unknown action: " + msg.Action}
		}
		select {
		case acks <- resp:
		default:
		}
	}

	hub.unregister(c)
	conn.Close()
	<-done
}

func statusOf(j *jointangles.JointAngles) StatusResponse {
	resp := StatusResponse{Leg: j.Side().String(), State: j.State().String()}
	if cal, err := j.Calibration(); err == nil {
		resp.Generation = cal.Generation
		resp.Calibration = &CalSummary{
			PelvisYaw:    cal.PelvisYaw,
			ThighYaw:     cal.ThighYaw,
			OffsetAngle:  cal.ThighOffsetAngle,
			CalibratedAt: cal.CalibratedAt,
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}
