package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every frame sent to clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// jobHub fans one job's status stream out to its connected clients. The
// subscription starts with the first client and stops with the last.
type jobHub struct {
	conns map[*websocket.Conn]*sync.Mutex
	stop  func()
}

// JobSocketHandler serves per-job WebSocket connections. Each client gets
// connection_established, then the current snapshot when one exists, then
// every subsequent update. Unknown jobs get no snapshot frame.
type JobSocketHandler struct {
	status       interfaces.StatusChannel
	logger       arbor.ILogger
	pingInterval time.Duration
	writeTimeout time.Duration

	mu   sync.Mutex
	hubs map[string]*jobHub
}

func NewJobSocketHandler(status interfaces.StatusChannel, config *common.WebSocketConfig, logger arbor.ILogger) *JobSocketHandler {
	return &JobSocketHandler{
		status:       status,
		logger:       logger,
		pingInterval: common.ParseDuration(config.PingInterval, 30*time.Second),
		writeTimeout: common.ParseDuration(config.WriteTimeout, 10*time.Second),
		hubs:         make(map[string]*jobHub),
	}
}

// HandleJobSocket upgrades the connection and attaches it to the job's hub.
func (h *JobSocketHandler) HandleJobSocket(w http.ResponseWriter, r *http.Request, jobID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	writeMu := &sync.Mutex{}
	if err := h.attach(jobID, conn, writeMu); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to subscribe to job updates")
		conn.Close()
		return
	}
	h.logger.Debug().Str("job_id", jobID).Msg("WebSocket client connected")

	h.send(conn, writeMu, WSMessage{
		Type:    "connection_established",
		Payload: map[string]string{"job_id": jobID},
	})

	// Snapshot before deltas: a client that reads in order never misses
	// state. Unknown jobs simply get no snapshot frame.
	if snapshot, err := h.status.Get(r.Context(), jobID); err == nil && snapshot != nil {
		h.send(conn, writeMu, WSMessage{Type: "status_update", Payload: snapshot})
	}

	done := make(chan struct{})
	go h.keepalive(conn, writeMu, done)

	defer func() {
		close(done)
		h.detach(jobID, conn)
		conn.Close()
		h.logger.Debug().Str("job_id", jobID).Msg("WebSocket client disconnected")
	}()

	conn.SetReadDeadline(time.Now().Add(h.pingInterval * 3))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pingInterval * 3))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("job_id", jobID).Msg("WebSocket error")
			}
			return
		}

		var msg WSMessage
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			h.send(conn, writeMu, WSMessage{Type: "pong"})
		}
	}
}

// attach registers the connection, starting the job's subscription when it
// is the first one.
func (h *JobSocketHandler) attach(jobID string, conn *websocket.Conn, writeMu *sync.Mutex) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	hub := h.hubs[jobID]
	if hub == nil {
		updates, stop, err := h.status.Subscribe(context.Background(), jobID)
		if err != nil {
			return err
		}
		hub = &jobHub{
			conns: make(map[*websocket.Conn]*sync.Mutex),
			stop:  stop,
		}
		h.hubs[jobID] = hub
		go h.pump(jobID, updates)
	}
	hub.conns[conn] = writeMu
	return nil
}

// detach removes the connection and stops the subscription when it was the
// last one.
func (h *JobSocketHandler) detach(jobID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	hub := h.hubs[jobID]
	if hub == nil {
		return
	}
	delete(hub.conns, conn)
	if len(hub.conns) == 0 {
		hub.stop()
		delete(h.hubs, jobID)
	}
}

// pump forwards every published snapshot to the hub's connections until the
// subscription closes.
func (h *JobSocketHandler) pump(jobID string, updates <-chan *models.StatusSnapshot) {
	for snapshot := range updates {
		data, err := json.Marshal(WSMessage{Type: "status_update", Payload: snapshot})
		if err != nil {
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to marshal status update")
			continue
		}

		h.mu.Lock()
		hub := h.hubs[jobID]
		if hub == nil {
			h.mu.Unlock()
			return
		}
		conns := make([]*websocket.Conn, 0, len(hub.conns))
		mutexes := make([]*sync.Mutex, 0, len(hub.conns))
		for conn, mu := range hub.conns {
			conns = append(conns, conn)
			mutexes = append(mutexes, mu)
		}
		h.mu.Unlock()

		for i, conn := range conns {
			mutexes[i].Lock()
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			err := conn.WriteMessage(websocket.TextMessage, data)
			mutexes[i].Unlock()
			if err != nil {
				h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to send status update to client")
			}
		}
	}
}

// keepalive pings the client until the connection's read loop exits.
func (h *JobSocketHandler) keepalive(conn *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *JobSocketHandler) send(conn *websocket.Conn, writeMu *sync.Mutex, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal WebSocket message")
		return
	}
	writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	writeMu.Unlock()
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send WebSocket message")
	}
}
