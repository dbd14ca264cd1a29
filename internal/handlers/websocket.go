package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/common"
	"github.com/ternarybob/eligo/internal/interfaces"
	"github.com/ternarybob/eligo/internal/jobs"
	"github.com/ternarybob/eligo/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every server-to-client frame.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// clientCommand is what the browser UI sends.
type clientCommand struct {
	Action      string   `json:"action"` // "start", "status", "verify_access"
	PostURL     string   `json:"post_url,omitempty"`
	Competitors []string `json:"competitors,omitempty"`
	AccessCode  string   `json:"access_code,omitempty"`
}

// WebSocketHandler streams run progress to connected UIs and accepts run
// commands from them.
type WebSocketHandler struct {
	config           *common.Config
	scheduler        *jobs.Scheduler
	eventService     interfaces.EventService
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(config *common.Config, scheduler *jobs.Scheduler, eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		config:           config,
		scheduler:        scheduler,
		eventService:     eventService,
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	if eventService != nil {
		h.subscribeToJobEvents()
	}

	return h
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendStatus(conn)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.sendTo(conn, WSMessage{Type: "error", Payload: "invalid message"})
			continue
		}

		h.handleCommand(conn, &cmd)
	}
}

// handleCommand dispatches one client command. Run starts are executed in a
// goroutine so the read loop stays responsive; progress reaches the client
// through the event subscriptions.
func (h *WebSocketHandler) handleCommand(conn *websocket.Conn, cmd *clientCommand) {
	switch cmd.Action {
	case "start":
		req := &models.RunRequest{
			PostURL:     cmd.PostURL,
			Competitors: cmd.Competitors,
			AccessCode:  cmd.AccessCode,
		}
		go h.scheduler.Submit(context.Background(), req)

	case "status":
		h.sendStatus(conn)

	case "verify_access":
		granted := h.config.Access.Code == "" || cmd.AccessCode == h.config.Access.Code
		h.sendTo(conn, WSMessage{Type: "access", Payload: map[string]bool{"granted": granted}})

	default:
		h.sendTo(conn, WSMessage{Type: "error", Payload: "unknown action"})
	}
}

// sendStatus sends the scheduler snapshot to a single client.
func (h *WebSocketHandler) sendStatus(conn *websocket.Conn) {
	stats := h.scheduler.Snapshot()
	h.sendTo(conn, WSMessage{
		Type: "status",
		Payload: map[string]interface{}{
			"service":            "ONLINE",
			"scheduler":          stats,
			"access_required":    h.config.Access.Code != "",
			"server_instance_id": h.serverInstanceID,
		},
	})
}

func (h *WebSocketHandler) sendTo(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send message to client")
	}
}

// Broadcast sends a message to all connected clients.
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send broadcast to client")
		}
	}
}

// subscribeToJobEvents relays run progress and terminal results to clients.
func (h *WebSocketHandler) subscribeToJobEvents() {
	h.eventService.Subscribe(interfaces.EventJobLog, func(ctx context.Context, event interfaces.Event) error {
		if logEvent, ok := event.Payload.(*models.JobLogEvent); ok {
			h.Broadcast(WSMessage{Type: "log", Payload: logEvent})
		}
		return nil
	})

	relayResult := func(ctx context.Context, event interfaces.Event) error {
		if resultEvent, ok := event.Payload.(*models.JobResultEvent); ok {
			h.Broadcast(WSMessage{Type: "result", Payload: resultEvent})
		}
		return nil
	}
	h.eventService.Subscribe(interfaces.EventJobStarted, func(ctx context.Context, event interfaces.Event) error {
		if resultEvent, ok := event.Payload.(*models.JobResultEvent); ok {
			h.Broadcast(WSMessage{Type: "job_started", Payload: resultEvent})
		}
		return nil
	})
	h.eventService.Subscribe(interfaces.EventJobCompleted, relayResult)
	h.eventService.Subscribe(interfaces.EventJobFailed, relayResult)
	h.eventService.Subscribe(interfaces.EventJobRejected, relayResult)
}

// StartStatusBroadcaster starts periodic status updates
func (h *WebSocketHandler) StartStatusBroadcaster() {
	ticker := time.NewTicker(5 * time.Second)

	go func() {
		for range ticker.C {
			h.mu.RLock()
			clientCount := len(h.clients)
			h.mu.RUnlock()

			if clientCount > 0 {
				stats := h.scheduler.Snapshot()
				h.Broadcast(WSMessage{
					Type: "status",
					Payload: map[string]interface{}{
						"service":            "ONLINE",
						"scheduler":          stats,
						"access_required":    h.config.Access.Code != "",
						"server_instance_id": h.serverInstanceID,
					},
				})
			}
		}
	}()
}
