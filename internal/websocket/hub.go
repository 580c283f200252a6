package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/makeasinger/musicforge/internal/agent"
	"github.com/makeasinger/musicforge/internal/model"
)

// SnapshotSource returns the latest progress of a project's run
type SnapshotSource interface {
	Snapshot(runID string) (agent.Snapshot, bool)
}

// Client represents a WebSocket client
type Client struct {
	ProjectID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by project ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	source SnapshotSource
	logger *zap.Logger
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	ProjectID string
	Message   []byte
}

// NewHub creates a new Hub. source may be nil.
func NewHub(source SnapshotSource, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		source:     source,
		logger:     logger.Named("hub"),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			return

		case client := <-h.register:
			if h.clients[client.ProjectID] == nil {
				h.clients[client.ProjectID] = make(map[*Client]bool)
			}
			h.clients[client.ProjectID][client] = true
			h.logger.Debug("client registered", zap.String("project_id", client.ProjectID))

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug("client unregistered", zap.String("project_id", client.ProjectID))

		case msg := <-h.broadcast:
			for client := range h.clients[msg.ProjectID] {
				select {
				case client.Send <- msg.Message:
				default:
					h.logger.Warn("dropping slow client", zap.String("project_id", msg.ProjectID))
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.ProjectID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.ProjectID)
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastProgress sends a ledger snapshot to all project subscribers
func (h *Hub) BroadcastProgress(projectID, jobID string, snap agent.Snapshot) {
	h.send(projectID, progressMessage(projectID, jobID, snap))
}

// BroadcastComplete sends a completion message to all project subscribers
func (h *Hub) BroadcastComplete(projectID, jobID string, result interface{}) {
	h.send(projectID, model.WSCompleteMessage{
		Type:      model.WSMessageTypeComplete,
		ProjectID: projectID,
		JobID:     jobID,
		Result:    result,
	})
}

// BroadcastError sends an error message to all project subscribers
func (h *Hub) BroadcastError(projectID, jobID, code, message string) {
	h.send(projectID, model.WSErrorMessage{
		Type:      model.WSMessageTypeError,
		ProjectID: projectID,
		JobID:     jobID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Hub) send(projectID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{ProjectID: projectID, Message: data}:
	case <-h.done:
	}
}

func progressMessage(projectID, jobID string, snap agent.Snapshot) model.WSProgressMessage {
	return model.WSProgressMessage{
		Type:      model.WSMessageTypeProgress,
		ProjectID: projectID,
		JobID:     jobID,
		Stage:     string(snap.Stage),
		Component: snap.Component,
		Progress:  snap.Progress,
		Message:   snap.Message,
		Version:   snap.Version,
		UpdatedAt: snap.UpdatedAt,
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, projectID string) {
	client := &Client{
		ProjectID: projectID,
		Conn:      c,
		Send:      make(chan []byte, 256),
	}

	// Late subscribers start from the latest snapshot
	if h.source != nil {
		if snap, ok := h.source.Snapshot(projectID); ok {
			if data, err := json.Marshal(progressMessage(projectID, "", snap)); err == nil {
				client.Send <- data
			}
		}
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", zap.String("project_id", projectID), zap.Error(err))
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- pong:
			default:
			}
		}
	}
}
