package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"ligandscreen/internal"

	"github.com/gin-gonic/gin"
)

// Event types streamed to subscribers of a run
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
)

// keepAliveInterval spaces pings on idle streams
var keepAliveInterval = 30 * time.Second

// completedSendTimeout bounds how long Broadcast waits to queue a completed event
var completedSendTimeout = 5 * time.Second

// SSEClient represents a connected SSE client
type SSEClient struct {
	SessionID string
	Channel   chan ScreeningEvent
}

// ScreeningEvent is one SSE message about a run. SessionID is the run ID.
type ScreeningEvent struct {
	SessionID string                 `json:"session_id"`
	EventType string                 `json:"event_type"`
	Completed int                    `json:"completed"`
	Total     int                    `json:"total"`
	Progress  float64                `json:"progress"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SSEHub manages Server-Sent Events for live screening progress
type SSEHub struct {
	clients    map[string]map[chan ScreeningEvent]bool
	clientsMu  sync.RWMutex
	register   chan SSEClient
	unregister chan SSEClient
	broadcast  chan ScreeningEvent
	done       chan struct{}
	closeOnce  sync.Once
	logger     *internal.Logger
}

// NewSSEHub creates a new SSE hub and starts its dispatch loop
func NewSSEHub() *SSEHub {
	hub := &SSEHub{
		clients:    make(map[string]map[chan ScreeningEvent]bool),
		register:   make(chan SSEClient, 10),
		unregister: make(chan SSEClient, 10),
		broadcast:  make(chan ScreeningEvent, 256),
		done:       make(chan struct{}),
		logger:     internal.DefaultLogger.With("SSE"),
	}

	go hub.run()
	return hub
}

// Close stops the dispatch loop
func (h *SSEHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// run processes SSE hub operations
func (h *SSEHub) run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.SessionID] == nil {
				h.clients[client.SessionID] = make(map[chan ScreeningEvent]bool)
			}
			h.clients[client.SessionID][client.Channel] = true
			h.logger.Debug("client registered for run %s (total clients: %d)",
				client.SessionID, len(h.clients[client.SessionID]))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, exists := h.clients[client.SessionID]; exists {
				delete(clients, client.Channel)
				h.logger.Debug("client unregistered from run %s (remaining clients: %d)",
					client.SessionID, len(clients))
				if len(clients) == 0 {
					delete(h.clients, client.SessionID)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[event.SessionID] {
				if !deliver(clientChan, event) {
					h.logger.Debug("client channel full for run %s, skipping %s event",
						event.SessionID, event.EventType)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// deliver queues event for one client. Progress is dropped when the client is behind;
// a completed event evicts the oldest queued event instead, since it ends the stream.
func deliver(clientChan chan ScreeningEvent, event ScreeningEvent) bool {
	select {
	case clientChan <- event:
		return true
	default:
	}
	if event.EventType != EventCompleted {
		return false
	}
	select {
	case <-clientChan:
	default:
	}
	select {
	case clientChan <- event:
		return true
	default:
		return false
	}
}

// Broadcast sends an event to all clients listening to a run. Progress events never
// block; a completed event waits up to completedSendTimeout for queue space.
func (h *SSEHub) Broadcast(event ScreeningEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
		return
	default:
	}
	if event.EventType == EventCompleted {
		timer := time.NewTimer(completedSendTimeout)
		defer timer.Stop()
		select {
		case h.broadcast <- event:
			return
		case <-h.done:
		case <-timer.C:
		}
	}
	h.logger.Warn("broadcast channel full, dropping %s event for run %s", event.EventType, event.SessionID)
}

// Subscribe registers a channel for a run's events. The returned func unregisters it.
func (h *SSEHub) Subscribe(sessionID string) (<-chan ScreeningEvent, func(), bool) {
	clientChan := make(chan ScreeningEvent, 32)
	client := SSEClient{SessionID: sessionID, Channel: clientChan}
	select {
	case h.register <- client:
	default:
		return nil, nil, false
	}
	return clientChan, func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}, true
}

// HandleSSE streams events for ?session_id=<runID>
func (h *SSEHub) HandleSSE(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id parameter required"})
		return
	}

	events, unsubscribe, ok := h.Subscribe(sessionID)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "SSE hub registration failed"})
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Headers", "Cache-Control")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event: %v", err)
				return true
			}
			c.SSEvent(event.EventType, string(payload))
			// The stream ends once the run is done.
			return event.EventType != EventCompleted

		case <-time.After(keepAliveInterval):
			c.SSEvent("ping", `{"status": "alive", "timestamp": "`+time.Now().Format(time.RFC3339)+`"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}

// GetClientCount returns the number of active clients for a run
func (h *SSEHub) GetClientCount(sessionID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[sessionID])
}
