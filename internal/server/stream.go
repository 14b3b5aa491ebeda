package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/tampercheck/internal/viewport"
)

// EventKind names what changed in a session.
type EventKind string

const (
	EventState     EventKind = "state" // initial snapshot sent on connect
	EventImage     EventKind = "image"
	EventTransform EventKind = "transform"
	EventSelection EventKind = "selection"
	EventReset     EventKind = "reset"
	EventCompare   EventKind = "compare"
	EventAlign     EventKind = "align"
)

// SessionEvent is pushed to every stream watching a session.
type SessionEvent struct {
	SessionID  string              `json:"sessionId"`
	Kind       EventKind           `json:"kind"`
	Transform  viewport.Transform  `json:"transform"`
	Opacity    float64             `json:"opacity"`
	Selection  *viewport.Rect      `json:"selection,omitempty"`
	Suggestion *viewport.Transform `json:"suggestion,omitempty"`
	Aligning   bool                `json:"aligning"`
	Result     *ResultSummary      `json:"result,omitempty"`
	Version    uint64              `json:"version"`
	Timestamp  time.Time           `json:"timestamp"`
}

func newEvent(kind EventKind, s Session) SessionEvent {
	return SessionEvent{
		SessionID:  s.ID,
		Kind:       kind,
		Transform:  s.Transform,
		Opacity:    s.Opacity,
		Selection:  s.Selection,
		Suggestion: s.Suggestion,
		Aligning:   s.Aligning,
		Result:     s.LastResult,
		Version:    s.Version,
		Timestamp:  time.Now(),
	}
}

// EventBroadcaster manages SSE connections per session
type EventBroadcaster struct {
	mu        sync.RWMutex
	clients   map[string]map[chan SessionEvent]bool // sessionID -> set of client channels
	lastEvent map[string]SessionEvent               // sessionID -> last event for new clients
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan SessionEvent]bool),
		lastEvent: make(map[string]SessionEvent),
	}
}

// Subscribe adds a client to receive events for a session
func (eb *EventBroadcaster) Subscribe(sessionID string) chan SessionEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan SessionEvent, 10) // Buffered to prevent blocking

	if eb.clients[sessionID] == nil {
		eb.clients[sessionID] = make(map[chan SessionEvent]bool)
	}
	eb.clients[sessionID][ch] = true

	// Send last event if available (for reconnecting clients)
	if lastEvent, ok := eb.lastEvent[sessionID]; ok {
		select {
		case ch <- lastEvent:
		default:
		}
	}

	slog.Debug("SSE client subscribed", "session_id", sessionID, "total_clients", len(eb.clients[sessionID]))
	return ch
}

// Unsubscribe removes a client from receiving events. It is a no-op when the
// session was already cleaned up.
func (eb *EventBroadcaster) Unsubscribe(sessionID string, ch chan SessionEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[sessionID]; ok {
		if clients[ch] {
			delete(clients, ch)
			close(ch)
		}
		if len(clients) == 0 {
			delete(eb.clients, sessionID)
		}
	}

	slog.Debug("SSE client unsubscribed", "session_id", sessionID)
}

// Broadcast sends an event to all subscribed clients for a session. Events
// older than the last one broadcast for the session are dropped.
func (eb *EventBroadcaster) Broadcast(event SessionEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if last, ok := eb.lastEvent[event.SessionID]; ok && event.Version < last.Version {
		slog.Debug("Dropping stale event", "session_id", event.SessionID, "version", event.Version, "last_version", last.Version)
		return
	}
	eb.lastEvent[event.SessionID] = event

	clients := eb.clients[event.SessionID]
	if len(clients) == 0 {
		return
	}

	slog.Debug("Broadcasting event", "session_id", event.SessionID, "kind", event.Kind, "clients", len(clients))

	for ch := range clients {
		select {
		case ch <- event:
		default:
			// Channel full, skip this client (prevents blocking)
			slog.Warn("SSE channel full, skipping event", "session_id", event.SessionID)
		}
	}
}

// CleanupSession removes all clients and cached events for a session
func (eb *EventBroadcaster) CleanupSession(sessionID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[sessionID]; ok {
		for ch := range clients {
			close(ch)
		}
		delete(eb.clients, sessionID)
	}

	delete(eb.lastEvent, sessionID)
	slog.Debug("Cleaned up SSE resources", "session_id", sessionID)
}

// handleSessionEvents handles SSE connections for session updates
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, exists := s.sessions.GetSession(sessionID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan := s.sessions.broadcaster.Subscribe(sessionID)
	defer s.sessions.broadcaster.Unsubscribe(sessionID, eventChan)

	if err := writeSSEEvent(w, newEvent(EventState, session)); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()
	seen := session.Version

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "session_id", sessionID)
			return

		case event, ok := <-eventChan:
			if !ok {
				// Session deleted
				return
			}
			if event.Version < seen {
				// Replay older than the initial state
				continue
			}
			seen = event.Version
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// SSE format: "data: {json}\n\n"
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
