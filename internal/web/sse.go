package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/navikt/pokerrooms/internal/service"
	"github.com/r3labs/sse/v2"
	"github.com/sirupsen/logrus"
)

// SSEManager streams room events to read-only observers. Each room is its
// own stream, created when the first observer subscribes.
type SSEManager struct {
	server *sse.Server
	rooms  RoomFinder
	log    *logrus.Entry
}

// NewSSEManager creates a new server-sent events manager
func NewSSEManager(rooms RoomFinder, log *logrus.Entry) *SSEManager {
	server := sse.New()
	server.AutoStream = true
	server.AutoReplay = false
	server.Headers = map[string]string{
		"X-Accel-Buffering": "no", // Disable nginx proxy buffering
	}

	return &SSEManager{
		server: server,
		rooms:  rooms,
		log:    log,
	}
}

// ServeHTTP subscribes the caller to /events/{roomId}
func (sm *SSEManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/events/"), "/")
	if roomID == "" || strings.Contains(roomID, "/") {
		http.NotFound(w, r)
		return
	}

	if _, err := sm.rooms.Get(r.Context(), roomID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}
		sm.log.WithError(err).WithField("room_id", roomID).Error("Failed to look up room for stream")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// The sse server picks the stream from the query string
	q := r.URL.Query()
	q.Set("stream", roomID)
	req := r.Clone(r.Context())
	req.URL.RawQuery = q.Encode()

	sm.log.WithFields(logrus.Fields{
		"room_id":     roomID,
		"remote_addr": r.RemoteAddr,
	}).Debug("SSE client connected")
	// The room can be deleted between the lookup and the subscription, and its
	// Close then finds no stream to end. Look again once subscribed.
	sub := &subscribedWriter{
		ResponseWriter: w,
		subscribed:     func() { sm.recheck(r.Context(), roomID) },
	}
	sm.server.ServeHTTP(sub, req)
	sm.log.WithField("room_id", roomID).Debug("SSE client disconnected")
}

func (sm *SSEManager) recheck(ctx context.Context, roomID string) {
	if _, err := sm.rooms.Get(ctx, roomID); errors.Is(err, service.ErrNotFound) {
		sm.log.WithField("room_id", roomID).Debug("Room deleted while subscribing, closing stream")
		sm.Close(roomID)
	}
}

// subscribedWriter calls subscribed on the first flush, which the sse server
// does right after registering the subscriber
type subscribedWriter struct {
	http.ResponseWriter
	once       sync.Once
	subscribed func()
}

func (w *subscribedWriter) Flush() {
	w.once.Do(w.subscribed)
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Broadcast publishes the event to the room's stream
func (sm *SSEManager) Broadcast(roomID, event string, payload any) {
	if !sm.server.StreamExists(roomID) {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		sm.log.WithError(err).WithField("event", event).Error("Failed to encode SSE event")
		return
	}

	sm.server.Publish(roomID, &sse.Event{
		Event: []byte(event),
		Data:  data,
	})
}

// Close ends the room's stream and disconnects its observers
func (sm *SSEManager) Close(roomID string) {
	if sm.server.StreamExists(roomID) {
		sm.server.RemoveStream(roomID)
	}
}

// Shutdown disconnects every observer
func (sm *SSEManager) Shutdown() {
	sm.server.Close()
}
