package service

import (
	"encoding/json"
	"sync"

	"github.com/navikt/pokerrooms/internal/models"
)

// OrderedNotifier forwards events to next, dropping any room update whose
// version is not newer than one already delivered for that room. Transitions
// commit in order, but their broadcasts are sent after the room is released
// and can overtake each other, locally and through the Redis relay alike.
type OrderedNotifier struct {
	next Notifier

	mu   sync.Mutex
	last map[string]int64
}

// NewOrderedNotifier wraps next
func NewOrderedNotifier(next Notifier) *OrderedNotifier {
	return &OrderedNotifier{
		next: next,
		last: make(map[string]int64),
	}
}

// Broadcast implements Notifier
func (o *OrderedNotifier) Broadcast(roomID, event string, payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if event == EventRoomUpdate {
		if version, ok := snapshotVersion(payload); ok {
			if last, seen := o.last[roomID]; seen && version <= last {
				return
			}
			o.last[roomID] = version
		}
	}
	o.next.Broadcast(roomID, event, payload)
}

// Close implements Notifier
func (o *OrderedNotifier) Close(roomID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.last, roomID)
	o.next.Close(roomID)
}

// snapshotVersion reads the version of a room update, either a local snapshot
// or the raw JSON handed over by the relay
func snapshotVersion(payload any) (int64, bool) {
	switch p := payload.(type) {
	case models.Snapshot:
		return p.Version, true
	case *models.Snapshot:
		return p.Version, true
	case json.RawMessage:
		var v struct {
			Version *int64 `json:"version"`
		}
		if err := json.Unmarshal(p, &v); err != nil || v.Version == nil {
			return 0, false
		}
		return *v.Version, true
	}
	return 0, false
}
