package service

// Outbound event names. These are part of the client wire contract.
const (
	EventRoomUpdate    = "room-update"
	EventVotesRevealed = "votes-revealed"
	EventError         = "error"
)

// Notifier delivers events to the observers of a room
type Notifier interface {
	// Broadcast sends the event to every current observer of the room
	Broadcast(roomID, event string, payload any)
	// Close releases the room's observer group after the room is deleted
	Close(roomID string)
}

// ErrorPayload is the body of an error event
type ErrorPayload struct {
	Message string `json:"message"`
}

// Fanout delivers every event to each of its notifiers in order
type Fanout []Notifier

// Broadcast implements Notifier
func (f Fanout) Broadcast(roomID, event string, payload any) {
	for _, n := range f {
		n.Broadcast(roomID, event, payload)
	}
}

// Close implements Notifier
func (f Fanout) Close(roomID string) {
	for _, n := range f {
		n.Close(roomID)
	}
}
