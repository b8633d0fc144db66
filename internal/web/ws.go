package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/navikt/pokerrooms/internal/models"
	"github.com/navikt/pokerrooms/internal/service"
	"github.com/navikt/pokerrooms/internal/utils"
	"github.com/sirupsen/logrus"
)

// Inbound event names
const (
	EventJoinRoom      = "join-room"
	EventSubmitVote    = "submit-vote"
	EventRevealVotes   = "reveal-votes"
	EventResetVoting   = "reset-voting"
	EventLeaveRoom     = "leave-room"
	EventAddStory      = "add-story"
	EventStartVoting   = "start-voting"
	EventCompleteStory = "complete-story"
	EventSkipStory     = "skip-story"
	EventDeleteStory   = "delete-story"
)

const actionTimeout = 10 * time.Second

type joinRoomData struct {
	RoomID string             `json:"roomId"`
	User   models.Participant `json:"user"`
}

type submitVoteData struct {
	RoomID string   `json:"roomId"`
	UserID string   `json:"userId"`
	Vote   *float64 `json:"vote"`
}

type roomData struct {
	RoomID string `json:"roomId"`
}

type resetVotingData struct {
	RoomID    string `json:"roomId"`
	NextStory string `json:"nextStory"`
}

type leaveRoomData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type addStoryData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Title  string `json:"title"`
}

type storyData struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	StoryID string `json:"storyId"`
}

// WSHandler serves the realtime room protocol over websockets
type WSHandler struct {
	coord    *service.Coordinator
	hub      *Hub
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewWSHandler creates a websocket handler. Browser connections are only
// accepted from allowedOrigin; an empty or "*" origin accepts any.
func NewWSHandler(coord *service.Coordinator, hub *Hub, allowedOrigin string, log *logrus.Entry) *WSHandler {
	return &WSHandler{
		coord: coord,
		hub:   hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(allowedOrigin, origin)
			},
		},
		log: log,
	}
}

// ServeHTTP upgrades the connection and processes frames until it closes
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := newClient(conn, h.log.WithField("conn_id", uuid.NewString()))
	client.log.WithField("remote_addr", r.RemoteAddr).Debug("WebSocket client connected")

	go client.writePump()
	h.readPump(client)
}

func (h *WSHandler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.close()
		c.log.Debug("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("WebSocket closed unexpectedly")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.emit(service.EventError, service.ErrorPayload{Message: "Invalid message"})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		h.dispatch(ctx, c, msg)
		cancel()
	}
}

func (h *WSHandler) dispatch(ctx context.Context, c *Client, msg Message) {
	var err error
	switch msg.Event {
	case EventJoinRoom:
		err = h.joinRoom(ctx, c, msg.Data)
	case EventSubmitVote:
		err = h.submitVote(ctx, msg.Data)
	case EventRevealVotes:
		var data roomData
		if err = decode(msg.Data, &data); err == nil {
			_, err = h.coord.Reveal(ctx, data.RoomID)
		}
	case EventResetVoting:
		var data resetVotingData
		if err = decode(msg.Data, &data); err == nil {
			_, err = h.coord.Reset(ctx, data.RoomID, data.NextStory)
		}
	case EventLeaveRoom:
		err = h.leaveRoom(ctx, c, msg.Data)
	case EventAddStory:
		var data addStoryData
		if err = decode(msg.Data, &data); err == nil {
			_, err = h.coord.AddStory(ctx, data.RoomID, data.UserID, data.Title)
		}
	case EventStartVoting:
		err = h.storyAction(ctx, msg.Data, h.coord.StartVoting)
	case EventCompleteStory:
		err = h.storyAction(ctx, msg.Data, h.coord.CompleteStory)
	case EventSkipStory:
		err = h.storyAction(ctx, msg.Data, h.coord.SkipStory)
	case EventDeleteStory:
		err = h.storyAction(ctx, msg.Data, h.coord.DeleteStory)
	default:
		c.log.WithField("event", utils.SanitizeLogString(msg.Event)).Debug("Ignoring unknown event")
		err = fmt.Errorf("%w: unknown event", service.ErrInvalid)
	}

	if err != nil {
		c.log.WithError(err).WithField("event", utils.SanitizeLogString(msg.Event)).Debug("Action failed")
		c.emit(service.EventError, service.ErrorPayload{Message: errorMessage(msg.Event, err)})
	}
}

func (h *WSHandler) joinRoom(ctx context.Context, c *Client, raw json.RawMessage) error {
	var data joinRoomData
	if err := decode(raw, &data); err != nil {
		return err
	}

	// Join the group first so the client receives the update its own join
	// triggers. A failed join only undoes membership it added itself.
	added := h.hub.Join(data.RoomID, c)
	if _, err := h.coord.Join(ctx, data.RoomID, data.User); err != nil {
		if added {
			h.hub.Leave(data.RoomID, c)
		}
		return err
	}
	return nil
}

func (h *WSHandler) submitVote(ctx context.Context, raw json.RawMessage) error {
	var data submitVoteData
	if err := decode(raw, &data); err != nil {
		return err
	}
	if data.Vote == nil {
		return fmt.Errorf("%w: vote is required", service.ErrInvalid)
	}
	_, err := h.coord.SubmitVote(ctx, data.RoomID, data.UserID, *data.Vote)
	return err
}

func (h *WSHandler) leaveRoom(ctx context.Context, c *Client, raw json.RawMessage) error {
	var data leaveRoomData
	if err := decode(raw, &data); err != nil {
		return err
	}

	// Out of the group before the update goes out, the leaver does not get it
	h.hub.Leave(data.RoomID, c)
	_, err := h.coord.Leave(ctx, data.RoomID, data.UserID)
	if errors.Is(err, service.ErrNotFound) {
		return nil
	}
	return err
}

type storyFunc func(ctx context.Context, roomID, requester, storyID string) (*models.Room, error)

func (h *WSHandler) storyAction(ctx context.Context, raw json.RawMessage, fn storyFunc) error {
	var data storyData
	if err := decode(raw, &data); err != nil {
		return err
	}
	_, err := fn(ctx, data.RoomID, data.UserID, data.StoryID)
	return err
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", service.ErrInvalid)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalid, err)
	}
	return nil
}

var actionFailures = map[string]string{
	EventJoinRoom:      "Error joining room",
	EventSubmitVote:    "Error submitting vote",
	EventRevealVotes:   "Error revealing votes",
	EventResetVoting:   "Error resetting voting",
	EventLeaveRoom:     "Error leaving room",
	EventAddStory:      "Error adding story",
	EventStartVoting:   "Error starting voting",
	EventCompleteStory: "Error completing story",
	EventSkipStory:     "Error skipping story",
	EventDeleteStory:   "Error deleting story",
}

// errorMessage turns an action error into the message sent back to the requester
func errorMessage(event string, err error) string {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "Room not found"
	case errors.Is(err, service.ErrStoryNotFound):
		return "Story not found"
	case errors.Is(err, service.ErrStoryClosed):
		return "Story is already closed"
	case errors.Is(err, service.ErrNotParticipant):
		return "Join the room before voting"
	case errors.Is(err, service.ErrVotingClosed):
		return "Votes have already been revealed"
	case errors.Is(err, service.ErrInvalid):
		return "Invalid request"
	}
	if msg, ok := actionFailures[event]; ok {
		return msg
	}
	return "Request failed"
}
