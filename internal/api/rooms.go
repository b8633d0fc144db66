package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/navikt/pokerrooms/internal/models"
	"github.com/navikt/pokerrooms/internal/service"
	"github.com/navikt/pokerrooms/internal/utils"
	"github.com/sirupsen/logrus"
)

const minRoomIDLength = 6

// ErrorResponse is the body of every API error
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateRoomRequest is the body of POST /api/rooms
type CreateRoomRequest struct {
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy"`
}

// CreateRoomResponse is returned when a room is created
type CreateRoomResponse struct {
	RoomID string          `json:"roomId"`
	Room   models.Snapshot `json:"room"`
}

// RoomHandler handles HTTP requests for room management
type RoomHandler struct {
	rooms RoomDirectory
	log   *logrus.Entry
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms RoomDirectory, log *logrus.Entry) *RoomHandler {
	return &RoomHandler{
		rooms: rooms,
		log:   log,
	}
}

// ServeHTTP handles HTTP requests for room management
func (h *RoomHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Path format: /api/rooms/{roomID}
	pathParts := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")
	var roomID string
	if len(pathParts) == 4 {
		roomID = pathParts[3]
	}

	switch {
	case r.Method == http.MethodPost && len(pathParts) == 3:
		h.createRoom(w, r)
	case r.Method == http.MethodGet && len(pathParts) == 4:
		h.getRoom(w, r, roomID)
	default:
		http.NotFound(w, r)
	}
}

// createRoom handles POST /api/rooms
func (h *RoomHandler) createRoom(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if req.CreatedBy == "" {
		h.log.Debug("Create room rejected: createdBy missing")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "createdBy is required"})
		return
	}

	id, room, err := h.rooms.Create(r.Context(), req.Name, req.CreatedBy)
	if err != nil {
		h.log.WithError(err).WithField("created_by", utils.SanitizeLogString(req.CreatedBy)).Error("Failed to create room")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to create room"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateRoomResponse{RoomID: id, Room: room.Snapshot()})
}

// getRoom handles GET /api/rooms/{roomID}
func (h *RoomHandler) getRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	if len(roomID) < minRoomIDLength {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid room ID"})
		return
	}

	room, err := h.rooms.Get(r.Context(), roomID)
	if errors.Is(err, service.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Room not found"})
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("room_id", utils.SanitizeLogString(roomID)).Error("Failed to retrieve room")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to retrieve room"})
		return
	}

	writeJSON(w, http.StatusOK, room.Snapshot())
}
