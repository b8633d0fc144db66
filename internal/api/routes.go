package api

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// Routes holds everything the HTTP surface is built from
type Routes struct {
	Rooms RoomDirectory
	// Store is pinged by the readiness probe; nil when there is nothing to ping
	Store Pinger
	// WebSocket serves the realtime room protocol
	WebSocket http.Handler
	// Events serves the per-room event streams
	Events http.Handler
	Log    *logrus.Entry
}

// SetupRoutes configures the HTTP routes for the API
func SetupRoutes(routes Routes) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoints for Kubernetes
	mux.HandleFunc("/health/live", HealthLiveHandler)
	mux.HandleFunc("/health/ready", HealthReadyHandler(routes.Store))
	mux.HandleFunc("/api/health", HealthHandler)

	roomHandler := NewRoomHandler(routes.Rooms, routes.Log)
	mux.Handle("/api/rooms", roomHandler)
	mux.Handle("/api/rooms/", roomHandler)

	if routes.WebSocket != nil {
		mux.Handle("/ws", routes.WebSocket)
	}
	if routes.Events != nil {
		mux.Handle("/events/", routes.Events)
	}

	return mux
}
