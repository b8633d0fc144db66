package api

import (
	"context"

	"github.com/navikt/pokerrooms/internal/models"
)

// RoomDirectory defines the room operations needed by the API handlers
type RoomDirectory interface {
	Create(ctx context.Context, name, createdBy string) (string, *models.Room, error)
	Get(ctx context.Context, id string) (*models.Room, error)
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}
