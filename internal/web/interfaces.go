package web

import (
	"context"

	"github.com/navikt/pokerrooms/internal/models"
)

// RoomFinder looks up rooms for the read-only transports
type RoomFinder interface {
	Get(ctx context.Context, id string) (*models.Room, error)
}
