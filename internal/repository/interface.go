// Package repository defines interfaces for room storage
package repository

import (
	"context"

	"github.com/navikt/pokerrooms/internal/models"
	"github.com/navikt/pokerrooms/internal/repository/store"
)

// Repository stores room snapshots. Every read returns a copy; the only way to
// change a stored room is UpdateRoom, which serializes mutations per room.
type Repository interface {
	// CreateRoom stores a new room, failing with store.ErrExists if the ID is taken
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
	DeleteRoom(ctx context.Context, id string) error

	// UpdateRoom applies fn atomically and returns the room as fn left it
	UpdateRoom(ctx context.Context, id string, fn store.MutateFunc) (*models.Room, error)
}
