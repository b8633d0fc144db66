// Package memory provides an in-memory implementation of the repository interface
package memory

import (
	"context"
	"sync"

	"github.com/navikt/pokerrooms/internal/models"
	"github.com/navikt/pokerrooms/internal/repository/store"
)

// entry guards one room. Lock order is entry.mu before Repository.mu; the
// repository lock is never held while waiting on an entry.
type entry struct {
	mu   sync.Mutex
	room *models.Room
	gone bool
}

// Repository implements the repository interface with in-memory storage
type Repository struct {
	rooms map[string]*entry
	mu    sync.RWMutex
}

// NewRepository creates a new in-memory repository
func NewRepository() *Repository {
	return &Repository{
		rooms: make(map[string]*entry),
	}
}

func (r *Repository) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

// CreateRoom stores a copy of the room
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[room.ID]; exists {
		return store.ErrExists
	}
	r.rooms[room.ID] = &entry{room: room.Clone()}
	return nil
}

// GetRoom retrieves a room by ID
func (r *Repository) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	e := r.lookup(id)
	if e == nil {
		return nil, store.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return nil, store.ErrNotFound
	}
	return e.room.Clone(), nil
}

// ListRooms returns a copy of every room
func (r *Repository) ListRooms(ctx context.Context) ([]*models.Room, error) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	rooms := make([]*models.Room, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.gone {
			rooms = append(rooms, e.room.Clone())
		}
		e.mu.Unlock()
	}
	return rooms, nil
}

// DeleteRoom removes a room by ID
func (r *Repository) DeleteRoom(ctx context.Context, id string) error {
	e := r.lookup(id)
	if e == nil {
		return store.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return store.ErrNotFound
	}
	r.remove(id, e)
	return nil
}

// UpdateRoom runs fn on a copy of the room while holding the room's lock, then
// commits, deletes or discards the copy depending on the outcome
func (r *Repository) UpdateRoom(ctx context.Context, id string, fn store.MutateFunc) (*models.Room, error) {
	e := r.lookup(id)
	if e == nil {
		return nil, store.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return nil, store.ErrNotFound
	}

	working := e.room.Clone()
	action, err := fn(working)
	if err != nil {
		return nil, err
	}

	switch action {
	case store.Save:
		e.room = working
	case store.Delete:
		r.remove(id, e)
	}

	return working.Clone(), nil
}

// remove must be called with e.mu held
func (r *Repository) remove(id string, e *entry) {
	e.gone = true

	r.mu.Lock()
	if r.rooms[id] == e {
		delete(r.rooms, id)
	}
	r.mu.Unlock()
}
