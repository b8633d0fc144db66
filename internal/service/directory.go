// Package service implements room lifetime, the action coordinator and the
// stale room reaper on top of a repository
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/pokerrooms/internal/models"
	"github.com/navikt/pokerrooms/internal/repository"
	"github.com/navikt/pokerrooms/internal/repository/store"
	"github.com/navikt/pokerrooms/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	shortIDLength   = 6
	shortIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	createAttempts  = 3
)

// IDGenerator produces room IDs
type IDGenerator func() (string, error)

// ShortID draws six independent random characters from [A-Z0-9]
func ShortID() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(shortIDAlphabet)))
	for i := 0; i < shortIDLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		b.WriteByte(shortIDAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// UUID generates room IDs for stores shared between processes
func UUID() (string, error) {
	return uuid.NewString(), nil
}

// Transition mutates a room as part of one action
type Transition func(room *models.Room) error

// Directory creates, finds and deletes rooms, and owns the rule that a room
// is deleted when its last participant leaves
type Directory struct {
	repo  repository.Repository
	newID IDGenerator
	now   func() time.Time
	log   *logrus.Entry
}

// DirectoryOption configures a Directory
type DirectoryOption func(*Directory)

// WithIDGenerator overrides how room IDs are generated
func WithIDGenerator(gen IDGenerator) DirectoryOption {
	return func(d *Directory) { d.newID = gen }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) { d.now = now }
}

// WithLogger sets the log entry used by the directory
func WithLogger(log *logrus.Entry) DirectoryOption {
	return func(d *Directory) { d.log = log }
}

// NewDirectory creates a Directory over repo. Room IDs default to ShortID, or
// UUID when the repository is shared with other processes.
func NewDirectory(repo repository.Repository, opts ...DirectoryOption) *Directory {
	d := &Directory{
		repo:  repo,
		newID: ShortID,
		now:   time.Now,
		log:   utils.Component(utils.Discard(), "directory"),
	}
	if repository.Shared(repo) {
		d.newID = UUID
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Now returns the directory's current time
func (d *Directory) Now() time.Time {
	return d.now()
}

// Create makes a new room owned by createdBy
func (d *Directory) Create(ctx context.Context, name, createdBy string) (string, *models.Room, error) {
	if createdBy == "" {
		return "", nil, fmt.Errorf("%w: createdBy is required", ErrInvalid)
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		id, err := d.newID()
		if err != nil {
			return "", nil, err
		}

		room := models.NewRoom(id, name, createdBy, d.now())
		err = d.repo.CreateRoom(ctx, room)
		if errors.Is(err, store.ErrExists) {
			d.log.WithField("room_id", id).Warn("Room ID collision, retrying")
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("create room: %w", err)
		}

		d.log.WithFields(logrus.Fields{
			"room_id":    id,
			"created_by": utils.SanitizeLogString(createdBy),
		}).Info("Room created")
		return id, room, nil
	}

	return "", nil, fmt.Errorf("%w: no free room id after %d attempts", ErrConflict, createAttempts)
}

// Get returns the room with the given ID
func (d *Directory) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := d.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return room, nil
}

// List returns all rooms
func (d *Directory) List(ctx context.Context) ([]*models.Room, error) {
	rooms, err := d.repo.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// Delete removes the room, reporting whether it existed
func (d *Directory) Delete(ctx context.Context, id string) (bool, error) {
	err := d.repo.DeleteRoom(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete room: %w", err)
	}
	return true, nil
}

// Update applies fn to the room atomically. A successful transition also
// marks the room as active and bumps its version.
func (d *Directory) Update(ctx context.Context, id string, fn Transition) (*models.Room, error) {
	room, err := d.repo.UpdateRoom(ctx, id, func(r *models.Room) (store.Action, error) {
		if err := fn(r); err != nil {
			return store.Skip, err
		}
		r.LastActivity = d.now()
		r.Version++
		return store.Save, nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return room, nil
}

// RemoveParticipant takes the user out of the room and deletes the room if
// nobody is left. The returned room is the final state either way.
func (d *Directory) RemoveParticipant(ctx context.Context, id, userID string) (*models.Room, bool, error) {
	var deleted bool
	room, err := d.repo.UpdateRoom(ctx, id, func(r *models.Room) (store.Action, error) {
		deleted = r.RemoveParticipant(userID)
		if deleted {
			return store.Delete, nil
		}
		r.LastActivity = d.now()
		r.Version++
		return store.Save, nil
	})
	if err != nil {
		return nil, false, mapStoreError(err)
	}

	if deleted {
		d.log.WithField("room_id", id).Info("Last participant left, room deleted")
	}
	return room, deleted, nil
}

// DeleteIf deletes the room only if stale still holds when checked under the
// room's serialization point
func (d *Directory) DeleteIf(ctx context.Context, id string, stale func(*models.Room) bool) (bool, error) {
	var deleted bool
	_, err := d.repo.UpdateRoom(ctx, id, func(r *models.Room) (store.Action, error) {
		deleted = stale(r)
		if deleted {
			return store.Delete, nil
		}
		return store.Skip, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreError(err)
	}
	return deleted, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrContended):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
