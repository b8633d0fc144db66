// Package store holds the types shared by the repository interface and its
// implementations
package store

import (
	"errors"

	"github.com/navikt/pokerrooms/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("room not found")
	// ErrExists is returned when creating a room whose ID is already taken
	ErrExists = errors.New("room already exists")
	// ErrContended is returned when an update lost too many races for the same room
	ErrContended = errors.New("room update contended")
)

// Action tells UpdateRoom what to do with the room once a mutation returns
type Action int

const (
	// Save persists the mutated room
	Save Action = iota
	// Delete removes the room
	Delete
	// Skip leaves the stored room untouched
	Skip
)

// MutateFunc is applied to a private copy of a room under that room's
// serialization point. Returning an error discards the copy. Implementations
// may invoke it more than once, so it must not have side effects beyond the
// room it is given.
type MutateFunc func(room *models.Room) (Action, error)
