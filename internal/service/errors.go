package service

import "errors"

var (
	// ErrNotFound is returned when a room does not exist, and also when a
	// privileged action comes from anyone but the room's creator, so that
	// callers cannot probe for rooms they do not own
	ErrNotFound = errors.New("room not found")
	// ErrStoryNotFound is returned when a story ID does not resolve within the room
	ErrStoryNotFound = errors.New("story not found")
	// ErrStoryClosed is returned when acting on a completed or skipped story
	ErrStoryClosed = errors.New("story is already closed")
	// ErrInvalid is returned when a request is missing a required field
	ErrInvalid = errors.New("invalid request")
	// ErrNotParticipant is returned when someone votes without having joined
	ErrNotParticipant = errors.New("not a participant of the room")
	// ErrVotingClosed is returned for votes submitted after reveal
	ErrVotingClosed = errors.New("votes have already been revealed")
	// ErrConflict is returned when the store could not apply a change, either
	// because of an ID collision or because the room was too contended
	ErrConflict = errors.New("conflicting room update")

	errUnauthorized = errors.New("requester is not the room creator")
)
