package models

import "github.com/google/uuid"

// StoryStatus is the lifecycle state of a story within a room
type StoryStatus string

const (
	StoryStatusPending   StoryStatus = "pending"
	StoryStatusVoting    StoryStatus = "voting"
	StoryStatusCompleted StoryStatus = "completed"
	StoryStatusSkipped   StoryStatus = "skipped"
)

// Closed reports whether the status is terminal
func (s StoryStatus) Closed() bool {
	return s == StoryStatusCompleted || s == StoryStatusSkipped
}

// Story is one unit of work being estimated
type Story struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Status StoryStatus `json:"status"`
	// Points is only set when the story is completed, and stays nil if nobody voted
	Points *int `json:"points"`
}

func newStory(title string) Story {
	return Story{
		ID:     uuid.NewString(),
		Title:  title,
		Status: StoryStatusPending,
	}
}
