// Package models holds the planning-poker room state machine
package models

import (
	"encoding/json"
	"math"
	"slices"
	"time"
)

// MaskedVote is shown in place of a vote value until the room is revealed
const MaskedVote = "✓"

// Participant is a user present in a room
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Room is one estimation session. It carries no I/O; callers are responsible
// for serializing access and persisting the result of each transition.
// Version is bumped with every committed transition.
type Room struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	CreatedBy      string             `json:"createdBy"`
	Participants   []Participant      `json:"participants"`
	Stories        []Story            `json:"stories"`
	CurrentStoryID string             `json:"currentStoryId,omitempty"`
	Votes          map[string]float64 `json:"votes"`
	Revealed       bool               `json:"revealed"`
	CreatedAt      time.Time          `json:"createdAt"`
	LastActivity   time.Time          `json:"lastActivity"`
	LastStoryAdded time.Time          `json:"lastStoryAdded"`
	Version        int64              `json:"version"`
}

// NewRoom creates an empty room. An empty name defaults to "Room <id>".
func NewRoom(id, name, createdBy string, now time.Time) *Room {
	if name == "" {
		name = "Room " + id
	}
	return &Room{
		ID:             id,
		Name:           name,
		CreatedBy:      createdBy,
		Participants:   []Participant{},
		Stories:        []Story{},
		Votes:          make(map[string]float64),
		CreatedAt:      now,
		LastActivity:   now,
		LastStoryAdded: now,
	}
}

// AddParticipant adds the participant unless one with the same ID is present.
// Returns true if the participant was inserted.
func (r *Room) AddParticipant(p Participant) bool {
	if r.HasParticipant(p.ID) {
		return false
	}
	r.Participants = append(r.Participants, p)
	return true
}

// HasParticipant reports whether a participant with the given ID is in the room
func (r *Room) HasParticipant(id string) bool {
	return slices.ContainsFunc(r.Participants, func(p Participant) bool { return p.ID == id })
}

// RemoveParticipant drops the participant and any vote they cast.
// Returns true if the room is now empty.
func (r *Room) RemoveParticipant(id string) bool {
	r.Participants = slices.DeleteFunc(r.Participants, func(p Participant) bool { return p.ID == id })
	delete(r.Votes, id)
	return len(r.Participants) == 0
}

// SubmitVote records or replaces a participant's vote
func (r *Room) SubmitVote(userID string, value float64) {
	if r.Votes == nil {
		r.Votes = make(map[string]float64)
	}
	r.Votes[userID] = value
}

// RevealVotes makes votes visible and returns the raw mapping
func (r *Room) RevealVotes() map[string]float64 {
	r.Revealed = true
	return r.RawVotes()
}

// RawVotes returns a copy of the unmasked votes
func (r *Room) RawVotes() map[string]float64 {
	votes := make(map[string]float64, len(r.Votes))
	for id, v := range r.Votes {
		votes[id] = v
	}
	return votes
}

// ResetVoting clears the round. A non-empty nextStoryID becomes the story under
// vote; the caller is expected to have checked that it names an open story.
func (r *Room) ResetVoting(nextStoryID string) {
	r.Votes = make(map[string]float64)
	r.Revealed = false
	if nextStoryID == "" {
		return
	}
	r.CurrentStoryID = nextStoryID
	for i := range r.Stories {
		s := &r.Stories[i]
		switch {
		case s.ID == nextStoryID:
			s.Status = StoryStatusVoting
		case s.Status == StoryStatusVoting:
			s.Status = StoryStatusPending
		}
	}
}

// PublicVotes returns the votes as they may be shown to every observer.
// Before reveal each voter maps to MaskedVote and non-voters are absent.
func (r *Room) PublicVotes() map[string]PublicVote {
	votes := make(map[string]PublicVote, len(r.Votes))
	for id, v := range r.Votes {
		if r.Revealed {
			votes[id] = PublicVote{value: v}
		} else {
			votes[id] = PublicVote{masked: true}
		}
	}
	return votes
}

// AddStory appends a pending story and returns it
func (r *Room) AddStory(title string) Story {
	story := newStory(title)
	r.Stories = append(r.Stories, story)
	return story
}

// Story looks up a story by ID
func (r *Room) Story(id string) (Story, bool) {
	i := r.storyIndex(id)
	if i < 0 {
		return Story{}, false
	}
	return r.Stories[i], true
}

func (r *Room) storyIndex(id string) int {
	return slices.IndexFunc(r.Stories, func(s Story) bool { return s.ID == id })
}

// StartVoting puts the story into voting, returning any other voting story to
// pending and starting a fresh round. Returns false if the story does not exist.
func (r *Room) StartVoting(storyID string) bool {
	if r.storyIndex(storyID) < 0 {
		return false
	}
	r.ResetVoting(storyID)
	return true
}

// CompleteStory closes the story. The story under vote is scored with the
// rounded mean of the current votes, any other story is left unscored.
func (r *Room) CompleteStory(storyID string) bool {
	return r.closeStory(storyID, StoryStatusCompleted)
}

// SkipStory closes the story without a score
func (r *Room) SkipStory(storyID string) bool {
	return r.closeStory(storyID, StoryStatusSkipped)
}

func (r *Room) closeStory(storyID string, status StoryStatus) bool {
	i := r.storyIndex(storyID)
	if i < 0 {
		return false
	}
	story := &r.Stories[i]
	story.Status = status
	// Only the story under vote owns the current votes
	if status == StoryStatusCompleted && r.CurrentStoryID == storyID {
		story.Points = averagePoints(r.Votes)
	}
	if r.CurrentStoryID == storyID {
		r.CurrentStoryID = ""
	}
	return true
}

// DeleteStory removes the story. Deleting the story under vote also ends the round.
func (r *Room) DeleteStory(storyID string) bool {
	i := r.storyIndex(storyID)
	if i < 0 {
		return false
	}
	r.Stories = slices.Delete(r.Stories, i, i+1)
	if r.CurrentStoryID == storyID {
		r.CurrentStoryID = ""
		r.Votes = make(map[string]float64)
		r.Revealed = false
	}
	return true
}

// averagePoints rounds half up, so a mean of 3.5 scores 4
func averagePoints(votes map[string]float64) *int {
	if len(votes) == 0 {
		return nil
	}
	var sum float64
	for _, v := range votes {
		sum += v
	}
	points := int(math.Floor(sum/float64(len(votes)) + 0.5))
	return &points
}

// Clone returns a deep copy of the room
func (r *Room) Clone() *Room {
	c := *r
	c.Participants = slices.Clone(r.Participants)
	c.Stories = make([]Story, len(r.Stories))
	for i, s := range r.Stories {
		if s.Points != nil {
			p := *s.Points
			s.Points = &p
		}
		c.Stories[i] = s
	}
	c.Votes = r.RawVotes()
	return &c
}

// Snapshot is the broadcastable view of a room, with votes masked until reveal
type Snapshot struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	CreatedBy      string                `json:"createdBy"`
	Participants   []Participant         `json:"participants"`
	Stories        []Story               `json:"stories"`
	CurrentStoryID *string               `json:"currentStoryId"`
	Votes          map[string]PublicVote `json:"votes"`
	Revealed       bool                  `json:"revealed"`
	CreatedAt      time.Time             `json:"createdAt"`
	LastActivity   time.Time             `json:"lastActivity"`
	LastStoryAdded time.Time             `json:"lastStoryAdded"`
	Version        int64                 `json:"version"`
}

// Snapshot projects the room for observers
func (r *Room) Snapshot() Snapshot {
	c := r.Clone()
	s := Snapshot{
		ID:             c.ID,
		Name:           c.Name,
		CreatedBy:      c.CreatedBy,
		Participants:   c.Participants,
		Stories:        c.Stories,
		Votes:          r.PublicVotes(),
		Revealed:       c.Revealed,
		CreatedAt:      c.CreatedAt,
		LastActivity:   c.LastActivity,
		LastStoryAdded: c.LastStoryAdded,
		Version:        c.Version,
	}
	if c.CurrentStoryID != "" {
		s.CurrentStoryID = &c.CurrentStoryID
	}
	return s
}

// PublicVote is either a masked marker or a revealed value
type PublicVote struct {
	value  float64
	masked bool
}

// RevealedVote wraps a visible vote value
func RevealedVote(v float64) PublicVote {
	return PublicVote{value: v}
}

// Masked reports whether the vote value is hidden
func (v PublicVote) Masked() bool {
	return v.masked
}

// Value returns the vote and whether it is visible
func (v PublicVote) Value() (float64, bool) {
	return v.value, !v.masked
}

// MarshalJSON encodes a masked vote as MaskedVote and a revealed one as a number
func (v PublicVote) MarshalJSON() ([]byte, error) {
	if v.masked {
		return json.Marshal(MaskedVote)
	}
	return json.Marshal(v.value)
}

// UnmarshalJSON accepts either form written by MarshalJSON
func (v *PublicVote) UnmarshalJSON(data []byte) error {
	var marker string
	if err := json.Unmarshal(data, &marker); err == nil {
		*v = PublicVote{masked: true}
		return nil
	}
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*v = PublicVote{value: value}
	return nil
}
