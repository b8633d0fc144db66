package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/navikt/pokerrooms/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom() *models.Room {
	return models.NewRoom("ABC123", "Sprint 42", "u1", time.Date(2025, 5, 9, 10, 0, 0, 0, time.UTC))
}

func TestNewRoom(t *testing.T) {
	room := newTestRoom()

	assert.Equal(t, "ABC123", room.ID)
	assert.Equal(t, "Sprint 42", room.Name)
	assert.Equal(t, "u1", room.CreatedBy)
	assert.Empty(t, room.Participants)
	assert.Empty(t, room.Votes)
	assert.False(t, room.Revealed)
	assert.Equal(t, room.CreatedAt, room.LastActivity)
	assert.Equal(t, room.CreatedAt, room.LastStoryAdded)

	unnamed := models.NewRoom("XYZ789", "", "u1", time.Now())
	assert.Equal(t, "Room XYZ789", unnamed.Name)
}

func TestParticipants(t *testing.T) {
	room := newTestRoom()

	assert.True(t, room.AddParticipant(models.Participant{ID: "u1", Name: "Ada"}))
	assert.False(t, room.AddParticipant(models.Participant{ID: "u1", Name: "Ada again"}), "Join should be idempotent")
	assert.True(t, room.AddParticipant(models.Participant{ID: "u2", Name: "Bob"}))
	require.Len(t, room.Participants, 2)
	assert.Equal(t, "Ada", room.Participants[0].Name)

	room.SubmitVote("u2", 5)

	t.Run("RemoveUnknownIsHarmless", func(t *testing.T) {
		assert.False(t, room.RemoveParticipant("nobody"))
		assert.Len(t, room.Participants, 2)
	})

	t.Run("RemoveDropsVote", func(t *testing.T) {
		assert.False(t, room.RemoveParticipant("u2"))
		assert.NotContains(t, room.Votes, "u2")
	})

	t.Run("RemoveLastReportsEmpty", func(t *testing.T) {
		assert.True(t, room.RemoveParticipant("u1"))
		assert.True(t, room.RemoveParticipant("u1"), "Still empty on retry")
	})
}

func TestPublicVotesMaskedUntilReveal(t *testing.T) {
	room := newTestRoom()
	room.AddParticipant(models.Participant{ID: "u1", Name: "Ada"})
	room.AddParticipant(models.Participant{ID: "u2", Name: "Bob"})
	room.AddParticipant(models.Participant{ID: "u3", Name: "Cy"})

	room.SubmitVote("u1", 3)
	room.SubmitVote("u2", 0)
	room.SubmitVote("u1", 8)

	public := room.PublicVotes()
	assert.Len(t, public, 2, "Non-voters are omitted")
	for _, id := range []string{"u1", "u2"} {
		assert.True(t, public[id].Masked(), "vote for %s should be masked", id)
	}

	data, err := json.Marshal(public)
	require.NoError(t, err)
	assert.JSONEq(t, `{"u1":"✓","u2":"✓"}`, string(data))

	raw := room.RevealVotes()
	assert.Equal(t, map[string]float64{"u1": 8, "u2": 0}, raw)

	public = room.PublicVotes()
	v, visible := public["u2"].Value()
	assert.True(t, visible)
	assert.Equal(t, 0.0, v)

	data, err = json.Marshal(public)
	require.NoError(t, err)
	assert.JSONEq(t, `{"u1":8,"u2":0}`, string(data))

	again := room.RevealVotes()
	assert.Equal(t, raw, again, "Reveal should be idempotent")
}

func TestResetVoting(t *testing.T) {
	room := newTestRoom()
	first := room.AddStory("Login flow")
	second := room.AddStory("Logout flow")
	require.True(t, room.StartVoting(first.ID))
	room.SubmitVote("u1", 3)
	room.RevealVotes()

	room.ResetVoting("")
	assert.Empty(t, room.Votes)
	assert.False(t, room.Revealed)
	assert.Equal(t, first.ID, room.CurrentStoryID)

	room.ResetVoting(second.ID)
	assert.Equal(t, second.ID, room.CurrentStoryID)
	s, _ := room.Story(second.ID)
	assert.Equal(t, models.StoryStatusVoting, s.Status)
	s, _ = room.Story(first.ID)
	assert.Equal(t, models.StoryStatusPending, s.Status)
}

func TestStartVotingKeepsSingleVotingStory(t *testing.T) {
	room := newTestRoom()
	s := room.AddStory("S")
	tt := room.AddStory("T")

	assert.False(t, room.StartVoting("missing"))
	assert.Empty(t, room.CurrentStoryID)

	require.True(t, room.StartVoting(s.ID))
	room.SubmitVote("u1", 5)
	room.RevealVotes()

	require.True(t, room.StartVoting(tt.ID))

	voting := 0
	for _, story := range room.Stories {
		if story.Status == models.StoryStatusVoting {
			voting++
			assert.Equal(t, tt.ID, story.ID)
		}
	}
	assert.Equal(t, 1, voting)
	got, _ := room.Story(s.ID)
	assert.Equal(t, models.StoryStatusPending, got.Status)
	assert.Equal(t, tt.ID, room.CurrentStoryID)
	assert.Empty(t, room.Votes)
	assert.False(t, room.Revealed)
}

func TestCompleteStory(t *testing.T) {
	tests := []struct {
		name     string
		votes    map[string]float64
		expected *int
	}{
		{name: "Mean", votes: map[string]float64{"a": 3, "b": 5}, expected: intPtr(4)},
		{name: "HalfRoundsUp", votes: map[string]float64{"a": 3, "b": 4}, expected: intPtr(4)},
		{name: "RoundsDown", votes: map[string]float64{"a": 1, "b": 2, "c": 2}, expected: intPtr(2)},
		{name: "NoVotes", votes: nil, expected: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			room := newTestRoom()
			story := room.AddStory("Story")
			require.True(t, room.StartVoting(story.ID))
			for id, v := range tc.votes {
				room.SubmitVote(id, v)
			}

			assert.True(t, room.CompleteStory(story.ID))

			got, _ := room.Story(story.ID)
			assert.Equal(t, models.StoryStatusCompleted, got.Status)
			assert.Equal(t, tc.expected, got.Points)
			assert.Empty(t, room.CurrentStoryID, "No story enters voting automatically")
		})
	}
}

func TestCompletePendingStoryLeavesItUnscored(t *testing.T) {
	room := newTestRoom()
	voting := room.AddStory("Under vote")
	pending := room.AddStory("Not started")
	require.True(t, room.StartVoting(voting.ID))
	room.SubmitVote("a", 8)
	room.SubmitVote("b", 13)

	assert.True(t, room.CompleteStory(pending.ID))

	got, _ := room.Story(pending.ID)
	assert.Equal(t, models.StoryStatusCompleted, got.Status)
	assert.Nil(t, got.Points, "Votes belong to the story under vote")

	// The round on the other story is untouched
	assert.Equal(t, voting.ID, room.CurrentStoryID)
	assert.Equal(t, map[string]float64{"a": 8, "b": 13}, room.Votes)
	current, _ := room.Story(voting.ID)
	assert.Equal(t, models.StoryStatusVoting, current.Status)
}

func TestSkipAndDeleteStory(t *testing.T) {
	room := newTestRoom()
	story := room.AddStory("Skip me")
	other := room.AddStory("Delete me")

	assert.False(t, room.SkipStory("missing"))
	assert.True(t, room.SkipStory(story.ID))
	got, _ := room.Story(story.ID)
	assert.Equal(t, models.StoryStatusSkipped, got.Status)
	assert.Nil(t, got.Points)
	assert.True(t, got.Status.Closed())

	require.True(t, room.StartVoting(other.ID))
	room.SubmitVote("u1", 2)
	assert.True(t, room.DeleteStory(other.ID))
	assert.False(t, room.DeleteStory(other.ID))
	_, ok := room.Story(other.ID)
	assert.False(t, ok)
	assert.Empty(t, room.CurrentStoryID)
	assert.Empty(t, room.Votes)
	assert.Len(t, room.Stories, 1)
}

func TestCloneIsIndependent(t *testing.T) {
	room := newTestRoom()
	room.AddParticipant(models.Participant{ID: "u1", Name: "Ada"})
	story := room.AddStory("Story")
	require.True(t, room.StartVoting(story.ID))
	room.SubmitVote("u1", 3)
	room.CompleteStory(story.ID)

	c := room.Clone()
	c.SubmitVote("u1", 13)
	c.AddParticipant(models.Participant{ID: "u2", Name: "Bob"})
	*c.Stories[0].Points = 99

	assert.Equal(t, 3.0, room.Votes["u1"])
	assert.Len(t, room.Participants, 1)
	assert.Equal(t, 3, *room.Stories[0].Points)
}

func TestSnapshotJSON(t *testing.T) {
	room := newTestRoom()
	room.AddParticipant(models.Participant{ID: "u1", Name: "Ada"})
	room.SubmitVote("u1", 3)

	data, err := json.Marshal(room.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["currentStoryId"])
	assert.Equal(t, map[string]any{"u1": models.MaskedVote}, decoded["votes"])
	assert.Equal(t, 0.0, decoded["version"])

	var snapshot models.Snapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.True(t, snapshot.Votes["u1"].Masked())
}

func intPtr(v int) *int {
	return &v
}
