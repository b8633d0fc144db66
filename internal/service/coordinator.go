package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/navikt/pokerrooms/internal/models"
	"github.com/navikt/pokerrooms/internal/utils"
	"github.com/sirupsen/logrus"
)

// Coordinator applies participant actions to rooms and tells observers about
// the result. Every action is a single transition run through the Directory,
// so it either applies completely or not at all.
type Coordinator struct {
	dir                    *Directory
	acceptVotesAfterReveal bool
	log                    *logrus.Entry

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewCoordinator creates a Coordinator. acceptVotesAfterReveal decides
// whether votes are still taken once a round has been revealed.
func NewCoordinator(dir *Directory, acceptVotesAfterReveal bool, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		dir:                    dir,
		acceptVotesAfterReveal: acceptVotesAfterReveal,
		log:                    log,
	}
}

// RegisterNotifier adds a destination for room events
func (c *Coordinator) RegisterNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifiers = append(c.notifiers, n)
}

func (c *Coordinator) broadcast(roomID, event string, payload any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.notifiers {
		n.Broadcast(roomID, event, payload)
	}
}

func (c *Coordinator) publishRoom(room *models.Room) {
	c.broadcast(room.ID, EventRoomUpdate, room.Snapshot())
}

// CloseRoom tells observers that the room is gone
func (c *Coordinator) CloseRoom(roomID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.notifiers {
		n.Close(roomID)
	}
}

// Directory returns the directory the coordinator acts on
func (c *Coordinator) Directory() *Directory {
	return c.dir
}

// Join adds the user to the room
func (c *Coordinator) Join(ctx context.Context, roomID string, user models.Participant) (*models.Room, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalid)
	}

	var added bool
	room, err := c.dir.Update(ctx, roomID, func(r *models.Room) error {
		added = r.AddParticipant(user)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if added {
		c.log.WithFields(logrus.Fields{
			"room_id": roomID,
			"user":    utils.SanitizeLogString(user.Name),
		}).Info("Participant joined")
	}
	c.publishRoom(room)
	return room, nil
}

// SubmitVote records the user's estimate for the current round
func (c *Coordinator) SubmitVote(ctx context.Context, roomID, userID string, vote float64) (*models.Room, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalid)
	}

	room, err := c.dir.Update(ctx, roomID, func(r *models.Room) error {
		if !r.HasParticipant(userID) {
			return ErrNotParticipant
		}
		if r.Revealed && !c.acceptVotesAfterReveal {
			return ErrVotingClosed
		}
		r.SubmitVote(userID, vote)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.publishRoom(room)
	return room, nil
}

// Reveal shows all votes. Observers get the room update followed by the raw votes.
func (c *Coordinator) Reveal(ctx context.Context, roomID string) (map[string]float64, error) {
	var votes map[string]float64
	room, err := c.dir.Update(ctx, roomID, func(r *models.Room) error {
		votes = r.RevealVotes()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.publishRoom(room)
	c.broadcast(roomID, EventVotesRevealed, votes)
	return votes, nil
}

// Reset clears the round. A non-empty nextStoryID names the story to vote on
// next, which must exist and still be open.
func (c *Coordinator) Reset(ctx context.Context, roomID, nextStoryID string) (*models.Room, error) {
	room, err := c.dir.Update(ctx, roomID, func(r *models.Room) error {
		if nextStoryID != "" {
			if err := openStory(r, nextStoryID); err != nil {
				return err
			}
		}
		r.ResetVoting(nextStoryID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.publishRoom(room)
	return room, nil
}

// Leave removes the user from the room. When the last participant leaves the
// room is deleted and observers are released instead of being updated.
func (c *Coordinator) Leave(ctx context.Context, roomID, userID string) (deleted bool, err error) {
	room, deleted, err := c.dir.RemoveParticipant(ctx, roomID, userID)
	if err != nil {
		return false, err
	}

	if deleted {
		c.CloseRoom(roomID)
		return true, nil
	}

	c.publishRoom(room)
	return false, nil
}

// AddStory appends a story to the room. Only the room creator may do this.
func (c *Coordinator) AddStory(ctx context.Context, roomID, requester, title string) (models.Story, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Story{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}

	var story models.Story
	room, err := c.privileged(ctx, roomID, requester, "add-story", func(r *models.Room) error {
		story = r.AddStory(title)
		r.LastStoryAdded = c.dir.Now()
		return nil
	})
	if err != nil {
		return models.Story{}, err
	}

	c.publishRoom(room)
	return story, nil
}

// StartVoting opens a round on the story, returning any other story under vote to pending
func (c *Coordinator) StartVoting(ctx context.Context, roomID, requester, storyID string) (*models.Room, error) {
	return c.storyAction(ctx, roomID, requester, "start-voting", func(r *models.Room) error {
		if err := openStory(r, storyID); err != nil {
			return err
		}
		r.StartVoting(storyID)
		return nil
	})
}

// CompleteStory closes the story and scores it from the current votes
func (c *Coordinator) CompleteStory(ctx context.Context, roomID, requester, storyID string) (*models.Room, error) {
	return c.storyAction(ctx, roomID, requester, "complete-story", func(r *models.Room) error {
		if err := openStory(r, storyID); err != nil {
			return err
		}
		r.CompleteStory(storyID)
		return nil
	})
}

// SkipStory closes the story without a score
func (c *Coordinator) SkipStory(ctx context.Context, roomID, requester, storyID string) (*models.Room, error) {
	return c.storyAction(ctx, roomID, requester, "skip-story", func(r *models.Room) error {
		if err := openStory(r, storyID); err != nil {
			return err
		}
		r.SkipStory(storyID)
		return nil
	})
}

// DeleteStory removes the story from the room
func (c *Coordinator) DeleteStory(ctx context.Context, roomID, requester, storyID string) (*models.Room, error) {
	return c.storyAction(ctx, roomID, requester, "delete-story", func(r *models.Room) error {
		if !r.DeleteStory(storyID) {
			return ErrStoryNotFound
		}
		return nil
	})
}

func (c *Coordinator) storyAction(ctx context.Context, roomID, requester, action string, fn Transition) (*models.Room, error) {
	room, err := c.privileged(ctx, roomID, requester, action, fn)
	if err != nil {
		return nil, err
	}
	c.publishRoom(room)
	return room, nil
}

// privileged runs fn only if requester created the room. A mismatch is
// reported as ErrNotFound.
func (c *Coordinator) privileged(ctx context.Context, roomID, requester, action string, fn Transition) (*models.Room, error) {
	room, err := c.dir.Update(ctx, roomID, func(r *models.Room) error {
		if requester == "" || r.CreatedBy != requester {
			return errUnauthorized
		}
		return fn(r)
	})
	if errors.Is(err, errUnauthorized) {
		c.log.WithFields(logrus.Fields{
			"room_id":   roomID,
			"action":    action,
			"requester": utils.SanitizeLogString(requester),
		}).Debug("Rejected privileged action from non-creator")
		return nil, ErrNotFound
	}
	return room, err
}

// openStory checks that the story exists and has not been completed or skipped
func openStory(r *models.Room, storyID string) error {
	story, ok := r.Story(storyID)
	if !ok {
		return ErrStoryNotFound
	}
	if story.Status.Closed() {
		return ErrStoryClosed
	}
	return nil
}
