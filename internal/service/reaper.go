package service

import (
	"context"
	"time"

	"github.com/navikt/pokerrooms/internal/config"
	"github.com/navikt/pokerrooms/internal/models"
	"github.com/sirupsen/logrus"
)

// Reaper periodically deletes abandoned rooms
type Reaper struct {
	dir      *Directory
	cfg      config.ReaperConfig
	log      *logrus.Entry
	onDelete func(roomID string)
}

// NewReaper creates a reaper over dir using the thresholds in cfg
func NewReaper(dir *Directory, cfg config.ReaperConfig, log *logrus.Entry) *Reaper {
	return &Reaper{dir: dir, cfg: cfg, log: log}
}

// OnDelete registers fn to be called with the ID of every reaped room
func (r *Reaper) OnDelete(fn func(roomID string)) {
	r.onDelete = fn
}

// Stale reports whether the room should be reaped at now: at most one
// participant, and either no activity or no new story for too long
func (r *Reaper) Stale(room *models.Room, now time.Time) bool {
	if len(room.Participants) > 1 {
		return false
	}
	idle := now.Sub(room.LastActivity) > r.cfg.IdleAfter
	storyIdle := now.Sub(room.LastStoryAdded) > r.cfg.StoryIdleAfter
	return idle || storyIdle
}

// Sweep deletes every stale room and returns how many were deleted. Each
// candidate is checked again as part of its deletion, so a room that saw
// activity since the scan is left alone.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	rooms, err := r.dir.List(ctx)
	if err != nil {
		return 0, err
	}

	now := r.dir.Now()
	deleted := 0
	for _, room := range rooms {
		if !r.Stale(room, now) {
			continue
		}

		ok, err := r.dir.DeleteIf(ctx, room.ID, func(current *models.Room) bool {
			return r.Stale(current, now)
		})
		if err != nil {
			r.log.WithError(err).WithField("room_id", room.ID).Warn("Failed to reap room")
			continue
		}
		if !ok {
			continue
		}

		deleted++
		if r.onDelete != nil {
			r.onDelete(room.ID)
		}
	}

	if deleted > 0 {
		r.log.WithField("count", deleted).Info("Reaped stale rooms")
	}
	return deleted, nil
}

// Run sweeps immediately and then on every interval until ctx is cancelled
func (r *Reaper) Run(ctx context.Context) {
	r.log.WithFields(logrus.Fields{
		"interval":         r.cfg.Interval,
		"idle_after":       r.cfg.IdleAfter,
		"story_idle_after": r.cfg.StoryIdleAfter,
	}).Info("Starting room reaper")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil {
			r.log.WithError(err).Error("Room sweep failed")
		}

		select {
		case <-ctx.Done():
			r.log.Info("Room reaper stopped")
			return
		case <-ticker.C:
		}
	}
}
