// Package redis_test provides tests for the Redis repository
package redis_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/navikt/pokerrooms/internal/config"
	"github.com/navikt/pokerrooms/internal/models"
	"github.com/navikt/pokerrooms/internal/repository/redis"
	"github.com/navikt/pokerrooms/internal/repository/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Repository, *miniredis.Miniredis) {
	// Create a miniredis server
	mr := miniredis.RunT(t)

	// Configure Redis client to use miniredis
	cfg := config.RedisConfig{
		Enabled:    true,
		Host:       mr.Host(),
		Port:       mr.Port(),
		KeyPrefix:  "test:",
		RoomTTL:    time.Hour * 24,
		Timeout:    time.Second,
		MaxRetries: 50,
	}

	repo, err := redis.NewRepository(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo, mr
}

// TestRedisWithURI tests connection with URI format
func TestRedisWithURI(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Enabled:    true,
		URI:        fmt.Sprintf("redis://%s:%s", mr.Host(), mr.Port()),
		KeyPrefix:  "test:",
		RoomTTL:    time.Hour * 24,
		MaxRetries: 1,
	}

	repo, err := redis.NewRepository(cfg)
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.Ping(ctx))

	room := models.NewRoom("URI001", "URI Test", "u1", time.Now())
	require.NoError(t, repo.CreateRoom(ctx, room))

	retrieved, err := repo.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, retrieved.ID)
	assert.Equal(t, room.Name, retrieved.Name)
}

func TestRedisUnreachable(t *testing.T) {
	cfg := config.RedisConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    "1",
		Timeout: 100 * time.Millisecond,
	}

	_, err := redis.NewRepository(cfg)
	assert.Error(t, err)
}

func TestRoomRepository(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	room := models.NewRoom("ROOM01", "Planning", "u1", time.Now().UTC().Truncate(time.Second))
	room.AddParticipant(models.Participant{ID: "u1", Name: "Ada"})
	story := room.AddStory("Login flow")
	room.StartVoting(story.ID)
	room.SubmitVote("u1", 3)

	t.Run("CreateAndGetRoom", func(t *testing.T) {
		require.NoError(t, repo.CreateRoom(ctx, room))

		saved, err := repo.GetRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room.Name, saved.Name)
		assert.Equal(t, room.Participants, saved.Participants)
		assert.Equal(t, room.Stories, saved.Stories)
		assert.Equal(t, story.ID, saved.CurrentStoryID)
		assert.Equal(t, map[string]float64{"u1": 3}, saved.Votes)
		assert.True(t, room.CreatedAt.Equal(saved.CreatedAt))
		assert.True(t, mr.Exists("test:rooms:ROOM01"))
		assert.Equal(t, 24*time.Hour, mr.TTL("test:rooms:ROOM01"))
	})

	t.Run("CreateDuplicateFails", func(t *testing.T) {
		err := repo.CreateRoom(ctx, models.NewRoom("ROOM01", "Other", "u2", time.Now()))
		assert.ErrorIs(t, err, store.ErrExists)
	})

	t.Run("ListRooms", func(t *testing.T) {
		rooms, err := repo.ListRooms(ctx)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, room.ID, rooms[0].ID)
	})

	t.Run("DeleteRoom", func(t *testing.T) {
		require.NoError(t, repo.DeleteRoom(ctx, room.ID))

		_, err := repo.GetRoom(ctx, room.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteRoom(ctx, room.ID), store.ErrNotFound)

		rooms, err := repo.ListRooms(ctx)
		require.NoError(t, err)
		assert.Empty(t, rooms)
	})
}

func TestExpiredRoomsArePrunedFromIndex(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateRoom(ctx, models.NewRoom("OLD001", "", "u1", time.Now())))
	mr.FastForward(25 * time.Hour)
	require.NoError(t, repo.CreateRoom(ctx, models.NewRoom("NEW001", "", "u1", time.Now())))

	rooms, err := repo.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "NEW001", rooms[0].ID)

	members, err := mr.SMembers("test:room-index")
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW001"}, members)
}

func TestUpdateRoom(t *testing.T) {
	repo, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateRoom(ctx, models.NewRoom("ROOM02", "", "u1", time.Now())))

	t.Run("SaveCommits", func(t *testing.T) {
		updated, err := repo.UpdateRoom(ctx, "ROOM02", func(r *models.Room) (store.Action, error) {
			r.AddParticipant(models.Participant{ID: "u1", Name: "Ada"})
			return store.Save, nil
		})
		require.NoError(t, err)
		assert.Len(t, updated.Participants, 1)

		saved, err := repo.GetRoom(ctx, "ROOM02")
		require.NoError(t, err)
		assert.Len(t, saved.Participants, 1)
	})

	t.Run("ErrorDiscards", func(t *testing.T) {
		_, err := repo.UpdateRoom(ctx, "ROOM02", func(r *models.Room) (store.Action, error) {
			r.AddParticipant(models.Participant{ID: "u2", Name: "Bob"})
			return store.Save, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		saved, _ := repo.GetRoom(ctx, "ROOM02")
		assert.Len(t, saved.Participants, 1)
	})

	t.Run("DeleteRemoves", func(t *testing.T) {
		_, err := repo.UpdateRoom(ctx, "ROOM02", func(r *models.Room) (store.Action, error) {
			return store.Delete, nil
		})
		require.NoError(t, err)

		_, err = repo.GetRoom(ctx, "ROOM02")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.False(t, mr.Exists("test:rooms:ROOM02"))
	})

	t.Run("MissingRoom", func(t *testing.T) {
		_, err := repo.UpdateRoom(ctx, "nope", func(r *models.Room) (store.Action, error) {
			return store.Save, nil
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestUpdateRoomRetriesWhenRaced(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateRoom(ctx, models.NewRoom("ROOM03", "", "u1", time.Now())))

	// Each attempt is invalidated by a concurrent write to the watched key,
	// until the racing writer gives up after two rounds
	attempts := 0
	updated, err := repo.UpdateRoom(ctx, "ROOM03", func(r *models.Room) (store.Action, error) {
		attempts++
		if attempts <= 2 {
			_, err := repo.UpdateRoom(ctx, "ROOM03", func(other *models.Room) (store.Action, error) {
				other.AddParticipant(models.Participant{ID: fmt.Sprintf("racer-%d", attempts)})
				return store.Save, nil
			})
			require.NoError(t, err)
		}
		r.SubmitVote("u1", 5)
		return store.Save, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, updated.Participants, 2, "The retry must see the racing writes")
	assert.Equal(t, 5.0, updated.Votes["u1"])
}

func TestUpdateRoomGivesUpWhenContended(t *testing.T) {
	mr := miniredis.RunT(t)
	repo, err := redis.NewRepository(config.RedisConfig{
		Host:       mr.Host(),
		Port:       mr.Port(),
		KeyPrefix:  "test:",
		MaxRetries: 3,
	})
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.CreateRoom(ctx, models.NewRoom("ROOM04", "", "u1", time.Now())))

	attempts := 0
	_, err = repo.UpdateRoom(ctx, "ROOM04", func(r *models.Room) (store.Action, error) {
		attempts++
		require.NoError(t, repo.Client().Append(ctx, "test:rooms:ROOM04", " ").Err())
		return store.Save, nil
	})
	assert.ErrorIs(t, err, store.ErrContended)
	assert.Equal(t, 3, attempts)
}

func TestConcurrentVotesAreNotLost(t *testing.T) {
	repo, _ := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateRoom(ctx, models.NewRoom("ROOM05", "", "u1", time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.UpdateRoom(ctx, "ROOM05", func(r *models.Room) (store.Action, error) {
				r.SubmitVote(fmt.Sprintf("user-%d", i), float64(i))
				r.LastActivity = time.Now()
				return store.Save, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	saved, err := repo.GetRoom(ctx, "ROOM05")
	require.NoError(t, err)
	assert.Len(t, saved.Votes, 20)
}
