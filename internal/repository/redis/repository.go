// Package redis provides a Redis/Valkey implementation of the repository interface
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/navikt/pokerrooms/internal/config"
	"github.com/navikt/pokerrooms/internal/models"
	"github.com/navikt/pokerrooms/internal/repository/store"
	"github.com/redis/go-redis/v9"
)

// Repository implements the repository interface with Redis storage. Each room
// is one JSON document; a set indexes the known room IDs.
type Repository struct {
	client     *redis.Client
	keyPrefix  string
	ttl        time.Duration
	maxRetries int
}

// NewClient connects to Redis and verifies the connection
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	var opt *redis.Options

	// Use URI if provided, otherwise build connection from individual parameters
	if cfg.URI != "" {
		parsed, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}

		// Use DB from config if not specified in the URI
		if parsed.DB == 0 {
			parsed.DB = cfg.DB
		}
		if parsed.Password == "" && cfg.Password != "" {
			parsed.Password = cfg.Password
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     cfg.Address(),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	// A slow store should fail the action rather than stall it
	if cfg.Timeout > 0 {
		opt.DialTimeout = cfg.Timeout
		opt.ReadTimeout = cfg.Timeout
		opt.WriteTimeout = cfg.Timeout
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRepository creates a new Redis repository
func NewRepository(cfg config.RedisConfig) (*Repository, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Repository{
		client:     client,
		keyPrefix:  cfg.KeyPrefix,
		ttl:        cfg.RoomTTL,
		maxRetries: maxRetries,
	}, nil
}

// Client exposes the underlying connection so the event relay can share it
func (r *Repository) Client() *redis.Client {
	return r.client
}

// Ping checks that Redis is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *Repository) Close() error {
	return r.client.Close()
}

// roomKey returns the Redis key for a room document
func (r *Repository) roomKey(id string) string {
	return fmt.Sprintf("%srooms:%s", r.keyPrefix, id)
}

// indexKey returns the Redis key for the set of room IDs
func (r *Repository) indexKey() string {
	return r.keyPrefix + "room-index"
}

func decodeRoom(data []byte) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

// CreateRoom stores a new room if the ID is free
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.roomKey(room.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	if !created {
		return store.ErrExists
	}

	if err := r.client.SAdd(ctx, r.indexKey(), room.ID).Err(); err != nil {
		return fmt.Errorf("failed to index room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by ID
func (r *Repository) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	data, err := r.client.Get(ctx, r.roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return decodeRoom(data)
}

// ListRooms returns every indexed room. Index entries whose document has
// expired are pruned along the way.
func (r *Repository) ListRooms(ctx context.Context) ([]*models.Room, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	if len(ids) == 0 {
		return []*models.Room{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.roomKey(id)
	}

	// Use MGET to retrieve all room data in a single roundtrip
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room data: %w", err)
	}

	rooms := make([]*models.Room, 0, len(values))
	var expired []any

	for i, v := range values {
		strData, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}

		room, err := decodeRoom([]byte(strData))
		if err != nil {
			continue
		}
		rooms = append(rooms, room)
	}

	if len(expired) > 0 {
		if err := r.client.SRem(ctx, r.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune room index: %w", err)
		}
	}

	return rooms, nil
}

// DeleteRoom removes a room by ID
func (r *Repository) DeleteRoom(ctx context.Context, id string) error {
	key := r.roomKey(id)

	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check if room exists: %w", err)
	}
	if exists == 0 {
		return store.ErrNotFound
	}

	// Use a pipeline to drop the document and its index entry in one roundtrip
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}

// UpdateRoom applies fn inside a WATCH/MULTI transaction on the room key. If
// another writer touches the room first, the transaction is retried from a
// fresh read, up to maxRetries times.
func (r *Repository) UpdateRoom(ctx context.Context, id string, fn store.MutateFunc) (*models.Room, error) {
	key := r.roomKey(id)
	var result *models.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return fmt.Errorf("failed to get room: %w", err)
		}

		room, err := decodeRoom(data)
		if err != nil {
			return err
		}

		action, err := fn(room)
		if err != nil {
			return err
		}

		switch action {
		case store.Save:
			payload, err := json.Marshal(room)
			if err != nil {
				return fmt.Errorf("failed to marshal room: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, r.ttl)
				return nil
			})
			if err != nil {
				return err
			}
		case store.Delete:
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, r.indexKey(), id)
				return nil
			})
			if err != nil {
				return err
			}
		}

		result = room
		return nil
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	return nil, store.ErrContended
}
