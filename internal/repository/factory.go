package repository

import (
	"github.com/navikt/pokerrooms/internal/config"
	"github.com/navikt/pokerrooms/internal/repository/memory"
	"github.com/navikt/pokerrooms/internal/repository/redis"
)

// NewRepository picks the Redis implementation when it is enabled and the
// in-memory one otherwise
func NewRepository(cfg config.RedisConfig) (Repository, error) {
	if cfg.Enabled {
		repo, err := redis.NewRepository(cfg)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	return memory.NewRepository(), nil
}

// Shared reports whether rooms in repo may be mutated by other processes
func Shared(repo Repository) bool {
	_, ok := repo.(*redis.Repository)
	return ok
}
