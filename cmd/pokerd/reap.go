package main

import (
	"github.com/navikt/pokerrooms/internal/repository/redis"
	"github.com/navikt/pokerrooms/internal/service"
	"github.com/navikt/pokerrooms/internal/utils"
	"github.com/spf13/cobra"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Delete stale rooms once and exit",
	Long: "Runs a single sweep of the stale room reaper against the configured store. " +
		"Only useful with REDIS_ENABLED, the in-memory store is empty in a fresh process.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		log := utils.Component(a.logger, "reaper")
		reaper := service.NewReaper(a.dir, a.cfg.Reaper, log)

		// Let running servers drop the observers of reaped rooms
		if redisRepo, ok := a.repo.(*redis.Repository); ok {
			relay := redis.NewRelay(redisRepo.Client(), a.cfg.Redis.KeyPrefix, utils.Component(a.logger, "relay"))
			reaper.OnDelete(relay.Close)
		}

		deleted, err := reaper.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		log.WithField("count", deleted).Info("Sweep finished")
		return nil
	},
}
