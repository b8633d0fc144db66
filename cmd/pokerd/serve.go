package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/navikt/pokerrooms/internal/api"
	"github.com/navikt/pokerrooms/internal/repository/redis"
	"github.com/navikt/pokerrooms/internal/service"
	"github.com/navikt/pokerrooms/internal/utils"
	"github.com/navikt/pokerrooms/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()
	log := utils.Component(a.logger, "server")

	coord := service.NewCoordinator(a.dir, a.cfg.AcceptVotesAfterReveal, utils.Component(a.logger, "coordinator"))
	hub := web.NewHub(utils.Component(a.logger, "hub"))
	events := web.NewSSEManager(a.dir, utils.Component(a.logger, "sse"))
	local := service.NewOrderedNotifier(service.Fanout{hub, events})

	routes := api.Routes{
		Rooms:     a.dir,
		WebSocket: web.NewWSHandler(coord, hub, a.cfg.FrontendURL, utils.Component(a.logger, "ws")),
		Events:    events,
		Log:       utils.Component(a.logger, "api"),
	}

	// With a shared store every event goes through Redis so that observers
	// connected to any instance see it
	if redisRepo, ok := a.repo.(*redis.Repository); ok {
		relay := redis.NewRelay(redisRepo.Client(), a.cfg.Redis.KeyPrefix, utils.Component(a.logger, "relay"))
		if err := relay.Start(ctx, local); err != nil {
			return err
		}
		coord.RegisterNotifier(relay)
		routes.Store = redisRepo
	} else {
		coord.RegisterNotifier(local)
	}

	if a.cfg.Reaper.Enabled {
		reaper := service.NewReaper(a.dir, a.cfg.Reaper, utils.Component(a.logger, "reaper"))
		reaper.OnDelete(coord.CloseRoom)
		go reaper.Run(ctx)
	}

	server := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      web.WrapMuxWithMiddleware(api.SetupRoutes(routes), a.cfg.FrontendURL),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disable write timeout for SSE and websocket connections
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("Starting pokerd server")
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-ctx.Done():
		log.Info("Shutting down server...")

		// Close event streams first, they would otherwise hold the shutdown open
		events.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return err
		}

		log.Info("Server gracefully stopped")
		return nil
	}
}
