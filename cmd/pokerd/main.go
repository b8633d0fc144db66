package main

import (
	"fmt"
	"os"

	"github.com/navikt/pokerrooms/internal/config"
	"github.com/navikt/pokerrooms/internal/repository"
	"github.com/navikt/pokerrooms/internal/service"
	"github.com/navikt/pokerrooms/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "pokerd",
	Short:         "pokerd runs planning poker rooms",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, reapCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds what every command needs
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	repo   repository.Repository
	dir    *service.Directory
}

func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := utils.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewRepository(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("initialize repository: %w", err)
	}

	dir := service.NewDirectory(repo, service.WithLogger(utils.Component(logger, "directory")))
	return &app{cfg: cfg, logger: logger, repo: repo, dir: dir}, nil
}

func (a *app) close() {
	if closer, ok := a.repo.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.logger.WithError(err).Warn("Error closing Redis connection")
		}
	}
}
