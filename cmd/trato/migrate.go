package main

import (
	"github.com/mbeoliero/kit/log"
	"github.com/spf13/cobra"

	"github.com/mbeoliero/trato/internal/config"
	"github.com/mbeoliero/trato/internal/repository"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the conversation and message tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			repos, err := repository.NewRepositories(cfg)
			if err != nil {
				return err
			}
			defer repos.Close()

			if err := repository.AutoMigrate(repos.DB); err != nil {
				return err
			}
			log.Info("schema migrated: driver=%s", cfg.Database.Driver)
			return nil
		},
	}
}
