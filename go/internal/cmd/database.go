package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/flowminder/go/internal/dbconfig"
	"github.com/mcdev12/flowminder/go/internal/meeting/migrations"
	"github.com/mcdev12/flowminder/go/internal/meeting/repository"
	"github.com/rs/zerolog/log"
)

func setupDatabase(ctx context.Context, dbCfg dbconfig.Config, migrate bool) (*repository.Repository, error) {
	if migrate {
		if err := migrations.Up(ctx, dbCfg.DSN()); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	repo, err := repository.Connect(ctx, dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Bool("migrated", migrate).
		Msg("connected to database")
	return repo, nil
}
