// Command meetingctl is the operator CLI for the meeting session gateway. It runs
// migrations, edits stored timer settings and publishes hook events that a running
// gateway applies to live meetings.
package main

import (
	"context"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/mcdev12/flowminder/go/internal/dbconfig"
	"github.com/mcdev12/flowminder/go/internal/meeting/bus"
	"github.com/mcdev12/flowminder/go/internal/meeting/migrations"
	"github.com/mcdev12/flowminder/go/internal/meeting/repository"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	dsn := dbconfig.NewConfigFromEnv().DSN()
	deps := &Dependencies{
		Clock:   clockwork.NewRealClock(),
		Migrate: migrations.Up,
		Status:  migrations.Status,
		DSN:     dsn,
		OpenStore: func(ctx context.Context) (Store, func(), error) {
			repo, err := repository.Connect(ctx, dsn)
			if err != nil {
				return nil, nil, err
			}
			return repo, repo.Close, nil
		},
		OpenPublisher: func(ctx context.Context, natsURL string) (Publisher, error) {
			cfg := bus.DefaultStreamConfig()
			cfg.URL = natsURL
			p, err := bus.NewPublisher(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}

	if err := NewRootCmd(deps).Execute(); err != nil {
		os.Exit(1)
	}
}
