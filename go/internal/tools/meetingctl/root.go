package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/meeting/bus"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// Store is the slice of the repository the CLI touches.
type Store interface {
	ListAgendaItems(ctx context.Context, meetingID string) ([]models.AgendaItem, error)
	SaveTimerSettings(ctx context.Context, meetingID string, settings models.TimerSettings) (models.TimerSettings, error)
}

// Publisher sends hook events to the gateway.
type Publisher interface {
	Publish(ctx context.Context, env bus.Envelope) error
	Close()
}

type Dependencies struct {
	Clock         clockwork.Clock
	DSN           string
	Migrate       func(ctx context.Context, dsn string) error
	Status        func(ctx context.Context, dsn string) error
	OpenStore     func(ctx context.Context) (Store, func(), error)
	OpenPublisher func(ctx context.Context, natsURL string) (Publisher, error)
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	var natsURL string

	rootCmd := &cobra.Command{
		Use:          "meetingctl",
		Short:        "Operate the meeting session gateway",
		Long:         "Runs database migrations, edits stored meeting settings and publishes hook events to running gateways.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", envOr("NATS_URL", nats.DefaultURL), "NATS server for hook events")

	publish := func(cmd *cobra.Command, env bus.Envelope) error {
		p, err := deps.OpenPublisher(cmd.Context(), natsURL)
		if err != nil {
			return err
		}
		defer p.Close()
		if err := p.Publish(cmd.Context(), env); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s for meeting %s (event %s)\n", env.EventType, env.MeetingID, env.EventID)
		return nil
	}

	rootCmd.AddCommand(newMigrateCmd(deps))
	rootCmd.AddCommand(newRosterCmd(deps, publish))
	rootCmd.AddCommand(newAgendaCmd(deps, publish))
	rootCmd.AddCommand(newSettingsCmd(deps, publish))

	return rootCmd
}

// publishFunc sends one hook envelope over the --nats-url connection.
type publishFunc func(cmd *cobra.Command, env bus.Envelope) error

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
