package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/meeting/agenda"
	"github.com/mcdev12/flowminder/go/internal/meeting/bus"
	"github.com/mcdev12/flowminder/go/internal/meeting/cooldown"
	"github.com/mcdev12/flowminder/go/internal/meeting/gateway"
	"github.com/mcdev12/flowminder/go/internal/meeting/nudge"
	"github.com/mcdev12/flowminder/go/internal/meeting/repository"
	"github.com/mcdev12/flowminder/go/internal/meeting/rooms"
	"github.com/mcdev12/flowminder/go/internal/meeting/timer"
)

type Services struct {
	Repository *repository.Repository
	Registry   *rooms.Registry
	Cooldowns  *cooldown.Tracker
	Engine     *gateway.Engine
	Gateway    *gateway.Service

	// nil when NATS_URL is unset
	Consumer *bus.Consumer
	Listener *bus.AgendaListener
}

func setupServices(ctx context.Context, cfg *Config, repo *repository.Repository, dsn string) (*Services, error) {
	// Wire up dependency injection chain
	// Repository → Synchronizers → Engine → Gateway
	clock := clockwork.NewRealClock()
	registry := rooms.NewRegistry(clock)
	cooldowns := cooldown.NewTracker(clock, cfg.NudgeCooldown)

	agendaSync := agenda.NewSynchronizer(repo, registry, clock)
	timerSync := timer.NewSynchronizer(repo, registry, clock)
	nudgeSync := nudge.NewSynchronizer(repo, registry, cooldowns, clock)

	engine := &gateway.Engine{
		Agenda: agendaSync,
		Timer:  timerSync,
		Nudge:  nudgeSync,
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.CommandTimeout = cfg.CommandTimeout
	gatewayConfig.IdleTimeout = cfg.IdleTimeout
	gatewayConfig.JanitorInterval = cfg.JanitorInterval
	gatewayConfig.ConnectionConfig.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	gatewayConfig.ConnectionConfig.SendBufferSize = cfg.WebSocket.SendBufferSize
	gatewayConfig.ConnectionConfig.PingInterval = cfg.WebSocket.PingInterval
	gatewayConfig.ConnectionConfig.ReadTimeout = cfg.WebSocket.ReadTimeout
	gatewayConfig.ConnectionConfig.WriteTimeout = cfg.WebSocket.WriteTimeout

	services := &Services{
		Repository: repo,
		Registry:   registry,
		Cooldowns:  cooldowns,
		Engine:     engine,
		Gateway:    gateway.NewService(gatewayConfig, engine, registry, clock, agendaSync, timerSync, nudgeSync),
	}

	listenerConfig := bus.DefaultListenerConfig()
	listenerConfig.DatabaseURL = dsn
	listenerConfig.NotifyChannel = cfg.AgendaNotifyChannel
	listener, err := bus.NewAgendaListener(engine, clock, listenerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create agenda listener: %w", err)
	}
	services.Listener = listener

	if cfg.NATSURL != "" {
		consumerConfig := bus.DefaultConsumerConfig()
		consumerConfig.URL = cfg.NATSURL
		consumer, err := bus.NewConsumer(ctx, engine, clock, consumerConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create hook consumer: %w", err)
		}
		services.Consumer = consumer
	}

	return services, nil
}

// Close releases everything setupServices opened. The listener closes itself when its
// context ends.
func (s *Services) Close() {
	if s.Consumer != nil {
		s.Consumer.Close()
	}
	s.Cooldowns.Stop()
	s.Repository.Close()
}
