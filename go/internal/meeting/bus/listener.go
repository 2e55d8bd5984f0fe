package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ListenerConfig configures the agenda LISTEN/NOTIFY listener.
type ListenerConfig struct {
	DatabaseURL          string // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel        string
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
}

// DefaultListenerConfig returns listener defaults. DatabaseURL must still be set.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:        "agenda_items_changed",
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
	}
}

// AgendaReloader is notified when agenda rows change outside the gateway. AgendaResync is
// called after a reconnect, when notifications sent while disconnected are gone.
type AgendaReloader interface {
	AgendaChanged(ctx context.Context, meetingID string) error
	AgendaResync(ctx context.Context) error
}

type pinger interface {
	Ping() error
	Close() error
}

// AgendaListener turns agenda_items_changed notifications into agenda reloads.
type AgendaListener struct {
	conn     pinger
	notify   <-chan *pq.Notification
	reloader AgendaReloader
	clock    clockwork.Clock
	cfg      ListenerConfig
}

// NewAgendaListener opens a dedicated lib/pq connection and LISTENs on the notify channel.
func NewAgendaListener(reloader AgendaReloader, clock clockwork.Clock, cfg ListenerConfig) (*AgendaListener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnectInterval,
		cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("agenda listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for agenda notifications")
	return &AgendaListener{
		conn:     l,
		notify:   l.Notify,
		reloader: reloader,
		clock:    clock,
		cfg:      cfg,
	}, nil
}

// Start handles notifications until ctx is cancelled, then closes the connection.
func (l *AgendaListener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Msg("agenda listener started")

	ping := l.clock.NewTicker(l.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("agenda listener shutting down")
			return l.conn.Close()
		case note, ok := <-l.notify:
			if !ok {
				return nil
			}
			if note == nil {
				// lib/pq sends nil after a reconnect; anything in between was missed
				log.Warn().Str("channel", l.cfg.NotifyChannel).Msg("agenda listener reconnected, resyncing")
				if err := l.reloader.AgendaResync(ctx); err != nil {
					log.Error().Err(err).Msg("failed to resync agendas after reconnect")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle agenda notification")
			}
		case <-ping.Chan():
			if err := l.conn.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping agenda listener")
			}
		}
	}
}

// handleNotification reloads the meeting named by the notification payload.
func (l *AgendaListener) handleNotification(ctx context.Context, extra string) error {
	meetingID := strings.TrimSpace(extra)
	if meetingID == "" {
		return errors.New("empty meeting id in notification")
	}
	if err := l.reloader.AgendaChanged(ctx, meetingID); err != nil {
		return fmt.Errorf("reload agenda for %s: %w", meetingID, err)
	}
	log.Debug().Str("meeting_id", meetingID).Msg("agenda reloaded from notification")
	return nil
}
