package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/meeting/rooms"
	"github.com/rs/zerolog/log"
)

// Evictor drops per-meeting state that has been idle for too long
type Evictor interface {
	EvictIdle(maxIdle time.Duration) int
}

// Service is the meeting gateway: websocket transport, command dispatch, HTTP hooks and the
// idle janitor
type Service struct {
	config            Config
	clock             clockwork.Clock
	engine            *Engine
	registry          *rooms.Registry
	dispatcher        *Dispatcher
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	evictors          []Evictor
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	CommandTimeout   time.Duration
	IdleTimeout      time.Duration
	JanitorInterval  time.Duration
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		CommandTimeout:   DefaultCommandTimeout,
		IdleTimeout:      30 * time.Minute,
		JanitorInterval:  time.Minute,
	}
}

// NewService creates a new gateway service. evictors are swept by the janitor.
func NewService(config Config, engine *Engine, registry *rooms.Registry, clock clockwork.Clock, evictors ...Evictor) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	dispatcher := NewDispatcher(engine, registry, clock, config.CommandTimeout)
	connectionManager := NewConnectionManager(config.ConnectionConfig, registry, dispatcher)

	return &Service{
		config:            config,
		clock:             clock,
		engine:            engine,
		registry:          registry,
		dispatcher:        dispatcher,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(engine),
		evictors:          evictors,
	}
}

// Start runs the connection manager and the janitor until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting meeting gateway service")

	go s.connectionManager.Start(ctx)

	if s.config.JanitorInterval > 0 && s.config.IdleTimeout > 0 {
		ticker := s.clock.NewTicker(s.config.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("meeting gateway service shutting down")
				return nil
			case <-ticker.Chan():
				s.Sweep()
			}
		}
	}

	<-ctx.Done()
	log.Info().Msg("meeting gateway service shutting down")
	return nil
}

// Sweep runs one janitor pass and returns how many meeting states were dropped
func (s *Service) Sweep() int {
	total := 0
	for _, e := range s.evictors {
		total += e.EvictIdle(s.config.IdleTimeout)
	}
	if total > 0 {
		log.Info().Int("evicted", total).Dur("idle_timeout", s.config.IdleTimeout).Msg("evicted idle meeting state")
	}
	return total
}

// RegisterRoutes registers the WebSocket and HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("meeting gateway routes registered")
}

// Dispatcher exposes the command dispatcher
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "meeting_gateway"
	stats["status"] = "running"
	return stats
}
