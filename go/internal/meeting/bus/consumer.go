package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flowminder/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// HookHandler applies hook events to live meeting state.
type HookHandler interface {
	AgendaChanged(ctx context.Context, meetingID string) error
	ParticipantJoined(ctx context.Context, meetingID, userID, displayName string) error
	ParticipantLeft(ctx context.Context, meetingID, userID string) error
	TimerSettingsUpdated(ctx context.Context, meetingID string, settings models.TimerSettings) error
}

// errMalformed marks messages that can never be processed; they are terminated, not retried.
var errMalformed = errors.New("malformed hook event")

// ConsumerConfig holds the durable consumer settings.
type ConsumerConfig struct {
	StreamConfig
	ConsumerName  string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	BufferSize    int
}

// DefaultConsumerConfig returns the gateway's consumer settings.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		StreamConfig:  DefaultStreamConfig(),
		ConsumerName:  "meeting-gateway",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		BufferSize:    100,
	}
}

// message is the part of jetstream.Msg the consumer touches.
type message interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// Consumer reads hook events from JetStream and hands them to a HookHandler.
type Consumer struct {
	handler  HookHandler
	nc       *nats.Conn
	consumer jetstream.Consumer
	config   ConsumerConfig
	clock    clockwork.Clock

	mu        sync.Mutex
	processed uint64
	lastEvent time.Time
}

// NewConsumer dials NATS, ensures the stream and binds a durable consumer.
func NewConsumer(ctx context.Context, handler HookHandler, clock clockwork.Clock, cfg ConsumerConfig) (*Consumer, error) {
	nc, js, err := Dial(cfg.StreamConfig)
	if err != nil {
		return nil, err
	}
	if err := EnsureStream(ctx, js, cfg.StreamConfig); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	c := &Consumer{handler: handler, nc: nc, config: cfg, clock: clock}
	if err := c.ensureConsumer(ctx, js); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

func (c *Consumer) ensureConsumer(ctx context.Context, js jetstream.JetStream) error {
	stream, err := js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.Consumer(ctx, c.config.ConsumerName)
	if err == nil {
		log.Info().
			Str("consumer", c.config.ConsumerName).
			Str("stream", c.config.StreamName).
			Msg("using existing JetStream consumer")
		c.consumer = consumer
		return nil
	}

	consumer, err = stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "Meeting gateway hook consumer",
		FilterSubject: c.config.SubjectPrefix + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("created JetStream consumer")
	c.consumer = consumer
	return nil
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", c.config.ConsumerName).
		Str("stream", c.config.StreamName).
		Msg("starting hook consumer")

	messageCh := make(chan jetstream.Msg, c.config.BufferSize)
	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("hook consumer shutting down")
			return nil
		case msg := <-messageCh:
			c.processMessage(ctx, msg)
		}
	}
}

// Connected reports whether the NATS connection is up.
func (c *Consumer) Connected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Stats returns how many hook events were applied and when the last one was.
func (c *Consumer) Stats() (uint64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processed, c.lastEvent
}

// Close closes the NATS connection.
func (c *Consumer) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg message) {
	err := c.handle(ctx, msg.Data())
	switch {
	case err == nil:
		c.mu.Lock()
		c.processed++
		c.lastEvent = c.clock.Now()
		c.mu.Unlock()
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK hook event")
		}
	case errors.Is(err, errMalformed):
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping hook event")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM hook event")
		}
	default:
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process hook event")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK hook event")
		}
	}
}

// handle decodes one envelope and routes it to the handler.
func (c *Consumer) handle(ctx context.Context, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if env.MeetingID == "" {
		return fmt.Errorf("%w: missing meetingId", errMalformed)
	}

	log.Debug().
		Str("event_id", env.EventID).
		Str("event_type", string(env.EventType)).
		Str("meeting_id", env.MeetingID).
		Msg("processing hook event")

	switch env.EventType {
	case EventTypeAgendaChanged:
		return c.handler.AgendaChanged(ctx, env.MeetingID)

	case EventTypeParticipantJoined, EventTypeParticipantLeft:
		var p ParticipantPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.UserID == "" {
			return fmt.Errorf("%w: %s needs a userId", errMalformed, env.EventType)
		}
		if env.EventType == EventTypeParticipantJoined {
			return c.handler.ParticipantJoined(ctx, env.MeetingID, p.UserID, p.DisplayName)
		}
		return c.handler.ParticipantLeft(ctx, env.MeetingID, p.UserID)

	case EventTypeTimerSettingsUpdated:
		var p TimerSettingsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return c.handler.TimerSettingsUpdated(ctx, env.MeetingID, p.TimerSettings.Normalize())

	default:
		return fmt.Errorf("%w: unknown event type %q", errMalformed, env.EventType)
	}
}
