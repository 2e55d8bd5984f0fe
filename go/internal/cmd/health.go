package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     *bool     `json:"nats_connected,omitempty"`
	HooksProcessed    uint64    `json:"hooks_processed"`
	LastHookTime      time.Time `json:"last_hook_time"`
	Connections       any       `json:"connections,omitempty"`
	Errors            []string  `json:"errors"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

type hookConsumer interface {
	Connected() bool
	Stats() (uint64, time.Time)
}

type HealthChecker struct {
	db       pinger
	consumer hookConsumer // nil when the bus is disabled
	stats    func() map[string]interface{}
	timeout  time.Duration
}

func newHealthChecker(services *Services) *HealthChecker {
	h := &HealthChecker{
		db:      services.Repository,
		stats:   services.Gateway.GetStats,
		timeout: 2 * time.Second,
	}
	if services.Consumer != nil {
		h.consumer = services.Consumer
	}
	return h
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.db.Ping(pingCtx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.consumer != nil {
		connected := h.consumer.Connected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
		status.HooksProcessed, status.LastHookTime = h.consumer.Stats()
	}

	if h.stats != nil {
		status.Connections = h.stats()
	}
	return status
}

// ServeHTTP answers 200 when healthy and 503 otherwise.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}
