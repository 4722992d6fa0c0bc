package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Hiepler/EuConform/internal/config"
	"github.com/Hiepler/EuConform/internal/models"
)

type HealthService struct {
	nats      *nats.Conn
	config    *config.Config
	detection *DetectionService
}

type HealthStatus struct {
	ServiceName  string                   `json:"service_name"`
	Status       string                   `json:"status"` // online, offline, busy
	LastActivity time.Time                `json:"last_activity"`
	Capabilities []models.ModelCapability `json:"capabilities"`
	Endpoint     string                   `json:"endpoint"`
	NATSTopic    string                   `json:"nats_topic"`
	Version      string                   `json:"version"`
}

func NewHealthService(natsConn *nats.Conn, cfg *config.Config, detection *DetectionService) *HealthService {
	return &HealthService{
		nats:      natsConn,
		config:    cfg,
		detection: detection,
	}
}

func (h *HealthService) Start(ctx context.Context) error {
	healthTopic := fmt.Sprintf("%s.health", h.config.ServiceName)

	_, err := h.nats.Subscribe(healthTopic, func(msg *nats.Msg) {
		status := h.getHealthStatus(ctx)

		statusData, err := json.Marshal(status)
		if err != nil {
			slog.Error("Failed to marshal health status", "error", err)
			return
		}

		if err := msg.Respond(statusData); err != nil {
			slog.Error("Failed to respond to health check", "error", err)
		}
	})

	if err != nil {
		return fmt.Errorf("failed to subscribe to health topic: %w", err)
	}

	slog.Info("Health service started", "topic", healthTopic)

	go h.publishHeartbeats(ctx)

	return nil
}

func (h *HealthService) publishHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	heartbeatTopic := fmt.Sprintf("%s.heartbeat", h.config.ServiceName)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := h.getHealthStatus(ctx)
			statusData, err := json.Marshal(status)
			if err != nil {
				continue
			}

			if err := h.nats.Publish(heartbeatTopic, statusData); err != nil {
				slog.Warn("Failed to publish heartbeat", "error", err)
			}
		}
	}
}

// getHealthStatus reports the ranked capability list alongside liveness; the
// detection service serves it from cache between expiries, so heartbeats do
// not hammer the remote server.
func (h *HealthService) getHealthStatus(ctx context.Context) HealthStatus {
	return HealthStatus{
		ServiceName:  h.config.ServiceName,
		Status:       "online",
		LastActivity: time.Now(),
		Capabilities: h.detection.DetectAll(ctx),
		Endpoint:     fmt.Sprintf("http://localhost%s", h.config.HTTPAddr),
		NATSTopic:    h.config.Subject,
		Version:      "1.0.0",
	}
}
