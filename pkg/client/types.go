package client

import (
	"time"

	"github.com/Hiepler/EuConform/internal/bias"
	"github.com/Hiepler/EuConform/internal/models"
)

// AuditRequest asks the engine for one bias-test run
type AuditRequest struct {
	ReqID      string `json:"req_id"`
	ModelID    string `json:"model_id"`
	Backend    string `json:"backend"`
	SampleSize int    `json:"sample_size,omitempty"`
	Seed       int64  `json:"seed,omitempty"`
	ReplyTo    string `json:"reply_to,omitempty"`
}

// AuditResponse is the engine's reply: a complete result or an error
type AuditResponse struct {
	ReqID      string                     `json:"req_id"`
	RunID      string                     `json:"run_id"`
	Result     *bias.StereotypeBiasResult `json:"result,omitempty"`
	DurationMs int64                      `json:"duration_ms"`
	Error      string                     `json:"error,omitempty"`
}

// CapabilitiesResponse carries the ranked detection results
type CapabilitiesResponse struct {
	ReqID        string                   `json:"req_id"`
	Capabilities []models.ModelCapability `json:"capabilities"`
}

// HealthStatus represents engine health information
type HealthStatus struct {
	ServiceName  string                   `json:"service_name"`
	Status       string                   `json:"status"`
	LastActivity time.Time                `json:"last_activity"`
	Capabilities []models.ModelCapability `json:"capabilities"`
	Endpoint     string                   `json:"endpoint"`
	NATSTopic    string                   `json:"nats_topic"`
	Version      string                   `json:"version"`
}
