package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// BiasClient provides a client interface to the bias engine
type BiasClient interface {
	// Audits
	RunAudit(ctx context.Context, model, backend string, sampleSize int, seed int64) (*AuditResponse, error)

	// Capability discovery
	DetectCapabilities(ctx context.Context) (*CapabilitiesResponse, error)

	// Health
	CheckHealth(ctx context.Context) (*HealthStatus, error)

	// Lifecycle
	Close() error
}

// NATSBiasClient implements BiasClient over NATS
type NATSBiasClient struct {
	conn     *nats.Conn
	clientID string
	service  string
	timeout  time.Duration
}

// NewNATSClient creates a new NATS-based bias engine client. Audit runs can
// take minutes; the default timeout reflects that.
func NewNATSClient(natsURL, clientID string) (BiasClient, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if clientID == "" {
		clientID = "bias-client"
	}

	return &NATSBiasClient{
		conn:     conn,
		clientID: clientID,
		service:  "bias-engine",
		timeout:  10 * time.Minute,
	}, nil
}

// RunAudit submits an audit run to the work queue and waits for the reply.
func (c *NATSBiasClient) RunAudit(ctx context.Context, model, backend string, sampleSize int, seed int64) (*AuditResponse, error) {
	topic := fmt.Sprintf("bias.audit.request.%s", model)

	reqID := ulid.Make().String()
	replySubject := fmt.Sprintf("bias.audit.reply.%s.%s", c.clientID, reqID)

	request := AuditRequest{
		ReqID:      reqID,
		ModelID:    model,
		Backend:    backend,
		SampleSize: sampleSize,
		Seed:       seed,
		ReplyTo:    replySubject,
	}

	slog.Debug("Sending audit request",
		"topic", topic,
		"req_id", reqID,
		"reply_subject", replySubject)

	requestBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Subscribe to reply subject before publishing
	replyChan := make(chan *nats.Msg, 1)
	sub, err := c.conn.Subscribe(replySubject, func(msg *nats.Msg) {
		replyChan <- msg
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.conn.Publish(topic, requestBytes); err != nil {
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	select {
	case msg := <-replyChan:
		slog.Debug("Received audit response",
			"req_id", reqID,
			"response_size", len(msg.Data))

		var response AuditResponse
		if err := json.Unmarshal(msg.Data, &response); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if response.Error != "" {
			return &response, fmt.Errorf("audit failed: %s", response.Error)
		}
		return &response, nil

	case <-time.After(c.timeout):
		return nil, fmt.Errorf("audit timeout after %v", c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DetectCapabilities asks the engine for its ranked capability list.
func (c *NATSBiasClient) DetectCapabilities(ctx context.Context) (*CapabilitiesResponse, error) {
	topic := "bias.capabilities.detect"

	reqID := ulid.Make().String()
	replySubject := fmt.Sprintf("bias.capabilities.reply.%s.%s", c.clientID, reqID)

	request := map[string]interface{}{
		"req_id":   reqID,
		"reply_to": replySubject,
	}

	requestBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detection request: %w", err)
	}

	replyChan := make(chan *nats.Msg, 1)
	sub, err := c.conn.Subscribe(replySubject, func(msg *nats.Msg) {
		replyChan <- msg
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to detection reply: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.conn.Publish(topic, requestBytes); err != nil {
		return nil, fmt.Errorf("failed to publish detection request: %w", err)
	}

	select {
	case msg := <-replyChan:
		var response CapabilitiesResponse
		if err := json.Unmarshal(msg.Data, &response); err != nil {
			return nil, fmt.Errorf("failed to parse detection response: %w", err)
		}
		return &response, nil

	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("capability detection timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CheckHealth checks if the engine is up.
func (c *NATSBiasClient) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	healthTopic := fmt.Sprintf("%s.health", c.service)

	msg, err := c.conn.RequestWithContext(ctx, healthTopic, nil)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	var health HealthStatus
	if err := json.Unmarshal(msg.Data, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return &health, nil
}

// Close closes the NATS connection
func (c *NATSBiasClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// SetTimeout configures request timeout
func (c *NATSBiasClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}
