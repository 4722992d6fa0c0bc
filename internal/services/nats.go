package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Hiepler/EuConform/internal/config"
)

// generateWorkerID creates a unique worker ID using timestamp and random bytes
func generateWorkerID() string {
	timestamp := time.Now().UnixNano()
	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)
	randomHex := hex.EncodeToString(randomBytes)
	return fmt.Sprintf("worker-%d-%s", timestamp, randomHex)
}

// detectRequest is the payload on the capability-detection subject.
type detectRequest struct {
	ReqID   string `json:"req_id"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// NATSService exposes the bias engine over NATS: a JetStream work queue for
// audit runs and a plain request/reply subject for capability detection.
type NATSService struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	bias       *BiasService
	detection  *DetectionService
	cfg        *config.Config
	monitoring *MonitoringService
}

func NewNATSService(cfg *config.Config, biasService *BiasService, detection *DetectionService) (*NATSService, error) {
	conn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSService{
		conn:       conn,
		js:         js,
		bias:       biasService,
		detection:  detection,
		cfg:        cfg,
		monitoring: NewMonitoringService(conn, cfg),
	}, nil
}

func (s *NATSService) Start(ctx context.Context) error {
	if err := s.ensureStream(); err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	consumer, err := s.createConsumer()
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if err := s.subscribeDetection(ctx); err != nil {
		return err
	}

	slog.Info("NATS service starting",
		"stream", s.cfg.Stream,
		"subject", s.cfg.Subject,
		"consumer", s.cfg.Durable,
		"concurrency", s.cfg.Concurrency)

	go s.monitoring.Start(ctx)

	for i := 0; i < s.cfg.Concurrency; i++ {
		workerID := generateWorkerID()
		go s.worker(ctx, consumer, workerID)
	}

	<-ctx.Done()
	slog.Info("NATS service shutting down")

	s.conn.Close()
	return nil
}

func (s *NATSService) ensureStream() error {
	streamInfo, err := s.js.StreamInfo(s.cfg.Stream)
	if err != nil {
		if err == nats.ErrStreamNotFound {
			_, err = s.js.AddStream(&nats.StreamConfig{
				Name:      s.cfg.Stream,
				Subjects:  []string{s.cfg.Subject},
				MaxMsgs:   int64(s.cfg.MaxMsgs),
				MaxAge:    s.cfg.MaxAge,
				Storage:   nats.FileStorage,
				Retention: nats.WorkQueuePolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create stream: %w", err)
			}
			slog.Info("Created NATS stream", "name", s.cfg.Stream)
			return nil
		}
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	hasSubject := false
	for _, subject := range streamInfo.Config.Subjects {
		if subject == s.cfg.Subject {
			hasSubject = true
			break
		}
	}

	if !hasSubject {
		newConfig := streamInfo.Config
		newConfig.Subjects = append(newConfig.Subjects, s.cfg.Subject)
		_, err = s.js.UpdateStream(&newConfig)
		if err != nil {
			return fmt.Errorf("failed to update stream with new subject: %w", err)
		}
		slog.Info("Updated NATS stream with new subject", "name", s.cfg.Stream, "subject", s.cfg.Subject)
	} else {
		slog.Info("NATS stream already exists", "name", s.cfg.Stream, "messages", streamInfo.State.Msgs)
	}

	return nil
}

func (s *NATSService) createConsumer() (*nats.Subscription, error) {
	sub, err := s.js.PullSubscribe(s.cfg.Subject, s.cfg.Durable, nats.ManualAck())
	if err != nil {
		return nil, fmt.Errorf("failed to create pull consumer: %w", err)
	}

	slog.Info("Created NATS consumer", "durable", s.cfg.Durable)
	return sub, nil
}

// subscribeDetection answers capability-detection requests outside the work
// queue; detection is cache-backed and cheap relative to an audit run.
func (s *NATSService) subscribeDetection(ctx context.Context) error {
	topic := "bias.capabilities.detect"

	_, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		var req detectRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Error("Failed to parse detection request", "error", err)
			return
		}

		caps := s.detection.DetectAll(ctx)
		data, err := json.Marshal(map[string]interface{}{
			"req_id":       req.ReqID,
			"capabilities": caps,
		})
		if err != nil {
			slog.Error("Failed to marshal detection response", "error", err)
			return
		}

		replyTo := req.ReplyTo
		if replyTo == "" {
			replyTo = msg.Reply
		}
		if replyTo == "" {
			return
		}
		if err := s.conn.Publish(replyTo, data); err != nil {
			slog.Error("Failed to publish detection response", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to detection topic: %w", err)
	}

	slog.Info("Capability detection subject ready", "topic", topic)
	return nil
}

func (s *NATSService) worker(ctx context.Context, consumer *nats.Subscription, workerID string) {
	slog.Info("NATS worker starting", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("NATS worker shutting down", "worker_id", workerID)
			return
		default:
			msgs, err := consumer.Fetch(1, nats.MaxWait(time.Second))
			if err != nil {
				if err == nats.ErrTimeout {
					continue // Normal timeout, continue polling
				}
				slog.Error("Failed to fetch messages", "worker_id", workerID, "error", err)
				time.Sleep(time.Second) // Back off on error
				continue
			}

			for _, msg := range msgs {
				s.monitoring.IncrementPending()
				s.processAuditMessage(ctx, msg, workerID)
				s.monitoring.DecrementPending()
			}
		}
	}
}

func (s *NATSService) processAuditMessage(ctx context.Context, msg *nats.Msg, workerID string) {
	s.monitoring.IncrementActive()
	defer s.monitoring.DecrementActive()

	start := time.Now()

	var req AuditRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		slog.Error("Failed to parse audit request",
			"worker_id", workerID,
			"error", err,
			"data", string(msg.Data))
		msg.Nak()
		return
	}

	if req.TraceID == "" {
		req.TraceID = req.ReqID
	}

	slog.Debug("Processing NATS audit request",
		"worker_id", workerID,
		"req_id", req.ReqID,
		"trace_id", req.TraceID,
		"model", req.ModelID,
		"subject", msg.Subject)

	response, err := s.bias.RunAudit(
		ctx,
		req,
		fmt.Sprintf("nats.%s", msg.Subject),
		workerID,
	)

	responseData, marshalErr := json.Marshal(response)
	if marshalErr != nil {
		slog.Error("Failed to marshal audit response",
			"worker_id", workerID,
			"req_id", req.ReqID,
			"error", marshalErr)
		msg.Nak()
		return
	}

	// Use reply_to from the message payload, not msg.Reply.
	if req.ReplyTo != "" {
		if publishErr := s.conn.Publish(req.ReplyTo, responseData); publishErr != nil {
			slog.Error("Failed to publish audit response",
				"worker_id", workerID,
				"req_id", req.ReqID,
				"reply_subject", req.ReplyTo,
				"error", publishErr)
		}
	}

	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("Failed to acknowledge message",
			"worker_id", workerID,
			"req_id", req.ReqID,
			"error", ackErr)
	}

	duration := time.Since(start)

	if err == nil {
		slog.Info("NATS audit completed",
			"worker_id", workerID,
			"req_id", req.ReqID,
			"run_id", response.RunID,
			"duration_ms", duration.Milliseconds(),
			"pairs_analyzed", response.Result.PairsAnalyzed)
	} else {
		slog.Error("NATS audit failed",
			"worker_id", workerID,
			"req_id", req.ReqID,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	}
}

func (s *NATSService) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

func (s *NATSService) GetConnection() *nats.Conn {
	return s.conn
}

func (s *NATSService) GetMonitoringService() *MonitoringService {
	return s.monitoring
}
