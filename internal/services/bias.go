package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Hiepler/EuConform/internal/bias"
	"github.com/Hiepler/EuConform/internal/config"
	"github.com/Hiepler/EuConform/internal/inference"
	"github.com/Hiepler/EuConform/internal/models"
	"github.com/Hiepler/EuConform/internal/repository"
)

// AuditRequest asks for one bias-test run against a model.
type AuditRequest struct {
	TraceID    string `json:"trace_id,omitempty"`
	ReqID      string `json:"req_id"`
	ModelID    string `json:"model_id"`
	Backend    string `json:"backend"`
	SampleSize int    `json:"sample_size,omitempty"`
	Seed       int64  `json:"seed,omitempty"`
	ReplyTo    string `json:"reply_to,omitempty"`
}

// AuditResponse carries either a complete result or an error, never a
// partially constructed result.
type AuditResponse struct {
	ReqID      string                     `json:"req_id"`
	RunID      string                     `json:"run_id"`
	Result     *bias.StereotypeBiasResult `json:"result,omitempty"`
	DurationMs int64                      `json:"duration_ms"`
	Error      string                     `json:"error,omitempty"`
}

// RuntimeFactory builds the in-process runtime for a local model id.
type RuntimeFactory func(modelID string) inference.Runtime

// BiasService orchestrates bias-test runs: dataset loading, deterministic
// sampling, method resolution, scoring, and audit logging.
type BiasService struct {
	cfg       *config.Config
	repo      repository.Repository
	detection *DetectionService
	api       *inference.OllamaAPI
	runtimes  RuntimeFactory

	// Local clients are process-wide singletons per model id so the loaded
	// weights are shared by every run.
	mu           sync.Mutex
	localClients map[string]*inference.LocalClient
}

func NewBiasService(cfg *config.Config, repo repository.Repository, detection *DetectionService, api *inference.OllamaAPI, runtimes RuntimeFactory) *BiasService {
	return &BiasService{
		cfg:          cfg,
		repo:         repo,
		detection:    detection,
		api:          api,
		runtimes:     runtimes,
		localClients: make(map[string]*inference.LocalClient),
	}
}

// RunAudit executes one bias-test run end to end and records it in the audit
// log. Per-pair failures are tolerated inside the scorer; dataset validation
// failures and all-pairs-failed surface as errors here.
func (s *BiasService) RunAudit(ctx context.Context, req AuditRequest, source, workerID string) (*AuditResponse, error) {
	start := time.Now()
	runID := ulid.Make().String()

	traceID := req.TraceID
	if traceID == "" {
		traceID = req.ReqID
	}

	sampleSize := req.SampleSize
	if sampleSize <= 0 {
		sampleSize = s.cfg.SampleSize
	}
	seed := req.Seed
	if seed == 0 {
		seed = s.cfg.Seed
	}

	result, err := s.runAudit(ctx, req, sampleSize, seed)

	duration := time.Since(start)
	status := "ok"
	errStr := ""
	if err != nil {
		status = "error"
		errStr = err.Error()
	}

	record := &models.RunRecord{
		Timestamp:      start,
		RunID:          runID,
		TraceID:        traceID,
		WorkerID:       workerID,
		Source:         source,
		ModelID:        req.ModelID,
		Backend:        req.Backend,
		Seed:           seed,
		DurationMs:     duration.Milliseconds(),
		Status:         status,
		Error:          errStr,
		PairsRequested: sampleSize,
	}
	if result != nil {
		record.Method = result.Method
		record.PairsRequested = result.PairsRequested
		record.PairsAnalyzed = result.PairsAnalyzed
		record.OverallScore = result.OverallScore
		record.StereotypePct = result.StereotypePct
		record.Severity = string(result.Severity)
		record.Passed = result.Passed
	}
	s.repo.Run().LogRun(ctx, record)

	response := &AuditResponse{
		ReqID:      req.ReqID,
		RunID:      runID,
		Result:     result,
		DurationMs: duration.Milliseconds(),
		Error:      errStr,
	}

	if err == nil {
		slog.Info("Bias audit completed",
			"run_id", runID,
			"model", req.ModelID,
			"pairs_analyzed", result.PairsAnalyzed,
			"overall_score", result.OverallScore,
			"severity", result.Severity,
			"duration_ms", duration.Milliseconds())
	} else {
		slog.Error("Bias audit failed",
			"run_id", runID,
			"model", req.ModelID,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	}

	return response, err
}

func (s *BiasService) runAudit(ctx context.Context, req AuditRequest, sampleSize int, seed int64) (*bias.StereotypeBiasResult, error) {
	backend := models.Backend(req.Backend)
	if backend != models.BackendLocal && backend != models.BackendRemote {
		return nil, fmt.Errorf("unknown backend %q", req.Backend)
	}
	if req.ModelID == "" {
		return nil, errors.New("model_id is required")
	}

	pairs, err := bias.LoadDataset(s.cfg.DatasetPath)
	if err != nil {
		return nil, err
	}
	sample := bias.SamplePairs(pairs, sampleSize, uint32(seed))

	method, err := s.detection.ResolveMethod(ctx, req.ModelID, backend)
	if err != nil {
		return nil, fmt.Errorf("capability resolution failed for %s: %w", req.ModelID, err)
	}

	client, err := s.clientFor(req.ModelID, backend, method)
	if err != nil {
		return nil, err
	}

	scorer := bias.NewScorer(client, bias.ScorerOptions{
		Backend:   string(backend),
		Method:    string(method),
		BatchSize: s.cfg.BatchSize,
		OnProgress: func(completed, total int) {
			slog.Debug("Bias test progress", "model", req.ModelID, "completed", completed, "total", total)
		},
	})
	return scorer.Run(ctx, sample)
}

func (s *BiasService) clientFor(modelID string, backend models.Backend, method models.Method) (inference.Client, error) {
	if backend == models.BackendRemote {
		return inference.NewRemoteClient(s.api, modelID, method), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.localClients[modelID]; ok {
		return client, nil
	}
	if s.runtimes == nil {
		return nil, inference.ErrRuntimeUnavailable
	}
	client := inference.NewLocalClient(modelID, s.runtimes(modelID))
	s.localClients[modelID] = client
	return client, nil
}

// GetRuns retrieves the audit log through the repository interface.
func (s *BiasService) GetRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	return s.repo.Run().GetRuns(ctx, limit)
}

// GetRepository returns the repository for use by other services
func (s *BiasService) GetRepository() repository.Repository {
	return s.repo
}
