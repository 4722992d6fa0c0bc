package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/Hiepler/EuConform/internal/capability"
	"github.com/Hiepler/EuConform/internal/config"
	"github.com/Hiepler/EuConform/internal/inference"
	"github.com/Hiepler/EuConform/internal/models"
	"github.com/Hiepler/EuConform/internal/retry"
)

// DetectionService produces the ranked capability list across every known
// model: local variants first (no probe), then remote models probed
// concurrently with cache-first lookup, timeout, and bounded retry.
type DetectionService struct {
	cfg    *config.Config
	api    *inference.OllamaAPI
	prober *capability.Prober
	cache  *capability.Cache
	policy retry.Policy
}

func NewDetectionService(cfg *config.Config, api *inference.OllamaAPI, cache *capability.Cache) *DetectionService {
	return &DetectionService{
		cfg:    cfg,
		api:    api,
		prober: capability.NewProber(api),
		cache:  cache,
		policy: retry.Policy{
			MaxAttempts:  cfg.ProbeMaxAttempts,
			BaseDelay:    cfg.ProbeBaseDelay,
			Multiplier:   2.0,
			MaxDelay:     cfg.ProbeTimeout,
			NonRetryable: nonRetryableProbe,
		},
	}
}

func nonRetryableProbe(err error) bool {
	return errors.Is(err, inference.ErrModelNotFound) || errors.Is(err, inference.ErrPermissionDenied)
}

// DetectAll returns capabilities for every known model, ranked. Failures are
// represented as error-status entries, never dropped. An unreachable remote
// server is an expected configuration and yields local-only results.
func (s *DetectionService) DetectAll(ctx context.Context) []models.ModelCapability {
	var results []models.ModelCapability

	for _, modelID := range s.cfg.LocalModels {
		cap := capability.LocalCapability(modelID)
		s.cache.Put(cap, 0)
		results = append(results, cap)
	}

	remote := s.detectRemote(ctx)
	results = append(results, remote...)

	rankCapabilities(results)
	return results
}

func (s *DetectionService) detectRemote(ctx context.Context) []models.ModelCapability {
	if err := s.api.Ping(ctx, s.cfg.ReachabilityTimeout); err != nil {
		slog.Info("Remote inference server unreachable, using local backends only",
			"url", s.cfg.OllamaURL, "error", err)
		return nil
	}

	modelIDs, err := s.api.ListModels(ctx)
	if err != nil {
		slog.Warn("Failed to enumerate remote models", "error", err)
		return nil
	}

	results := make([]models.ModelCapability, len(modelIDs))
	var wg sync.WaitGroup
	for i, modelID := range modelIDs {
		wg.Add(1)
		go func(i int, modelID string) {
			defer wg.Done()
			results[i] = s.DetectModel(ctx, modelID)
		}(i, modelID)
	}
	wg.Wait()

	return results
}

// DetectModel resolves one remote model's capability: cached entry if fresh,
// otherwise a probe with per-attempt timeout and bounded retry. Every
// terminal outcome is cached; error TTLs are short so transient faults are
// re-probed quickly.
func (s *DetectionService) DetectModel(ctx context.Context, modelID string) models.ModelCapability {
	if entry, ok := s.cache.Get(modelID); ok {
		slog.Debug("Capability cache hit", "model", modelID, "method", entry.Capability.Method)
		return entry.Capability
	}

	var cap models.ModelCapability
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		defer cancel()

		var probeErr error
		cap, probeErr = s.prober.Probe(probeCtx, modelID)
		return probeErr
	})

	if err != nil {
		slog.Warn("Capability probe failed", "model", modelID, "error", err)
	}

	if putErr := s.cache.Put(cap, 0); putErr != nil {
		slog.Warn("Failed to cache capability", "model", modelID, "error", putErr)
	}
	return cap
}

// rankCapabilities orders results for recommendation: local exact-logprob,
// then remote exact-logprob, then remote fallback, then everything that is
// not available. Ranking sets the Recommended flag and the ordering; no entry
// is dropped.
func rankCapabilities(caps []models.ModelCapability) {
	sort.SliceStable(caps, func(i, j int) bool {
		return capabilityRank(caps[i]) < capabilityRank(caps[j])
	})
	for i := range caps {
		caps[i].Recommended = i == 0 && caps[i].Status == models.StatusAvailable
	}
}

func capabilityRank(cap models.ModelCapability) int {
	if cap.Status != models.StatusAvailable {
		return 3
	}
	switch {
	case cap.Backend == models.BackendLocal:
		return 0
	case cap.Method == models.MethodExactLogProb:
		return 1
	default:
		return 2
	}
}

// ResolveMethod returns the scoring method for a model+backend selection,
// re-detecting if the cache has no fresh entry.
func (s *DetectionService) ResolveMethod(ctx context.Context, modelID string, backend models.Backend) (models.Method, error) {
	if backend == models.BackendLocal {
		return models.MethodExactLogProb, nil
	}

	cap := s.DetectModel(ctx, modelID)
	if cap.Status != models.StatusAvailable {
		if cap.Error != "" {
			return "", errors.New(cap.Error)
		}
		return "", errors.New("model capability unavailable")
	}
	return cap.Method, nil
}
