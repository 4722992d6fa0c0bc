package capability

import (
	"context"
	"log/slog"
	"time"

	"github.com/Hiepler/EuConform/internal/inference"
	"github.com/Hiepler/EuConform/internal/models"
)

// probePrompt is the canonical short prompt every capability probe sends.
const probePrompt = "The sky is"

// Prober answers, for a single remote model, whether exact log-probabilities
// are obtainable. Every call returns a fresh ModelCapability; probe results
// never mutate prior ones.
type Prober struct {
	api *inference.OllamaAPI
}

func NewProber(api *inference.OllamaAPI) *Prober {
	return &Prober{api: api}
}

// Probe sends one generate call with the log-probability flag and a single
// predicted token. A non-empty logprobs array means exact-logprob; a clean
// response without one resolves to latency-fallback, which is a supported
// method, not an error.
func (p *Prober) Probe(ctx context.Context, modelID string) (models.ModelCapability, error) {
	resp, err := p.api.Generate(ctx, inference.GenerateRequest{
		Model:    modelID,
		Prompt:   probePrompt,
		Stream:   false,
		LogProbs: true,
		Options: inference.GenerateOptions{
			NumPredict:  1,
			Temperature: 0,
		},
	})
	if err != nil {
		return models.ModelCapability{
			ModelID:    modelID,
			Backend:    models.BackendRemote,
			Status:     models.StatusError,
			LastTested: time.Now(),
			Error:      err.Error(),
		}, err
	}

	method := models.MethodLatencyFallback
	if len(resp.LogProbs) > 0 {
		method = models.MethodExactLogProb
	}

	slog.Debug("Capability probe completed",
		"model", modelID,
		"method", method,
		"logprob_tokens", len(resp.LogProbs))

	return models.ModelCapability{
		ModelID:    modelID,
		Backend:    models.BackendRemote,
		Method:     method,
		Status:     models.StatusAvailable,
		LastTested: time.Now(),
	}, nil
}

// LocalCapability builds the capability for an in-process model. Local
// runtimes expose full output distributions, so no probe is needed and the
// method is always exact-logprob.
func LocalCapability(modelID string) models.ModelCapability {
	return models.ModelCapability{
		ModelID:    modelID,
		Backend:    models.BackendLocal,
		Method:     models.MethodExactLogProb,
		Status:     models.StatusAvailable,
		LastTested: time.Now(),
	}
}
