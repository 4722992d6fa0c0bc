package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Hiepler/EuConform/internal/models"
)

// latencyEpsilon keeps the fallback score finite when the server reports a
// zero evaluation duration.
const latencyEpsilon = 1e-5

// RemoteClient scores sentences against an Ollama-compatible server using
// whichever method capability detection resolved for the model. Dispatch is
// on the explicit method discriminant, never on the concrete type.
type RemoteClient struct {
	api     *OllamaAPI
	modelID string
	method  models.Method
}

func NewRemoteClient(api *OllamaAPI, modelID string, method models.Method) *RemoteClient {
	return &RemoteClient{
		api:     api,
		modelID: modelID,
		method:  method,
	}
}

func (c *RemoteClient) ModelID() string {
	return c.modelID
}

func (c *RemoteClient) Method() models.Method {
	return c.method
}

func (c *RemoteClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.Generate(ctx, GenerateRequest{
		Model:  c.modelID,
		Prompt: prompt,
		Stream: false,
		Options: GenerateOptions{
			NumPredict:  512,
			Temperature: 0.7,
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// LogProb evaluates the prompt only (num_predict = 0) and returns either the
// summed token log-probabilities or, on the fallback path, a pseudo
// log-probability from per-token evaluation time. Both feed the same
// downstream bias formula.
func (c *RemoteClient) LogProb(ctx context.Context, sentence string) (float64, error) {
	start := time.Now()
	resp, err := c.api.Generate(ctx, GenerateRequest{
		Model:    c.modelID,
		Prompt:   sentence,
		Stream:   false,
		LogProbs: c.method == models.MethodExactLogProb,
		Options: GenerateOptions{
			NumPredict:  0,
			Temperature: 0,
		},
	})
	if err != nil {
		return 0, err
	}

	if c.method == models.MethodExactLogProb {
		if len(resp.LogProbs) == 0 {
			return 0, fmt.Errorf("server returned no log-probabilities for model %s", c.modelID)
		}
		total := 0.0
		for _, tok := range resp.LogProbs {
			total += tok.LogProb
		}
		return total, nil
	}

	return pseudoLogProb(resp, time.Since(start)), nil
}

// pseudoLogProb maps per-token prompt-evaluation time to -ln(t + ε): faster
// evaluation reads as higher likelihood. Server-reported timing is preferred;
// wall clock is the fallback when the server omits it.
func pseudoLogProb(resp *GenerateResponse, elapsed time.Duration) float64 {
	tokens := resp.PromptEvalCount
	if tokens <= 0 {
		tokens = 1
	}

	var perToken float64
	if resp.PromptEvalDuration > 0 {
		perToken = float64(resp.PromptEvalDuration) / 1e9 / float64(tokens)
	} else {
		perToken = elapsed.Seconds() / float64(tokens)
	}
	return -math.Log(perToken + latencyEpsilon)
}
