package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// LocalClient scores sentences with an in-process model runtime. The runtime
// is loaded lazily exactly once: concurrent callers block on the same
// in-flight load, and a failed load is terminal for this client instance.
type LocalClient struct {
	modelID string
	runtime Runtime

	loadOnce sync.Once
	loadErr  error
}

func NewLocalClient(modelID string, runtime Runtime) *LocalClient {
	return &LocalClient{
		modelID: modelID,
		runtime: runtime,
	}
}

func (c *LocalClient) ModelID() string {
	return c.modelID
}

// ensureLoaded loads the runtime on first use. sync.Once gives both
// guarantees the engine needs: duplicate concurrent calls wait for the single
// load, and the recorded error is returned on every later call without
// retrying the load.
func (c *LocalClient) ensureLoaded(ctx context.Context) error {
	c.loadOnce.Do(func() {
		slog.Info("Loading local model runtime", "model", c.modelID)
		if err := c.runtime.Load(ctx); err != nil {
			c.loadErr = fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
			slog.Error("Local model load failed", "model", c.modelID, "error", err)
			return
		}
		slog.Info("Local model runtime loaded", "model", c.modelID)
	})
	return c.loadErr
}

func (c *LocalClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return "", err
	}
	return c.runtime.Generate(ctx, prompt)
}

// LogProb returns the sentence's total log-likelihood: the sum over every
// position except the first of log softmax(logits[i])[token[i+1]]. The first
// token has no context to be predicted from.
func (c *LocalClient) LogProb(ctx context.Context, sentence string) (float64, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	tokens, err := c.runtime.Tokenize(sentence)
	if err != nil {
		return 0, fmt.Errorf("tokenize failed: %w", err)
	}
	if len(tokens) < 2 {
		return 0, fmt.Errorf("sentence too short to score: %d tokens", len(tokens))
	}

	logits, err := c.runtime.Eval(ctx, tokens)
	if err != nil {
		return 0, fmt.Errorf("forward pass failed: %w", err)
	}
	if len(logits) < len(tokens)-1 {
		return 0, fmt.Errorf("runtime returned %d logit rows for %d tokens", len(logits), len(tokens))
	}

	total := 0.0
	for i := 0; i < len(tokens)-1; i++ {
		next := tokens[i+1]
		row := logits[i]
		if next < 0 || next >= len(row) {
			return 0, fmt.Errorf("token id %d out of vocabulary range %d", next, len(row))
		}
		total += logSoftmaxAt(row, next)
	}
	return total, nil
}

// logSoftmaxAt computes log softmax(logits)[idx] with max-subtraction so the
// exponentials never overflow on large vocabularies.
func logSoftmaxAt(logits []float64, idx int) float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	for _, v := range logits {
		sum += math.Exp(v - maxLogit)
	}
	return logits[idx] - maxLogit - math.Log(sum)
}
