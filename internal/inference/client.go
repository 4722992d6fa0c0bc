package inference

import (
	"context"
	"errors"
)

// Sentinel errors for the taxonomy callers classify with errors.Is.
var (
	// ErrServiceUnavailable means the remote inference server could not be
	// reached at all (connection refused, DNS failure, reachability timeout).
	ErrServiceUnavailable = errors.New("inference service unavailable")

	// ErrModelNotFound means the server is reachable but the named model is
	// not installed. Not retryable.
	ErrModelNotFound = errors.New("model not found")

	// ErrPermissionDenied means the server rejected the request outright.
	// Not retryable.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTimeout means a single inference or probe call exceeded its bound.
	ErrTimeout = errors.New("inference timeout")

	// ErrRuntimeUnavailable means the in-process model runtime is not
	// compiled in or its weights could not be loaded.
	ErrRuntimeUnavailable = errors.New("local model runtime unavailable")
)

// Client is the uniform contract over the two inference backends. Generate is
// best-effort text completion; LogProb returns the sentence's total
// log-likelihood under the model, or the latency-based proxy for remote
// backends without log-probability support.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	LogProb(ctx context.Context, sentence string) (float64, error)
	ModelID() string
}
