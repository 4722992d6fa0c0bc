package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// GenerateRequest is the wire request for the remote inference server's
// generate endpoint.
type GenerateRequest struct {
	Model    string          `json:"model"`
	Prompt   string          `json:"prompt"`
	Stream   bool            `json:"stream"`
	LogProbs bool            `json:"logprobs,omitempty"`
	Options  GenerateOptions `json:"options"`
}

type GenerateOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

// TokenLogProb is one token's log-probability as reported by the server.
type TokenLogProb struct {
	Token   string  `json:"token"`
	LogProb float64 `json:"logprob"`
}

// GenerateResponse is the wire response. PromptEvalDuration is in
// nanoseconds; together with PromptEvalCount it is the timing source for the
// latency-fallback scoring path.
type GenerateResponse struct {
	Response           string         `json:"response"`
	LogProbs           []TokenLogProb `json:"logprobs,omitempty"`
	PromptEvalDuration int64          `json:"prompt_eval_duration,omitempty"`
	PromptEvalCount    int            `json:"prompt_eval_count,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaAPI is the HTTP client for an Ollama-compatible inference server.
type OllamaAPI struct {
	baseURL string
	http    *http.Client
}

func NewOllamaAPI(baseURL string, timeout time.Duration) *OllamaAPI {
	return &OllamaAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Ping checks server reachability. Unreachable is an expected configuration
// for local-only deployments, so callers treat ErrServiceUnavailable from
// here as a signal, not a failure.
func (a *OllamaAPI) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

// ListModels enumerates the models installed on the server.
func (a *OllamaAPI) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d listing models", ErrServiceUnavailable, resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to parse model list: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Generate issues one generate call and classifies transport and server
// failures into the engine's error taxonomy.
func (a *OllamaAPI) Generate(ctx context.Context, genReq GenerateRequest) (*GenerateResponse, error) {
	body, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(string(payload)), "not found"):
			return nil, fmt.Errorf("%w: model %q (status %d)", ErrModelNotFound, genReq.Model, resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: status %d", ErrPermissionDenied, resp.StatusCode)
		}
		return nil, fmt.Errorf("generate failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var genResp GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("failed to parse generate response: %w", err)
	}

	slog.Debug("Generate call completed",
		"model", genReq.Model,
		"logprobs", len(genResp.LogProbs),
		"prompt_eval_count", genResp.PromptEvalCount)

	return &genResp, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
