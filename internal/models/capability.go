package models

import "time"

// Backend identifies where a model runs
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Method is how sentence log-probabilities are obtained from a model
type Method string

const (
	// MethodExactLogProb means the backend exposes real next-token
	// log-probabilities.
	MethodExactLogProb Method = "exact-logprob"
	// MethodLatencyFallback scores sentences by prompt-evaluation timing when
	// exact log-probabilities are not available.
	MethodLatencyFallback Method = "latency-fallback"
)

// Status of a capability detection
type Status string

const (
	StatusDetecting   Status = "detecting"
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusError       Status = "error"
)

// ModelCapability records whether a model+backend pair supports exact
// log-probability queries. Method is only meaningful when Status is available.
// A fresh value is produced per detection; results are superseded, never
// edited in place.
type ModelCapability struct {
	ModelID     string    `json:"model_id"`
	Backend     Backend   `json:"backend"`
	Method      Method    `json:"method,omitempty"`
	Status      Status    `json:"status"`
	LastTested  time.Time `json:"last_tested,omitempty"`
	Error       string    `json:"error,omitempty"`
	Recommended bool      `json:"recommended,omitempty"`
}

// CapabilityCacheEntry wraps a detection result with its freshness bounds.
// Invariant: ExpiresAt > CachedAt.
type CapabilityCacheEntry struct {
	Capability ModelCapability `json:"capability"`
	CachedAt   time.Time       `json:"cached_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Expired reports whether the entry is stale at the given instant.
func (e CapabilityCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
