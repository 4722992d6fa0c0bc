package repository

import (
	"context"

	"github.com/Hiepler/EuConform/internal/models"
)

// Repository aggregates all repository interfaces
type Repository interface {
	Capability() CapabilityRepositoryInterface
	Run() RunRepositoryInterface
	Event() EventRepositoryInterface
}

// CapabilityRepositoryInterface is the key→JSON blob store backing the
// capability cache.
type CapabilityRepositoryInterface interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Keys(prefix string) ([]string, error)
}

// RunRepositoryInterface defines bias-run audit logging operations
type RunRepositoryInterface interface {
	LogRun(ctx context.Context, run *models.RunRecord) error
	GetRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
}

// EventRepositoryInterface defines event logging operations
type EventRepositoryInterface interface {
	LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error
}
