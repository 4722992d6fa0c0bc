package repository

import (
	"context"
	"time"

	"github.com/Hiepler/EuConform/internal/models"
	"github.com/Hiepler/EuConform/internal/store"
)

// SQLiteRepository implements Repository interface using SQLite
type SQLiteRepository struct {
	db             *store.DB
	capabilityRepo CapabilityRepositoryInterface
	runRepo        RunRepositoryInterface
	eventRepo      EventRepositoryInterface
}

func NewSQLiteRepository(db *store.DB) Repository {
	return &SQLiteRepository{
		db:             db,
		capabilityRepo: &SQLiteCapabilityRepository{db: db},
		runRepo:        &SQLiteRunRepository{db: db},
		eventRepo:      &SQLiteEventRepository{db: db},
	}
}

func (r *SQLiteRepository) Capability() CapabilityRepositoryInterface {
	return r.capabilityRepo
}

func (r *SQLiteRepository) Run() RunRepositoryInterface {
	return r.runRepo
}

func (r *SQLiteRepository) Event() EventRepositoryInterface {
	return r.eventRepo
}

// SQLiteCapabilityRepository persists capability cache entries as JSON blobs
type SQLiteCapabilityRepository struct {
	db *store.DB
}

func (r *SQLiteCapabilityRepository) Get(key string) ([]byte, bool, error) {
	return r.db.BlobGet(key)
}

func (r *SQLiteCapabilityRepository) Set(key string, value []byte) error {
	return r.db.BlobSet(key, value)
}

func (r *SQLiteCapabilityRepository) Remove(key string) error {
	return r.db.BlobRemove(key)
}

func (r *SQLiteCapabilityRepository) Keys(prefix string) ([]string, error) {
	return r.db.BlobKeys(prefix)
}

// SQLiteRunRepository handles bias-run audit logging
type SQLiteRunRepository struct {
	db *store.DB
}

func (r *SQLiteRunRepository) LogRun(ctx context.Context, run *models.RunRecord) error {
	r.db.Run(
		run.Timestamp,
		run.RunID,
		run.TraceID,
		run.WorkerID,
		run.Source,
		run.ModelID,
		run.Backend,
		run.Method,
		run.PairsRequested,
		run.PairsAnalyzed,
		run.Seed,
		run.OverallScore,
		run.StereotypePct,
		run.Severity,
		run.Passed,
		time.Duration(run.DurationMs)*time.Millisecond,
		run.Status,
		run.Error,
	)
	return nil
}

func (r *SQLiteRunRepository) GetRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	rows, err := r.db.Query(`SELECT ts,run_id,trace_id,worker_id,source,model_id,backend,method,pairs_requested,pairs_analyzed,seed,overall_score,stereotype_pct,severity,passed,dur_ms,status,error FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		var run models.RunRecord
		var tsFloat, durFloat float64
		var passedInt int

		if err := rows.Scan(
			&tsFloat, &run.RunID, &run.TraceID, &run.WorkerID, &run.Source,
			&run.ModelID, &run.Backend, &run.Method, &run.PairsRequested,
			&run.PairsAnalyzed, &run.Seed, &run.OverallScore, &run.StereotypePct,
			&run.Severity, &passedInt, &durFloat, &run.Status, &run.Error,
		); err == nil {
			run.Timestamp = time.Unix(0, int64(tsFloat*1e9))
			run.Passed = passedInt != 0
			run.DurationMs = int64(durFloat)
			runs = append(runs, &run)
		}
	}

	return runs, nil
}

// SQLiteEventRepository handles event logging
type SQLiteEventRepository struct {
	db *store.DB
}

func (r *SQLiteEventRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	r.db.Event(level, code, msg, meta)
	return nil
}
