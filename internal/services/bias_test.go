package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Hiepler/EuConform/internal/inference"
	"github.com/Hiepler/EuConform/internal/models"
	"github.com/Hiepler/EuConform/internal/repository"
)

// memoryRepository is an in-memory Repository for service tests.
type memoryRepository struct {
	mu    sync.Mutex
	blobs map[string][]byte
	runs  []*models.RunRecord
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{blobs: make(map[string][]byte)}
}

func (r *memoryRepository) Capability() repository.CapabilityRepositoryInterface { return r }
func (r *memoryRepository) Run() repository.RunRepositoryInterface { return r }
func (r *memoryRepository) Event() repository.EventRepositoryInterface { return r }

func (r *memoryRepository) Get(key string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.blobs[key]
	return v, ok, nil
}

func (r *memoryRepository) Set(key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[key] = value
	return nil
}

func (r *memoryRepository) Remove(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blobs, key)
	return nil
}

func (r *memoryRepository) Keys(prefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for k := range r.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (r *memoryRepository) LogRun(ctx context.Context, run *models.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *memoryRepository) GetRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, nil
}

func (r *memoryRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	return nil
}

// wordRuntime tokenizes one token per whitespace-separated word and scores
// every position with a uniform two-token distribution, so a sentence's
// log-likelihood is -(tokens-1)*ln(2). Shorter sentences score higher.
type wordRuntime struct{}

func (wordRuntime) Load(ctx context.Context) error { return nil }

func (wordRuntime) Tokenize(text string) ([]int, error) {
	words := strings.Fields(text)
	return make([]int, len(words)), nil
}

func (wordRuntime) Eval(ctx context.Context, tokens []int) ([][]float64, error) {
	logits := make([][]float64, len(tokens))
	for i := range logits {
		logits[i] = []float64{0, 0}
	}
	return logits, nil
}

func (wordRuntime) Generate(ctx context.Context, prompt string) (string, error) { return "", nil }

func (wordRuntime) Close() error { return nil }

func writeDataset(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairs.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}
	return path
}

const auditDataset = `[
  {"id": 1, "bias_type": "gender", "stereotype": "short one", "anti_stereotype": "a much longer sentence here"},
  {"id": 2, "bias_type": "gender", "stereotype": "short two", "anti_stereotype": "another much longer sentence here"},
  {"id": 3, "bias_type": "age", "stereotype": "short three", "anti_stereotype": "yet another much longer one"}
]`

func newBiasService(t *testing.T, datasetPath string, repo repository.Repository) *BiasService {
	t.Helper()
	cfg := detectionConfig("http://127.0.0.1:1")
	cfg.DatasetPath = datasetPath
	cfg.SampleSize = 3
	cfg.Seed = 42
	cfg.BatchSize = 10

	api := inference.NewOllamaAPI(cfg.OllamaURL, time.Second)
	detection := newDetection(cfg)
	factory := func(modelID string) inference.Runtime { return wordRuntime{} }
	return NewBiasService(cfg, repo, detection, api, factory)
}

func TestRunAuditLocalEndToEnd(t *testing.T) {
	repo := newMemoryRepository()
	svc := newBiasService(t, writeDataset(t, auditDataset), repo)

	resp, err := svc.RunAudit(context.Background(), AuditRequest{
		ReqID:   "req-1",
		ModelID: "distilgpt2",
		Backend: "local",
	}, "test", "worker-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if resp.RunID == "" {
		t.Error("Expected a run id")
	}
	if resp.Result == nil {
		t.Fatal("Expected a result")
	}
	if resp.Result.PairsAnalyzed != 3 {
		t.Errorf("Expected 3 pairs analyzed, got %d", resp.Result.PairsAnalyzed)
	}
	if resp.Result.Method != string(models.MethodExactLogProb) {
		t.Errorf("Expected exact-logprob method, got %s", resp.Result.Method)
	}
	// Every stereotype sentence is shorter, so preference is total.
	if resp.Result.StereotypePct != 100 {
		t.Errorf("Expected 100%% stereotype preference, got %v", resp.Result.StereotypePct)
	}
	if resp.Result.Passed {
		t.Error("Expected a total-preference run to fail the thresholds")
	}

	runs, _ := repo.GetRuns(context.Background(), 10)
	if len(runs) != 1 {
		t.Fatalf("Expected 1 audit row, got %d", len(runs))
	}
	if runs[0].Status != "ok" || runs[0].RunID != resp.RunID {
		t.Errorf("Audit row does not match the response: %+v", runs[0])
	}
	if runs[0].WorkerID != "worker-1" || runs[0].Source != "test" {
		t.Errorf("Expected provenance on the audit row, got %+v", runs[0])
	}
}

func TestRunAuditRejectsUnknownBackend(t *testing.T) {
	repo := newMemoryRepository()
	svc := newBiasService(t, writeDataset(t, auditDataset), repo)

	resp, err := svc.RunAudit(context.Background(), AuditRequest{
		ReqID:   "req-2",
		ModelID: "m",
		Backend: "cloud",
	}, "test", "worker-1")
	if err == nil {
		t.Fatal("Expected an error for an unknown backend")
	}
	if resp.Error == "" {
		t.Error("Expected the error mirrored in the response")
	}

	// Failed runs are still audited.
	runs, _ := repo.GetRuns(context.Background(), 10)
	if len(runs) != 1 || runs[0].Status != "error" {
		t.Errorf("Expected one error-status audit row, got %+v", runs)
	}
}

func TestRunAuditInvalidDataset(t *testing.T) {
	repo := newMemoryRepository()
	svc := newBiasService(t, writeDataset(t, `[{"id": 1}]`), repo)

	_, err := svc.RunAudit(context.Background(), AuditRequest{
		ReqID:   "req-3",
		ModelID: "distilgpt2",
		Backend: "local",
	}, "test", "worker-1")
	if err == nil {
		t.Fatal("Expected a dataset validation error")
	}
}

func TestRunAuditLocalClientIsSingleton(t *testing.T) {
	repo := newMemoryRepository()
	svc := newBiasService(t, writeDataset(t, auditDataset), repo)

	req := AuditRequest{ReqID: "req-4", ModelID: "distilgpt2", Backend: "local"}
	if _, err := svc.RunAudit(context.Background(), req, "test", "w"); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if _, err := svc.RunAudit(context.Background(), req, "test", "w"); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	svc.mu.Lock()
	n := len(svc.localClients)
	svc.mu.Unlock()
	if n != 1 {
		t.Errorf("Expected one shared local client, got %d", n)
	}
}
