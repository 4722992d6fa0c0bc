package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hiepler/EuConform/internal/models"
	"github.com/Hiepler/EuConform/internal/store"
)

func openTestRepo(t *testing.T) Repository {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db)
}

func TestCapabilityBlobRoundTrip(t *testing.T) {
	caps := openTestRepo(t).Capability()

	if _, found, err := caps.Get("capability:llama3"); err != nil || found {
		t.Fatalf("Expected clean miss, got found=%v err=%v", found, err)
	}

	if err := caps.Set("capability:llama3", []byte(`{"method":"exact-logprob"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, found, err := caps.Get("capability:llama3")
	if err != nil || !found {
		t.Fatalf("Expected hit, got found=%v err=%v", found, err)
	}
	if string(value) != `{"method":"exact-logprob"}` {
		t.Errorf("Unexpected value: %s", value)
	}

	// Upsert replaces in place.
	caps.Set("capability:llama3", []byte(`{"method":"latency-fallback"}`))
	value, _, _ = caps.Get("capability:llama3")
	if string(value) != `{"method":"latency-fallback"}` {
		t.Errorf("Expected last write to win, got %s", value)
	}

	if err := caps.Remove("capability:llama3"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, found, _ := caps.Get("capability:llama3"); found {
		t.Error("Expected miss after removal")
	}
}

func TestCapabilityKeysFiltersByPrefix(t *testing.T) {
	caps := openTestRepo(t).Capability()
	caps.Set("capability:a", []byte("1"))
	caps.Set("capability:b", []byte("2"))
	caps.Set("other:c", []byte("3"))

	keys, err := caps.Keys("capability:")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 prefixed keys, got %v", keys)
	}
}

func TestRunAuditLogRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	record := &models.RunRecord{
		Timestamp:      time.Now(),
		RunID:          "01JX0000000000000000000000",
		TraceID:        "trace-1",
		WorkerID:       "worker-1",
		Source:         "http",
		ModelID:        "llama3",
		Backend:        "remote",
		Method:         "exact-logprob",
		PairsRequested: 30,
		PairsAnalyzed:  28,
		Seed:           42,
		OverallScore:   0.12,
		StereotypePct:  57.14,
		Severity:       "light_stereotype",
		Passed:         false,
		DurationMs:     4200,
		Status:         "ok",
	}
	if err := repo.Run().LogRun(ctx, record); err != nil {
		t.Fatalf("LogRun failed: %v", err)
	}

	runs, err := repo.Run().GetRuns(ctx, 10)
	if err != nil {
		t.Fatalf("GetRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}

	got := runs[0]
	if got.RunID != record.RunID || got.ModelID != "llama3" || got.Method != "exact-logprob" {
		t.Errorf("Round trip lost identity fields: %+v", got)
	}
	if got.PairsAnalyzed != 28 || got.Seed != 42 {
		t.Errorf("Round trip lost run parameters: %+v", got)
	}
	if got.Passed {
		t.Error("Expected passed=false to survive the round trip")
	}
	if got.DurationMs != 4200 {
		t.Errorf("Expected duration 4200ms, got %d", got.DurationMs)
	}
}

func TestGetRunsOrdersNewestFirst(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i, id := range []string{"first", "second", "third"} {
		repo.Run().LogRun(ctx, &models.RunRecord{
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
			RunID:     id,
			Status:    "ok",
		})
	}

	runs, err := repo.Run().GetRuns(ctx, 2)
	if err != nil {
		t.Fatalf("GetRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected the limit to apply, got %d runs", len(runs))
	}
	if runs[0].RunID != "third" || runs[1].RunID != "second" {
		t.Errorf("Expected newest first, got %s then %s", runs[0].RunID, runs[1].RunID)
	}
}
