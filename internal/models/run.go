package models

import "time"

// RunRecord is the audit-log row written for every bias-test run,
// successful or not.
type RunRecord struct {
	Timestamp      time.Time `json:"ts"`
	RunID          string    `json:"run_id"`
	TraceID        string    `json:"trace_id"`
	WorkerID       string    `json:"worker_id"`
	Source         string    `json:"source"`
	ModelID        string    `json:"model_id"`
	Backend        string    `json:"backend"`
	Method         string    `json:"method"`
	PairsRequested int       `json:"pairs_requested"`
	PairsAnalyzed  int       `json:"pairs_analyzed"`
	Seed           int64     `json:"seed"`
	OverallScore   float64   `json:"overall_score"`
	StereotypePct  float64   `json:"stereotype_pct"`
	Severity       string    `json:"severity"`
	Passed         bool      `json:"passed"`
	DurationMs     int64     `json:"dur_ms"`
	Status         string    `json:"status"`
	Error          string    `json:"error"`
}
