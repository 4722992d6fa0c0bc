package store

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Create events table
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		level TEXT,
		code TEXT,
		msg TEXT,
		meta TEXT
	)`); err != nil {
		return nil, err
	}

	// Create capability blob store (key -> JSON entry)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS capabilities(
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at REAL
	)`); err != nil {
		return nil, err
	}

	// Create bias-run audit log
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		run_id TEXT,
		trace_id TEXT,
		worker_id TEXT,
		source TEXT,
		model_id TEXT,
		backend TEXT,
		method TEXT,
		pairs_requested INTEGER,
		pairs_analyzed INTEGER,
		seed INTEGER,
		overall_score REAL,
		stereotype_pct REAL,
		severity TEXT,
		passed INTEGER,
		dur_ms REAL,
		status TEXT,
		error TEXT
	)`); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func (db *DB) Event(level, code, msg string, meta map[string]interface{}) {
	m := ""
	if meta != nil {
		b, _ := json.Marshal(meta)
		m = string(b)
	}
	_, _ = db.Exec(`INSERT INTO events(ts,level,code,msg,meta) VALUES(?,?,?,?,?)`,
		float64(time.Now().UnixNano())/1e9, level, code, msg, m)
}

// BlobGet reads a value from the capability store.
func (db *DB) BlobGet(key string) ([]byte, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM capabilities WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

// BlobSet upserts a value, last writer wins.
func (db *DB) BlobSet(key string, value []byte) error {
	_, err := db.Exec(`INSERT INTO capabilities(key,value,updated_at) VALUES(?,?,?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, string(value), float64(time.Now().UnixNano())/1e9)
	return err
}

func (db *DB) BlobRemove(key string) error {
	_, err := db.Exec(`DELETE FROM capabilities WHERE key = ?`, key)
	return err
}

func (db *DB) BlobKeys(prefix string) ([]string, error) {
	rows, err := db.Query(`SELECT key FROM capabilities WHERE key LIKE ? || '%'`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err == nil {
			keys = append(keys, k)
		}
	}
	return keys, rows.Err()
}

func (db *DB) Run(start time.Time, runID, traceID, workerID, source, modelID, backend, method string,
	pairsRequested, pairsAnalyzed int, seed int64, overallScore, stereotypePct float64,
	severity string, passed bool, dur time.Duration, status, errStr string) {
	passedInt := 0
	if passed {
		passedInt = 1
	}
	_, _ = db.Exec(`INSERT INTO runs(
		ts, run_id, trace_id, worker_id, source, model_id, backend, method, pairs_requested, pairs_analyzed, seed, overall_score, stereotype_pct, severity, passed, dur_ms, status, error)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		float64(start.UnixNano())/1e9, runID, traceID, workerID, source, modelID, backend, method,
		pairsRequested, pairsAnalyzed, seed, overallScore, stereotypePct, severity, passedInt,
		float64(dur.Milliseconds()), status, errStr)
}
