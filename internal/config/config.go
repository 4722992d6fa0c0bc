package config

import (
	"bufio"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// NATS Configuration
	NatsURL        string
	Stream         string
	Subject        string
	Durable        string
	QueueGroup     string
	ResponsePrefix string
	MaxMsgs        int
	MaxAge         time.Duration
	AckWait        time.Duration
	MaxDeliver     int
	MaxAckPending  int
	Concurrency    int

	// HTTP Configuration
	HTTPAddr string

	// Service identity and monitoring
	ServiceName           string
	MonitoringTopic       string
	BackpressureThreshold int

	// Remote inference server
	OllamaURL           string
	ReachabilityTimeout time.Duration
	ProbeTimeout        time.Duration
	ProbeMaxAttempts    int
	ProbeBaseDelay      time.Duration

	// Capability cache
	CacheSuccessTTL time.Duration
	CacheErrorTTL   time.Duration

	// Local model configuration
	LocalModels []string
	ModelPath   string
	ModelURL    string
	Threads     int
	CtxSize     int

	// Bias test configuration
	DatasetPath string
	SampleSize  int
	Seed        int64
	BatchSize   int

	// Database Configuration
	DBPath  string
	DataDir string
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := loadDotEnv(envFile); err != nil {
			slog.Warn("Could not load env file", "file", envFile, "error", err)
		} else {
			slog.Info("Environment loaded", "file", envFile)
		}
	}

	return &Config{
		NatsURL:        getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		Stream:         getEnv("STREAM_NAME", "BIAS"),
		Subject:        getEnv("SUBJECT", "bias.audit.request.*"),
		Durable:        getEnv("QUEUE_DURABLE", "bias-wq"),
		QueueGroup:     getEnv("QUEUE_GROUP", "workers"),
		ResponsePrefix: getEnv("RESPONSE_PREFIX", "bias.audit.reply"),
		MaxMsgs:        getEnvInt("QUEUE_MAX_MSGS", 2000),
		MaxAge:         getEnvDuration("QUEUE_MAX_AGE", "30s"),
		AckWait:        getEnvDuration("ACK_WAIT", "5m"),
		MaxDeliver:     getEnvInt("MAX_DELIVER", 5),
		MaxAckPending:  getEnvInt("MAX_ACK_PENDING", 64),
		Concurrency:    getEnvInt("WORKER_CONCURRENCY", 2),

		HTTPAddr: getEnv("HTTP_ADDR", ":8082"),

		ServiceName:           getEnv("SERVICE_NAME", "bias-engine"),
		MonitoringTopic:       getEnv("MONITORING_TOPIC", "bias.monitoring"),
		BackpressureThreshold: getEnvInt("BACKPRESSURE_THRESHOLD", 100),

		OllamaURL:           getEnv("OLLAMA_URL", "http://127.0.0.1:11434"),
		ReachabilityTimeout: getEnvDuration("REACHABILITY_TIMEOUT", "2s"),
		ProbeTimeout:        getEnvDuration("PROBE_TIMEOUT", "5s"),
		ProbeMaxAttempts:    getEnvInt("PROBE_MAX_ATTEMPTS", 3),
		ProbeBaseDelay:      getEnvDuration("PROBE_BASE_DELAY", "500ms"),

		CacheSuccessTTL: getEnvDuration("CACHE_SUCCESS_TTL", "24h"),
		CacheErrorTTL:   getEnvDuration("CACHE_ERROR_TTL", "5m"),

		LocalModels: getEnvList("LOCAL_MODELS", "distilgpt2"),
		ModelPath:   getEnv("MODEL_PATH", "data/models/model.gguf"),
		ModelURL:    getEnv("MODEL_URL", ""),
		Threads:     getEnvInt("MODEL_THREADS", 8),
		CtxSize:     getEnvInt("CTX_SIZE", 2048),

		DatasetPath: getEnv("DATASET_PATH", "data/datasets/crows_pairs.json"),
		SampleSize:  getEnvInt("SAMPLE_SIZE", 30),
		Seed:        int64(getEnvInt("SAMPLE_SEED", 42)),
		BatchSize:   getEnvInt("BATCH_SIZE", 10),

		DBPath:  getEnv("DB_PATH", "data/bias-engine.sqlite"),
		DataDir: getEnv("DATA_DIR", "data"),
	}, nil
}

func loadDotEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal string) time.Duration {
	val := getEnv(key, defaultVal)
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultVal)
	return d
}

func getEnvList(key string, defaultVal string) []string {
	val := getEnv(key, defaultVal)
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
