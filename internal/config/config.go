package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	APIPort  string
	LogLevel string

	APIMaxConnections        int
	APIRateLimitRPS          float64
	APIRateLimitBurst        int
	APIMaxInFlight           int
	APIBackpressureWaitMS    int
	APIRequestTimeoutSeconds int

	OllamaURL        string
	OllamaEmbedModel string
	EmbedCacheSize   int

	VectorStore        string
	QdrantURL          string
	QdrantCollection   string
	MemorySnapshotPath string

	RetrievalHybrid              bool
	RetrievalRRFK                int
	RetrievalMaxQueries          int
	RetrievalIncludeEnglish      bool
	RetrievalIncludeSynonyms     bool
	RetrievalIncludeRoleTerms    bool
	RetrievalQueryTimeoutSeconds int
	RetrievalQueryConcurrency    int
	RetrievalAchievementWarn     float64

	DynamicKAbsMin     int
	DynamicKRatioMin   float64
	DynamicKRatioMax   float64
	DynamicKOverfetch  float64
	DynamicKMinSearchK int

	Tokenizer   string
	LexiconPath string

	ChunkSize    int
	ChunkOverlap int

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	ResilienceRetryMaxAttempts int
	ResilienceBreakerEnabled   bool

	TracingEnabled     bool
	TracingEndpoint    string
	TracingSampleRatio float64
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		APIMaxConnections:        mustEnvInt("API_MAX_CONNECTIONS", 256),
		APIRateLimitRPS:          mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:        mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:           mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIBackpressureWaitMS:    mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),
		APIRequestTimeoutSeconds: mustEnvInt("API_REQUEST_TIMEOUT_SECONDS", 30),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		EmbedCacheSize:   mustEnvInt("EMBED_CACHE_SIZE", 1024),

		VectorStore:        strings.ToLower(mustEnv("VECTOR_STORE", "qdrant")),
		QdrantURL:          mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   mustEnv("QDRANT_COLLECTION", "safety_reports"),
		MemorySnapshotPath: mustEnv("MEMORY_SNAPSHOT_PATH", ""),

		RetrievalHybrid:              mustEnvBool("RETRIEVAL_HYBRID", true),
		RetrievalRRFK:                mustEnvInt("RETRIEVAL_RRF_K", 60),
		RetrievalMaxQueries:          mustEnvInt("RETRIEVAL_MAX_QUERIES", 5),
		RetrievalIncludeEnglish:      mustEnvBool("RETRIEVAL_INCLUDE_ENGLISH", true),
		RetrievalIncludeSynonyms:     mustEnvBool("RETRIEVAL_INCLUDE_SYNONYMS", true),
		RetrievalIncludeRoleTerms:    mustEnvBool("RETRIEVAL_INCLUDE_ROLE_TERMS", true),
		RetrievalQueryTimeoutSeconds: mustEnvInt("RETRIEVAL_QUERY_TIMEOUT_SECONDS", 8),
		RetrievalQueryConcurrency:    mustEnvInt("RETRIEVAL_QUERY_CONCURRENCY", 3),
		RetrievalAchievementWarn:     mustEnvFloat("RETRIEVAL_ACHIEVEMENT_WARN", 0.5),

		DynamicKAbsMin:     mustEnvInt("DYNAMIC_K_ABS_MIN", 5),
		DynamicKRatioMin:   mustEnvFloat("DYNAMIC_K_RATIO_MIN", 0.08),
		DynamicKRatioMax:   mustEnvFloat("DYNAMIC_K_RATIO_MAX", 0.15),
		DynamicKOverfetch:  mustEnvFloat("DYNAMIC_K_OVERFETCH", 1.5),
		DynamicKMinSearchK: mustEnvInt("DYNAMIC_K_MIN_SEARCH", 20),

		Tokenizer:   strings.ToLower(mustEnv("TOKENIZER", "kagome")),
		LexiconPath: mustEnv("LEXICON_PATH", ""),

		ChunkSize:    mustEnvInt("CHUNK_SIZE", 900),
		ChunkOverlap: mustEnvInt("CHUNK_OVERLAP", 150),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "retrieval.completed"),

		ResilienceRetryMaxAttempts: mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		ResilienceBreakerEnabled:   mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),

		TracingEnabled:     mustEnvBool("TRACING_ENABLED", false),
		TracingEndpoint:    mustEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		TracingSampleRatio: mustEnvFloat("TRACING_SAMPLE_RATIO", 1),
	}
}

func mustEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return parsed
}
