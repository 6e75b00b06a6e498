package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env        string
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int
	DBMinConns int

	OllamaURL      string
	EmbeddingModel string
	GenerateModel  string
	OllamaTimeout  int

	RerankerURL     string
	RerankerModel   string
	RerankerTimeout int

	SearchLimit        int
	DefaultLimit       int
	DefaultThreshold   float64
	RRFK               float64
	HybridAlpha        float64
	MaxExtraRounds     int
	AnswerMaxTokens    int
	CompressorMaxChars int
	RequestTimeout     int
	MemoryTurns        int

	CacheSize    int
	CacheTTLMin  int
	TraceBufSize int

	RateLimitRPS   float64
	RateLimitBurst int

	OTelEnabled bool
}

func Load() *Config {
	return &Config{
		Env:        getEnv("ENV", "development"),
		Port:       getEnv("PORT", "9020"),
		DBHost:     getEnv("DB_HOST", "news-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "news_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "news_password"),
		DBName:     getEnv("DB_NAME", "news_db"),
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns: getEnvInt("DB_MIN_CONNS", 2),

		OllamaURL:      getEnvWithAlt("OLLAMA_URL", "OLLAMA_EXTERNAL_URL", "http://ollama:11434"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "embeddinggemma"),
		GenerateModel:  getEnv("GENERATE_MODEL", "gemma3:4b"),
		OllamaTimeout:  getEnvInt("OLLAMA_TIMEOUT_SEC", 60),

		RerankerURL:     getEnv("RERANKER_URL", "http://reranker:11436"),
		RerankerModel:   getEnv("RERANKER_MODEL", "bge-reranker-v2-m3"),
		RerankerTimeout: getEnvInt("RERANKER_TIMEOUT_SEC", 30),

		SearchLimit:        getEnvInt("RAG_SEARCH_LIMIT", 50),
		DefaultLimit:       getEnvInt("RAG_DEFAULT_LIMIT", 10),
		DefaultThreshold:   getEnvFloat("RAG_DEFAULT_THRESHOLD", 0.5),
		RRFK:               getEnvFloat("RAG_RRF_K", 60),
		HybridAlpha:        getEnvFloat("RAG_HYBRID_ALPHA", 0.3),
		MaxExtraRounds:     getEnvInt("RAG_SELF_RAG_MAX_EXTRA_ROUNDS", 1),
		AnswerMaxTokens:    getEnvInt("RAG_DEFAULT_MAX_TOKENS", 768),
		CompressorMaxChars: getEnvInt("RAG_COMPRESSOR_MAX_CHARS", 600),
		RequestTimeout:     getEnvInt("RAG_REQUEST_TIMEOUT_SEC", 60),
		MemoryTurns:        getEnvInt("RAG_MEMORY_TURNS", 10),

		CacheSize:    getEnvInt("RAG_CACHE_SIZE", 512),
		CacheTTLMin:  getEnvInt("RAG_CACHE_TTL_MIN", 15),
		TraceBufSize: getEnvInt("RAG_TRACE_BUFFER_SIZE", 256),

		RateLimitRPS:   getEnvFloat("RAG_RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RAG_RATE_LIMIT_BURST", 10),

		OTelEnabled: getEnvBool("OTEL_ENABLED", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	// 1. Try direct environment variable
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}

	// 2. Try reading from file specified by fileEnvKey
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}

	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
