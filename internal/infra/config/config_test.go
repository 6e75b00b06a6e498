package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_RetrievalParameters_Defaults(t *testing.T) {
	envVars := []string{
		"RAG_SEARCH_LIMIT",
		"RAG_DEFAULT_LIMIT",
		"RAG_DEFAULT_THRESHOLD",
		"RAG_RRF_K",
		"RAG_HYBRID_ALPHA",
	}
	for _, key := range envVars {
		_ = os.Unsetenv(key)
	}

	cfg := Load()

	assert.Equal(t, 50, cfg.SearchLimit, "searchLimit should default to 50")
	assert.Equal(t, 10, cfg.DefaultLimit, "defaultLimit should default to 10")
	assert.Equal(t, 0.5, cfg.DefaultThreshold, "defaultThreshold should default to 0.5")
	assert.Equal(t, 60.0, cfg.RRFK, "rrfK should default to 60.0")
	assert.Equal(t, 0.3, cfg.HybridAlpha, "hybridAlpha should default to 0.3")
}

func TestLoad_RetrievalParameters_FromEnv(t *testing.T) {
	t.Setenv("RAG_SEARCH_LIMIT", "100")
	t.Setenv("RAG_DEFAULT_LIMIT", "20")
	t.Setenv("RAG_RRF_K", "50.0")
	t.Setenv("RAG_HYBRID_ALPHA", "0.5")

	cfg := Load()

	assert.Equal(t, 100, cfg.SearchLimit)
	assert.Equal(t, 20, cfg.DefaultLimit)
	assert.Equal(t, 50.0, cfg.RRFK)
	assert.Equal(t, 0.5, cfg.HybridAlpha)
}

func TestLoad_SelfRAGRounds_Default(t *testing.T) {
	_ = os.Unsetenv("RAG_SELF_RAG_MAX_EXTRA_ROUNDS")

	cfg := Load()

	assert.Equal(t, 1, cfg.MaxExtraRounds, "self-RAG extra rounds should default to 1")
}

func TestLoad_SelfRAGRounds_FromEnv(t *testing.T) {
	t.Setenv("RAG_SELF_RAG_MAX_EXTRA_ROUNDS", "2")

	cfg := Load()

	assert.Equal(t, 2, cfg.MaxExtraRounds)
}

func TestLoad_ServerConfig_Defaults(t *testing.T) {
	_ = os.Unsetenv("PORT")

	cfg := Load()

	assert.Equal(t, "9020", cfg.Port)
}

func TestLoad_CacheConfig_Defaults(t *testing.T) {
	_ = os.Unsetenv("RAG_CACHE_SIZE")
	_ = os.Unsetenv("RAG_CACHE_TTL_MIN")

	cfg := Load()

	assert.Equal(t, 512, cfg.CacheSize)
	assert.Equal(t, 15, cfg.CacheTTLMin)
}

func TestLoad_DBPoolBounds_Defaults(t *testing.T) {
	_ = os.Unsetenv("DB_MAX_CONNS")
	_ = os.Unsetenv("DB_MIN_CONNS")

	cfg := Load()

	assert.Equal(t, 10, cfg.DBMaxConns)
	assert.Equal(t, 2, cfg.DBMinConns)
}

func TestLoad_DBPoolBounds_FromEnv(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("DB_MIN_CONNS", "5")

	cfg := Load()

	assert.Equal(t, 25, cfg.DBMaxConns)
	assert.Equal(t, 5, cfg.DBMinConns)
}

func TestLoad_RateLimit_Defaults(t *testing.T) {
	_ = os.Unsetenv("RAG_RATE_LIMIT_RPS")
	_ = os.Unsetenv("RAG_RATE_LIMIT_BURST")

	cfg := Load()

	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 10, cfg.RateLimitBurst)
}

func TestLoad_GenerateModel_FromEnv(t *testing.T) {
	t.Setenv("GENERATE_MODEL", "gemma3:12b")

	cfg := Load()

	assert.Equal(t, "gemma3:12b", cfg.GenerateModel)
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback float64
		expected float64
	}{
		{
			name:     "valid value",
			envValue: "75.5",
			fallback: 60.0,
			expected: 75.5,
		},
		{
			name:     "invalid value uses fallback",
			envValue: "not-a-number",
			fallback: 60.0,
			expected: 60.0,
		},
		{
			name:     "empty uses fallback",
			envValue: "",
			fallback: 60.0,
			expected: 60.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_FLOAT", tt.envValue)
			} else {
				_ = os.Unsetenv("TEST_FLOAT")
			}

			result := getEnvFloat("TEST_FLOAT", tt.fallback)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback bool
		expected bool
	}{
		{
			name:     "true value",
			envValue: "true",
			fallback: false,
			expected: true,
		},
		{
			name:     "invalid value uses fallback",
			envValue: "not-a-bool",
			fallback: true,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)

			result := getEnvBool("TEST_BOOL", tt.fallback)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetSecret_FromFile(t *testing.T) {
	path := t.TempDir() + "/secret"
	assert.NoError(t, os.WriteFile(path, []byte("filepass\n"), 0o600))
	_ = os.Unsetenv("TEST_SECRET")
	t.Setenv("TEST_SECRET_FILE", path)

	assert.Equal(t, "filepass", getSecret("TEST_SECRET", "TEST_SECRET_FILE", "fallback"))
}
