package usecase_test

import (
	"testing"

	"news-rag/internal/usecase"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterStore_BurstThenDeny(t *testing.T) {
	s := usecase.NewRateLimiterStore(0.001, 2)

	assert.True(t, s.Allow("10.0.0.1"))
	assert.True(t, s.Allow("10.0.0.1"))
	assert.False(t, s.Allow("10.0.0.1"), "burst exhausted and refill is effectively zero")
}

func TestRateLimiterStore_KeysAreIsolated(t *testing.T) {
	s := usecase.NewRateLimiterStore(0.001, 1)

	assert.True(t, s.Allow("10.0.0.1"))
	assert.False(t, s.Allow("10.0.0.1"))
	assert.True(t, s.Allow("10.0.0.2"), "one caller exhausting its bucket must not affect another")
}

func TestRateLimiterStore_SweepKeepsRecentKeys(t *testing.T) {
	s := usecase.NewRateLimiterStore(0.001, 1)

	assert.True(t, s.Allow("10.0.0.1"))
	s.Sweep()

	// The key was just seen; its bucket must survive the sweep still drained.
	assert.False(t, s.Allow("10.0.0.1"))
}
