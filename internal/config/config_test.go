package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AGENT_MAX_TOOL_ROUNDS", "")
	t.Setenv("RATE_LIMIT_REQUESTS", "")

	cfg := Load()

	assert.Equal(t, 6, cfg.Agent.MaxToolRounds)
	assert.Equal(t, 60, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 100, cfg.Agent.MaxConversations)
	assert.Equal(t, 1000, cfg.Agent.MaxMessages)
	assert.Equal(t, 8*time.Second, cfg.Agent.ModelTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AGENT_MAX_TOOL_ROUNDS", "3")
	t.Setenv("AGENT_TOOL_TIMEOUT", "750ms")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")

	cfg := Load()

	assert.Equal(t, 3, cfg.Agent.MaxToolRounds)
	assert.Equal(t, 750*time.Millisecond, cfg.Agent.ToolTimeout)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
}

func TestGetEnvAsDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvAsDuration("SOME_DURATION", time.Second))
}
