package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Ai        AIConfig
	Agent     AgentConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	AuditLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	LLMProvider   string // "ollama" or "openai"
	LLMModel      string // e.g. "llama3.1", "gpt-4o-mini"
	OllamaBaseURL string
	OpenAIKey     string
	OpenAIBaseURL string // optional, for OpenAI-compatible gateways
}

type AgentConfig struct {
	MaxToolRounds     int
	HistoryLimit      int
	ModelTimeout      time.Duration
	ModelRetryBackoff time.Duration
	ToolTimeout       time.Duration
	TurnTimeout       time.Duration
	LockBackend       string // "redis" or "memory"
	MaxConversations  int
	MaxMessages       int
	MatchPolicy       string // "contains" or "exact"
}

type RateLimitConfig struct {
	Backend  string // "redis" or "memory"
	Requests int
	Window   time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			AuditLogFilePath:   getEnv("AUDIT_LOG_FILE_PATH", "logs/agent_audit.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			LLMProvider:   getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:      getEnv("LLM_MODEL", "llama3.1"),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		Agent: AgentConfig{
			MaxToolRounds:     getEnvAsInt("AGENT_MAX_TOOL_ROUNDS", 6),
			HistoryLimit:      getEnvAsInt("AGENT_HISTORY_LIMIT", 40),
			ModelTimeout:      getEnvAsDuration("AGENT_MODEL_TIMEOUT", 8*time.Second),
			ModelRetryBackoff: getEnvAsDuration("AGENT_MODEL_RETRY_BACKOFF", 500*time.Millisecond),
			ToolTimeout:       getEnvAsDuration("AGENT_TOOL_TIMEOUT", 3*time.Second),
			TurnTimeout:       getEnvAsDuration("AGENT_TURN_TIMEOUT", 60*time.Second),
			LockBackend:       getEnv("AGENT_LOCK_BACKEND", "redis"),
			MaxConversations:  getEnvAsInt("AGENT_MAX_CONVERSATIONS", 100),
			MaxMessages:       getEnvAsInt("AGENT_MAX_MESSAGES_PER_CONVERSATION", 1000),
			MatchPolicy:       getEnv("AGENT_TASK_MATCH_POLICY", "contains"),
		},
		RateLimit: RateLimitConfig{
			Backend:  getEnv("RATE_LIMIT_BACKEND", "redis"),
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 60),
			Window:   time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go duration strings ("8s", "500ms").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
