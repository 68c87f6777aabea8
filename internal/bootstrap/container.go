package bootstrap

import (
	"context"
	"log"

	"ai-todo-agent-be/internal/config"
	"ai-todo-agent-be/internal/controller"
	"ai-todo-agent-be/internal/pkg/logger"
	"ai-todo-agent-be/internal/pkg/serverutils"
	"ai-todo-agent-be/internal/repository/unitofwork"
	"ai-todo-agent-be/internal/service"
	"ai-todo-agent-be/pkg/agent"
	"ai-todo-agent-be/pkg/conversation"
	"ai-todo-agent-be/pkg/events"
	"ai-todo-agent-be/pkg/llm"
	"ai-todo-agent-be/pkg/llm/factory"
	"ai-todo-agent-be/pkg/ratelimit"
	"ai-todo-agent-be/pkg/tools"

	pktNats "ai-todo-agent-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// AuditTopic carries task and turn events to the audit consumer.
const AuditTopic = "agent.audit"

type Container struct {
	// Controllers
	AgentController controller.IAgentController
	AuthMiddleware  fiber.Handler

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// Exposed for the operator CLI
	Orchestrator *agent.Orchestrator
	AgentService service.IAgentService
	Logger       logger.ILogger

	closers []func()
}

// Components is the agent wiring without HTTP. The REST container and the
// operator CLI both build on it.
type Components struct {
	UowFactory   unitofwork.RepositoryFactory
	Store        *conversation.Store
	Registry     *tools.Registry
	Orchestrator *agent.Orchestrator
	Limiter      *ratelimit.Limiter
	Logger       logger.ILogger
	PubSub       *gochannel.GoChannel

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	llmProvider, err := NewLLMProvider(cfg)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	c := NewComponents(db, cfg, llmProvider, sysLogger)

	auditLogger := logger.NewIsolatedLogger(cfg.App.AuditLogFilePath)
	consumerService := service.NewConsumerService(c.PubSub, AuditTopic, auditLogger, sysLogger)
	agentService := service.NewAgentService(c.UowFactory, c.Store, c.Orchestrator, c.Limiter, sysLogger)

	return &Container{
		AgentController: controller.NewAgentController(agentService),
		AuthMiddleware:  serverutils.NewJwtMiddleware(cfg.App.JwtSecret),
		ConsumerService: consumerService,
		Orchestrator:    c.Orchestrator,
		AgentService:    agentService,
		Logger:          sysLogger,
		closers:         append(c.closers, func() { _ = sysLogger.Sync(); _ = auditLogger.Sync() }),
	}
}

// NewComponents wires storage, tools, the limiter and the orchestrator.
func NewComponents(db *gorm.DB, cfg *config.Config, llmProvider llm.Provider, sysLogger logger.ILogger) *Components {
	uowFactory := unitofwork.NewRepositoryFactory(db)

	// 1. Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)
	auditPublisher := service.NewPublisherService(AuditTopic, pubSub)
	closers := []func(){func() { _ = pubSub.Close() }}

	// NATS carries task events to other services; it is optional
	var taskPublisher events.Publisher = auditPublisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		taskPublisher = events.Multi(natsPub, auditPublisher)
		closers = append(closers, natsPub.Close)
	}

	// 2. Redis (rate counters and turn locks)
	var rdb *redis.Client
	if cfg.RateLimit.Backend == "redis" || cfg.Agent.LockBackend == "redis" {
		rdb = newRedisClient(cfg.App.RedisURL)
		closers = append(closers, func() { _ = rdb.Close() })
	}

	var counterStore ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Backend == "redis" {
		counterStore = ratelimit.NewRedisStore(rdb)
	}
	limiter := ratelimit.NewLimiter(counterStore, cfg.RateLimit.Requests, cfg.RateLimit.Window,
		ratelimit.WithLogger(sysLogger),
	)

	var turnLock agent.TurnLock = agent.NewMemoryTurnLock()
	if cfg.Agent.LockBackend == "redis" {
		turnLock = agent.NewRedisTurnLock(rdb)
	}

	// 3. Domain
	policy, err := tools.ParseMatchPolicy(cfg.Agent.MatchPolicy)
	if err != nil {
		policy = tools.MatchContains
		log.Printf("[WARN] %v, using %s", err, policy)
	}
	registry := tools.NewRegistry(
		tools.NewRepositoryTaskStore(uowFactory),
		tools.WithMatchPolicy(policy),
		tools.WithPublisher(taskPublisher),
		tools.WithLogger(sysLogger),
	)

	store := conversation.NewStore(
		conversation.WithMaxConversations(cfg.Agent.MaxConversations),
		conversation.WithMaxMessages(cfg.Agent.MaxMessages),
		conversation.WithLogger(sysLogger),
	)

	orchestrator := agent.NewOrchestrator(
		agent.Config{
			MaxToolRounds:     cfg.Agent.MaxToolRounds,
			HistoryLimit:      cfg.Agent.HistoryLimit,
			ModelTimeout:      cfg.Agent.ModelTimeout,
			ModelRetryBackoff: cfg.Agent.ModelRetryBackoff,
			ToolTimeout:       cfg.Agent.ToolTimeout,
			TurnTimeout:       cfg.Agent.TurnTimeout,
		},
		uowFactory,
		store,
		registry,
		llmProvider,
		agent.WithTurnLock(turnLock),
		agent.WithPublisher(auditPublisher),
		agent.WithLogger(sysLogger),
	)

	return &Components{
		UowFactory:   uowFactory,
		Store:        store,
		Registry:     registry,
		Orchestrator: orchestrator,
		Limiter:      limiter,
		Logger:       sysLogger,
		PubSub:       pubSub,
		closers:      closers,
	}
}

// Close releases the connections opened while wiring.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// NewLLMProvider builds the configured model client.
func NewLLMProvider(cfg *config.Config) (llm.Provider, error) {
	baseURL := cfg.Ai.OllamaBaseURL
	if cfg.Ai.LLMProvider == "openai" {
		baseURL = cfg.Ai.OpenAIBaseURL
	}
	return factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, baseURL, cfg.Ai.OpenAIKey)
}

func newRedisClient(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: url,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		// limiter fails open and the turn lock falls back to the version check
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	return rdb
}
