package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/api/rest"
	"github.com/probelab/agent-testbed/internal/infrastructure/cache"
	"github.com/probelab/agent-testbed/internal/infrastructure/config"
	"github.com/probelab/agent-testbed/internal/infrastructure/database"
	"github.com/probelab/agent-testbed/internal/infrastructure/telemetry"
	"github.com/probelab/agent-testbed/internal/metrics"
	"github.com/probelab/agent-testbed/internal/service/behavioral"
	"github.com/probelab/agent-testbed/internal/service/chat"
	"github.com/probelab/agent-testbed/internal/service/injection"
	"github.com/probelab/agent-testbed/internal/service/validation"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "agent-testbed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(&cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisCache.Close()

	registry := metrics.NewRegistry()

	interactions := database.NewInteractionRepository(pool)
	behaviors := database.NewBehaviorRepository(pool)
	scenarios := database.NewScenarioRepository(pool)

	states := cache.NewAgentStateStore(redisCache, logger)

	injector := injection.NewService(cfg.Injection.Probabilistic, cfg.Injection.RateMultiplier, logger,
		injection.WithCooldown(cfg.Injection.Cooldown))

	monitor := behavioral.NewMonitoringService(&cfg.Behavioral, registry, behaviors, logger)
	validator := validation.NewStandardValidator(registry, monitor.Tracker(),
		behavioral.NewAnomalyDetector(monitor.Baselines(), behavioral.NewTemporalAnalyzer(),
			cfg.Behavioral.AnomalyThreshold, cfg.Behavioral.DriftThreshold, logger),
		logger)

	llmConfig := openai.DefaultConfig(cfg.LLM.APIKey)
	if cfg.LLM.BaseURL != "" {
		llmConfig.BaseURL = cfg.LLM.BaseURL
	}
	llm := openai.NewClientWithConfig(llmConfig)

	chatService := chat.NewService(&cfg.LLM, &cfg.Validation, llm, injector, states,
		interactions, monitor, validator, registry, logger)

	handler := rest.NewHandler(rest.HandlerDeps{
		Chat:         chatService,
		Injector:     injector,
		Monitor:      monitor,
		Validator:    validator,
		Interactions: interactions,
		Behaviors:    behaviors,
		Scenarios:    scenarios,
		DBPing:       rest.PingerFunc(pool.Ping),
		RedisPing:    rest.PingerFunc(redisCache.Ping),
		Logger:       logger,
	})

	router := rest.NewRouter(&cfg.Server, handler, registry, logger)
	server := rest.NewServer(&cfg.Server, router, logger)

	logger.Info("starting agent testbed",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("probabilistic_injection", cfg.Injection.Probabilistic))

	return server.Run(ctx)
}
