package application

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"ai-studio-backend/internal/config"
	"ai-studio-backend/internal/domain/ports/adapter"
	aiAdapters "ai-studio-backend/internal/infra/adapters/ai"
	pg "ai-studio-backend/internal/infra/db/postgres"
	"ai-studio-backend/internal/infra/logging"
	red "ai-studio-backend/internal/infra/redis"
	"ai-studio-backend/internal/usecase"
)

// App bundles the shared wiring both binaries need: storage, use cases, and
// the AI adapter. The api and worker processes compose their own top layer
// (HTTP server or claim loop) on these.
type App struct {
	Cfg *config.Config
	Log *zerolog.Logger

	Pool  *pgxpool.Pool
	Redis red.RedisClient

	AI      adapter.CompletionAdapter
	JobUC   usecase.JobUseCase
	AgentUC usecase.AgentUseCase
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.New(cfg.Log, cfg.Runtime.Dev)

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pg.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	txManager := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, txManager)
	rates := red.NewRateCounter(redisClient)
	checkpoints := red.NewCheckpointStore(redisClient)

	jobUC := usecase.NewJobUseCase(jobRepo, rates, txManager, usecase.JobLimits{
		MaxActivePerUser: cfg.Queue.MaxActivePerUser,
		MaxDailyPerUser:  cfg.Queue.MaxDailyPerUser,
	}, log)

	var ai adapter.CompletionAdapter
	if cfg.AI.APIKey != "" {
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.DefaultModel)
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("ai adapter: %w", err)
		}
		log.Info().Str("base", cfg.AI.BaseURL).Str("model", cfg.AI.DefaultModel).Msg("ai adapter ready")
	} else {
		if !cfg.Runtime.Dev {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("ai.api_key is required outside dev mode")
		}
		ai = aiAdapters.NewNoopAdapter()
		log.Warn().Msg("no ai.api_key set, using noop adapter")
	}

	cost, err := usecase.NewCostEstimator()
	if err != nil {
		// Estimation degrades to the per-call baseline without an encoder.
		log.Warn().Err(err).Msg("token encoder unavailable, cost estimates are baseline-only")
		cost = nil
	}

	tools := usecase.NewToolRegistry(jobUC, cfg.Costs)
	agentUC := usecase.NewAgentUseCase(ai, tools, checkpoints, cost, cfg.AI.DefaultModel, cfg.AI.MaxIterations, log)

	return &App{
		Cfg:     cfg,
		Log:     log,
		Pool:    pool,
		Redis:   redisClient,
		AI:      ai,
		JobUC:   jobUC,
		AgentUC: agentUC,
	}, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
