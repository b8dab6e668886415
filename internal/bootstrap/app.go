// Package bootstrap assembles the process-wide dependencies shared by the API,
// the long-poll worker and the Lambda entry points.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"conformity-backend/internal/analyses"
	"conformity-backend/internal/extract"
	"conformity-backend/internal/idempotency"
	"conformity-backend/internal/jobs"
	"conformity-backend/internal/llm"
	anthropicllm "conformity-backend/internal/llm/anthropic"
	openaillm "conformity-backend/internal/llm/openai"
	"conformity-backend/internal/prompt"
	"conformity-backend/internal/queue"
	"conformity-backend/internal/ratelimit"
	"conformity-backend/internal/shared/config"
	"conformity-backend/internal/shared/server"
	"conformity-backend/internal/shared/storage/db"
	"conformity-backend/internal/shared/storage/object"
	localstore "conformity-backend/internal/shared/storage/object/local"
	s3store "conformity-backend/internal/shared/storage/object/s3"
	"conformity-backend/internal/shared/telemetry"
)

const retryJitter = 250 * time.Millisecond

// App holds shared dependencies.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Redis           *redis.Client
	Store           object.ObjectStore
	Queue           queue.Client
	Limiter         *ratelimit.Limiter
	Idempotency     idempotency.Store
	Jobs            *jobs.Machine
	Results         analyses.Repo
	Analyzer        *analyses.Analyzer
	AnalysesService *analyses.Service
	AnalysisHandler *analyses.Handler
	ExtractHandler  *extract.Handler
}

// Build prepares shared dependencies and the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	redisClient, limiter, err := buildLimiter(cfg)
	if err != nil {
		return nil, err
	}
	completer, err := buildOrchestrator(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:      cfg,
		DB:          sqlDB,
		Redis:       redisClient,
		Store:       store,
		Queue:       queueClient,
		Limiter:     limiter,
		Idempotency: buildIdempotency(redisClient),
	}
	buildServices(app, completer)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		Limiter:         limiter,
		AnalysisHandler: app.AnalysisHandler,
		ExtractHandler:  app.ExtractHandler,
		Health:          app.health,
	})
	return app, nil
}

// Processor is what queue consumers drive.
func (a *App) Processor() *analyses.Service {
	return a.AnalysesService
}

func (a *App) health() map[string]any {
	mode := "inline"
	if a.Queue != nil {
		mode = "sqs"
	}
	storage := "memory"
	if a.DB != nil {
		storage = "postgres"
	}
	return map[string]any{
		"env":          a.Config.Env,
		"queue":        mode,
		"storage":      storage,
		"objectStore":  a.Config.ObjectStoreType,
		"llmAvailable": a.Analyzer != nil && a.Analyzer.LLM != nil,
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_storage", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultLambdaOptions()))
	} else {
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_storage", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if isDevLike(cfg.Env) {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.S3KMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildQueue returns a nil interface when no queue is configured so callers
// can compare against nil.
func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil, nil
	}
	client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func buildLimiter(cfg config.Config) (*redis.Client, *ratelimit.Limiter, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, ratelimit.New(ratelimit.NewMemoryStore()), nil
	}
	client, err := ratelimit.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return client, ratelimit.New(ratelimit.NewRedisStore(client)), nil
}

// buildIdempotency shares the limiter's Redis when there is one.
func buildIdempotency(client *redis.Client) idempotency.Store {
	if client == nil {
		return idempotency.NewMemoryStore()
	}
	return idempotency.NewRedisStore(client)
}

// buildOrchestrator wires the primary and, when configured, secondary
// provider. In dev-like environments a missing primary key leaves the
// pipeline unconfigured instead of failing startup.
func buildOrchestrator(cfg config.Config) (analyses.Completer, error) {
	primary, err := openaillm.NewClient(openaillm.Config{
		Name:    cfg.Primary.Name,
		APIKey:  cfg.Primary.APIKey,
		BaseURL: cfg.Primary.BaseURL,
		Model:   cfg.Primary.Model,
	})
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.llm_unavailable", map[string]any{"error": err.Error()})
			return nil, nil
		}
		return nil, err
	}

	orch := &llm.Orchestrator{
		Primary: llm.Step{
			Provider: llm.NewPaced(primary, cfg.Primary.RPM),
			Policy:   retryPolicy(cfg, cfg.Primary),
			Timeout:  cfg.Primary.Timeout,
		},
		ForceFallback: cfg.ForceFallback,
	}

	if strings.TrimSpace(cfg.Secondary.APIKey) != "" {
		secondary, err := anthropicllm.NewClient(anthropicllm.Config{
			Name:    cfg.Secondary.Name,
			APIKey:  cfg.Secondary.APIKey,
			BaseURL: cfg.Secondary.BaseURL,
			Model:   cfg.Secondary.Model,
		})
		if err != nil {
			return nil, err
		}
		orch.Secondary = llm.Step{
			Provider: llm.NewPaced(secondary, cfg.Secondary.RPM),
			Policy:   retryPolicy(cfg, cfg.Secondary),
			Timeout:  cfg.Secondary.Timeout,
		}
	} else {
		telemetry.Warn("bootstrap.secondary_disabled", map[string]any{"reason": "SECONDARY_API_KEY empty"})
	}
	return orch, nil
}

func retryPolicy(cfg config.Config, p config.ProviderConfig) llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts: p.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		MaxJitter:   retryJitter,
	}
}

func buildServices(app *App, completer analyses.Completer) {
	var (
		jobStore jobs.Store
		results  analyses.Repo
	)
	if app.DB != nil {
		jobStore = &jobs.PGStore{DB: app.DB}
		results = &analyses.PGRepo{DB: app.DB}
	} else {
		jobStore = jobs.NewMemoryStore()
		results = analyses.NewMemoryRepo()
	}

	analyzer := &analyses.Analyzer{
		Composer:      prompt.NewComposer(),
		LLM:           completer,
		MaxLength:     app.Config.SanitizeMaxLength,
		IncrementalAt: app.Config.IncrementalAt,
	}

	app.Jobs = jobs.NewMachine(jobStore)
	app.Results = results
	app.Analyzer = analyzer
	app.AnalysesService = &analyses.Service{
		Jobs:           app.Jobs,
		Repo:           results,
		Analyzer:       analyzer,
		Store:          app.Store,
		Queue:          app.Queue,
		Idempotency:    app.Idempotency,
		IdempotencyTTL: app.Config.IdempotencyTTL,
	}
	app.AnalysisHandler = analyses.NewHandler(app.AnalysesService)
	app.ExtractHandler = extract.NewHandler(app.Store, app.Config.ExtractMaxBytes)
}

// Close releases pooled connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil && !db.IsLambdaRuntime() {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
