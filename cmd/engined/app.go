package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/shelfscribe/engine/internal/cache"
	"github.com/shelfscribe/engine/internal/config"
	"github.com/shelfscribe/engine/internal/events"
	"github.com/shelfscribe/engine/internal/executor"
	"github.com/shelfscribe/engine/internal/generation"
	"github.com/shelfscribe/engine/internal/job"
	"github.com/shelfscribe/engine/internal/platform/gemini"
	"github.com/shelfscribe/engine/internal/platform/logger"
	"github.com/shelfscribe/engine/internal/platform/postgres"
	redistier "github.com/shelfscribe/engine/internal/platform/redis"
	"github.com/shelfscribe/engine/internal/task"
)

// copyGenerationKind is the task kind for catalog copy generation, the
// engine's primary workload.
const copyGenerationKind = "copy_generation"

// application holds all the initialized components of the engine.
type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *sql.DB
	cache   *cache.ResultCache
	batch   *executor.BatchExecutor
	pool    *task.WorkerPool
	tracker *job.Tracker
	emitter *events.MultiSinkEmitter

	// tierCloser releases the shared cache tier's connection pool at
	// shutdown; nil when the engine runs local-only.
	tierCloser io.Closer
}

// newApplication wires the full component graph from configuration. Every
// dependency is constructed here and injected; nothing reaches for globals.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// The shared cache tier is optional: without Redis the result cache runs
	// local-only and the engine stays fully functional.
	var sharedTier cache.SharedTier
	var tierCloser io.Closer
	if cfg.Cache.RedisAddr != "" {
		tier, err := redistier.NewTier(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			log.Warn("shared cache tier unavailable, continuing local-only",
				"addr", cfg.Cache.RedisAddr,
				"error", err)
		} else {
			sharedTier = tier
			tierCloser = tier
			log.Info("shared cache tier connected", "addr", cfg.Cache.RedisAddr)
		}
	}
	resultCache := cache.NewResultCache(sharedTier, log)

	generator, err := gemini.NewGenerator(ctx, log, cfg.LLM)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create content generator: %w", err)
	}

	invoker := executor.NewRetryingInvoker(executor.RetryPolicy{
		MaxRetries:     cfg.Executor.MaxRetries,
		BaseBackoff:    time.Duration(cfg.Executor.BaseBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Executor.MaxBackoffMs) * time.Millisecond,
		AttemptTimeout: time.Duration(cfg.Executor.AttemptTimeoutMs) * time.Millisecond,
		IsRetryable:    isRetryableGeneration,
	}, log)

	batch := executor.NewBatchExecutor(
		resultCache,
		invoker,
		int64(cfg.Executor.MaxConcurrent),
		time.Duration(cfg.Cache.DefaultTTLSeconds)*time.Second,
		log,
	)

	emitter := events.NewMultiSinkEmitter(log)
	emitter.RegisterSink(events.NewLoggingSink(log))
	if cfg.Events.WebhookURL != "" {
		emitter.RegisterSink(events.NewWebhookSink(cfg.Events.WebhookURL, 10*time.Second, log))
		log.Info("webhook progress sink registered", "url", cfg.Events.WebhookURL)
	}

	jobStore := postgres.NewPostgresJobStore(db, log)
	tracker := job.NewTracker(jobStore, emitter, log)

	pool := task.NewWorkerPool(task.PoolConfig{
		WorkerCount: cfg.Queue.WorkerCount,
		QueueSize:   cfg.Queue.Size,
	}, log)
	pool.RegisterHandler(copyGenerationKind, copyGenerationHandler(batch, generator))

	return &application{
		cfg:        cfg,
		logger:     log,
		db:         db,
		cache:      resultCache,
		batch:      batch,
		pool:       pool,
		tracker:    tracker,
		emitter:    emitter,
		tierCloser: tierCloser,
	}, nil
}

// start runs startup recovery and launches the worker pool.
func (a *application) start(ctx context.Context) error {
	recovered, err := a.tracker.RecoverJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		a.logger.Warn("recovered interrupted jobs from previous run", "count", recovered)
	}

	if err := a.pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	return nil
}

// shutdown stops accepting work, waits for in-flight jobs, and releases
// resources.
func (a *application) shutdown() {
	a.logger.Info("shutting down")
	a.pool.Stop()
	a.tracker.Wait()

	stats := a.cache.Stats()
	a.logger.Info("cache statistics at shutdown",
		"hits", stats.Hits,
		"misses", stats.Misses,
		"hit_rate", stats.HitRate)

	if a.tierCloser != nil {
		if err := a.tierCloser.Close(); err != nil {
			a.logger.Error("error closing shared cache tier", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("error closing database connection", "error", err)
	}
	a.logger.Info("shutdown complete")
}

// copyGenerationHandler adapts the batch executor and generator into a worker
// pool handler: one queued task fans out into a cached, gated, retried batch
// of content generations.
func copyGenerationHandler(batch *executor.BatchExecutor, generator generation.Generator) task.Handler {
	return func(ctx context.Context, payload json.RawMessage, report func(float64)) (json.RawMessage, error) {
		var reqs []generation.Request
		if err := json.Unmarshal(payload, &reqs); err != nil {
			return nil, fmt.Errorf("invalid copy generation payload: %w", err)
		}
		if len(reqs) == 0 {
			return json.RawMessage("[]"), nil
		}

		workReqs := make([]executor.WorkRequest, len(reqs))
		for i, r := range reqs {
			encoded, err := json.Marshal(r)
			if err != nil {
				return nil, fmt.Errorf("failed to encode generation request: %w", err)
			}
			workReqs[i] = executor.WorkRequest{Kind: copyGenerationKind, Payload: encoded}
		}

		report(0)
		results := batch.RunBatch(ctx, copyGenerationKind, workReqs, func(attemptCtx context.Context, req executor.WorkRequest) ([]byte, error) {
			var genReq generation.Request
			if err := json.Unmarshal(req.Payload, &genReq); err != nil {
				return nil, err
			}
			result, err := generator.Generate(attemptCtx, genReq)
			if err != nil {
				return nil, err
			}
			return json.Marshal(result)
		})
		report(1)

		type itemOutput struct {
			SKU    string          `json:"sku"`
			Field  string          `json:"field"`
			Result json.RawMessage `json:"result,omitempty"`
			Error  string          `json:"error,omitempty"`
			Cached bool            `json:"cached"`
		}
		outputs := make([]itemOutput, len(results))
		for i, res := range results {
			outputs[i] = itemOutput{
				SKU:    reqs[i].SKU,
				Field:  reqs[i].Field,
				Result: res.Value,
				Cached: res.Cached,
			}
			if res.Err != nil {
				outputs[i].Error = res.Err.Error()
			}
		}

		return json.Marshal(outputs)
	}
}

// isRetryableGeneration composes the executor's default transience rules with
// the generation error taxonomy.
func isRetryableGeneration(err error) bool {
	if executor.DefaultIsRetryable(err) {
		return true
	}
	return generation.IsTransient(err)
}
