// cmd/pipeline-worker/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"match-pipeline/internal/artifact"
	"match-pipeline/internal/common/config"
	"match-pipeline/internal/common/database"
	"match-pipeline/internal/common/gemini"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/notify"
	"match-pipeline/internal/common/observability"
	"match-pipeline/internal/common/ratelimit"
	"match-pipeline/internal/dispatch"
	"match-pipeline/internal/jobsearch"
	"match-pipeline/internal/pipeline"
	"match-pipeline/internal/queue"
	"match-pipeline/internal/salary"
	"match-pipeline/internal/store"
	"match-pipeline/pkg/registry"
)

const (
	profileCacheTTL = 10 * time.Minute
	// consumers idle this long with nothing pending belong to dead replicas
	abandonedConsumerIdle = 24 * time.Hour
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting pipeline worker...", zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return esClient.Ping(pingCtx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init External Service Clients ---
	genClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:         cfg.Gemini.APIKey,
		Model:          cfg.Gemini.Model,
		EmbeddingModel: cfg.Gemini.EmbeddingModel,
		Dimensions:     cfg.Gemini.Dimensions,
		Timeout:        config.GetDuration(cfg.Gemini.Timeout),
	})
	if err != nil {
		zapLog.Fatal("gemini client init failed", zap.Error(err))
	}

	notifier, err := notify.NewFromConfig(ctx, cfg.Notifications)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}

	index := jobsearch.New(esClient.Client, cfg.Search.JobsIndex, config.GetDuration(cfg.Search.Timeout), log)
	if err := retryWithBackoff(func() error { return index.EnsureIndex(ctx) }, 5, 2*time.Second, zapLog, "jobs index setup"); err != nil {
		zapLog.Fatal("jobs index unavailable", zap.Error(err))
	}

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("kind registry invalid", zap.Error(err))
	}

	entities := store.New(pg.DB)
	artifacts := artifact.NewStore(pg.DB)
	svc := services{
		entities:  entities,
		profiles:  store.NewProfileCache(rdb.Client, entities, profileCacheTTL, log),
		artifacts: artifacts,
		index:     index,
		generator: genClient,
		embedder:  genClient,
		limiter: ratelimit.New(rdb.Client, ratelimit.Config{
			ID:            cfg.RateLimit.ID,
			MinTime:       config.GetDuration(cfg.RateLimit.MinTime),
			MaxConcurrent: cfg.RateLimit.MaxConcurrent,
			Lease:         config.GetDuration(cfg.RateLimit.Lease),
			PollInterval:  config.GetDuration(cfg.RateLimit.PollInterval),
		}, log),
		aggregator: salary.NewAggregator(salary.ConfigFrom(cfg.Salary), log),
	}

	handlers := buildHandlers(cfg, svc, log)
	deps := dispatch.Deps{Logger: log, Notifier: notifier, Observability: obs}
	consumerName := consumerID(cfg.App.Instance)
	depths := make(map[string]observability.DepthFunc)
	var consumers []*queue.Consumer

	// --- START: one dispatcher and reclaimer per queue ---
	var wg sync.WaitGroup
	for _, q := range reg.Queues() {
		table, disabled, err := tableFor(q, reg.KindsFor(q), handlers)
		if err != nil {
			zapLog.Fatal("dispatch table invalid", zap.String("queue", q), zap.Error(err))
		}
		if len(disabled) > 0 {
			zapLog.Warn("kinds without an enabled worker will be dead-lettered",
				zap.String("queue", q), zap.Strings("kinds", disabled))
		}
		if table == nil {
			zapLog.Info("queue has no enabled workers, not consuming", zap.String("queue", q))
			continue
		}

		qcfg := cfg.Queues[q]
		consumer := queue.NewConsumer(rdb.Client, queue.ConsumerConfig{
			Queue:    q,
			Consumer: consumerName,
			Block:    config.GetDuration(qcfg.Block),
		}, log)
		if err := consumer.EnsureGroup(ctx); err != nil {
			zapLog.Fatal("consumer group setup failed", zap.String("queue", q), zap.Error(err))
		}

		if removed, err := consumer.PruneIdle(ctx, abandonedConsumerIdle); err != nil {
			zapLog.Warn("could not prune abandoned consumers", zap.String("queue", q), zap.Error(err))
		} else if len(removed) > 0 {
			zapLog.Info("pruned abandoned consumers", zap.String("queue", q), zap.Strings("consumers", removed))
		}
		consumers = append(consumers, consumer)
		depths[q] = consumer.Depth

		d := dispatch.New(consumer, table, dispatch.ConfigFrom(qcfg), deps)
		reclaimer := dispatch.NewReclaimer(d, log)

		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := d.Run(ctx); err != nil {
				zapLog.Error("dispatcher stopped with error", zap.String("queue", q), zap.Error(err))
			}
		}()
		go func() {
			defer wg.Done()
			reclaimer.Run(ctx)
		}()

		zapLog.Info("queue started",
			zap.String("queue", q),
			zap.Strings("kinds", table.Kinds()),
			zap.Int("concurrency", qcfg.Concurrency),
		)
	}

	if err := obs.ObserveQueueDepth(depths); err != nil {
		zapLog.Warn("queue depth gauge not registered", zap.Error(err))
	}

	if cfg.Sweeper.Enabled {
		sweeper := dispatch.NewSweeper(artifacts, dispatch.SweeperConfig{
			Interval:   config.GetDuration(cfg.Sweeper.Interval),
			StuckAfter: config.GetDuration(cfg.Sweeper.StuckAfter),
		}, log).WithBacklog(queueBacklog(reg, depths))
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx)
		}()
	}

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
		if err := pg.Ping(pingCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "postgres unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	server := &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining running jobs...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		zapLog.Warn("shutdown timed out with jobs still running; they will be reclaimed as stalled")
	}

	for _, c := range consumers {
		if _, err := c.Leave(shutdownCtx); err != nil {
			zapLog.Warn("could not leave consumer group", zap.String("queue", c.Queue()), zap.Error(err))
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("Pipeline worker stopped gracefully")
}

// consumerID names this replica inside every consumer group. The name is
// stable across restarts so a restarted process takes over its own group
// membership instead of adding a new consumer.
func consumerID(instance string) string {
	if instance != "" {
		return instance
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker"
	}
	return host
}

// artifactJobKinds names the job kind that advances each artifact kind.
var artifactJobKinds = map[artifact.Kind]string{
	artifact.KindInterviewPrep:     pipeline.KindInterviewPrep,
	artifact.KindCandidateQuestion: pipeline.KindCandidateQuestion,
	artifact.KindInterviewKit:      pipeline.KindInterviewKit,
	artifact.KindSalaryPrediction:  pipeline.KindSalaryPrediction,
}

// queueBacklog reports a backlog when the queue that advances kind still
// holds entries, ready, running or delayed.
func queueBacklog(reg *registry.KindRegistry, depths map[string]observability.DepthFunc) dispatch.Backlog {
	return func(ctx context.Context, kind artifact.Kind) (bool, error) {
		spec, ok := reg.Lookup(artifactJobKinds[kind])
		if !ok {
			return false, nil
		}
		depth, ok := depths[spec.Queue]
		if !ok {
			return false, nil
		}
		ready, delayed, err := depth(ctx)
		if err != nil {
			return false, err
		}
		return ready+delayed > 0, nil
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
