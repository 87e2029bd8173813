package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"shiptrack/internal/platform/config"
	"shiptrack/internal/platform/httpserver"
	"shiptrack/internal/platform/kafka"
	"shiptrack/internal/platform/logger"
	platformmetrics "shiptrack/internal/platform/metrics"
	"shiptrack/internal/platform/postgres"
	platformredis "shiptrack/internal/platform/redis"
	"shiptrack/internal/tracking/carriers"
	"shiptrack/internal/tracking/events"
	"shiptrack/internal/tracking/handler"
	"shiptrack/internal/tracking/loader"
	"shiptrack/internal/tracking/metrics"
	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/normalizer"
	"shiptrack/internal/tracking/orchestrator"
	"shiptrack/internal/tracking/orderstatus"
	"shiptrack/internal/tracking/ports"
	"shiptrack/internal/tracking/ratelimit"
	"shiptrack/internal/tracking/ratelimit/bucket"
	"shiptrack/internal/tracking/reconcile"
	"shiptrack/internal/tracking/registry"
	"shiptrack/internal/tracking/scheduler"
	"shiptrack/internal/tracking/service"
	"shiptrack/internal/tracking/store/status"
	"shiptrack/pkg/platform/circuit"
	"shiptrack/pkg/platform/httputil"
	request "shiptrack/pkg/platform/middleware/request"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/tracking.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("shiptrack exited with error", "error", err)
		os.Exit(1)
	}
}

// infra holds optional backends. Nil fields fall back to in-memory versions.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client
	kafka *kgo.Client
}

func (i *infra) close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if db != nil {
		in.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			in.close()
			return nil, err
		}
		log.Info("using postgres status store")
	}

	rc, err := platformredis.New(cfg.Redis)
	if err != nil {
		in.close()
		return nil, err
	}
	if rc != nil {
		in.redis = rc
		log.Info("using redis rate limit windows")
	}

	kc, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		in.close()
		return nil, err
	}
	if kc != nil {
		in.kafka = kc
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka.StatusTopic, 3, 1); err != nil {
			in.close()
			return nil, err
		}
		log.Info("publishing status events to kafka", "topic", cfg.Kafka.StatusTopic)
	}
	return in, nil
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close()

	trackingMetrics := metrics.New()
	httpMetrics := platformmetrics.New()

	var store ports.StatusStore = status.NewInMemory()
	if in.db != nil {
		store = status.NewPostgres(in.db)
	}
	var buckets ports.BucketStore = bucket.NewInMemoryBucketStore()
	if in.redis != nil {
		buckets = bucket.NewRedisBucketStore(in.redis.Client)
	}
	var publishers events.Fanout
	if in.db != nil {
		publishers = append(publishers, orderstatus.NewPublisher(orderstatus.NewPostgres(in.db)))
	}
	if in.kafka != nil {
		publishers = append(publishers, events.NewKafkaPublisher(in.kafka, cfg.Kafka.StatusTopic))
	}

	normOpts, err := normalizer.LoadFile(cfg.Tracking.MappingFile)
	if err != nil {
		return err
	}
	norm := normalizer.New(normOpts...)

	limiter, err := ratelimit.New(buckets,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(trackingMetrics),
		ratelimit.WithLimits(ratelimit.Limits{
			models.CarrierAmazon:     ratelimit.PerMinute(cfg.RateLimit.AmazonPerMinute),
			models.CarrierXpressbees: ratelimit.PerMinute(cfg.RateLimit.XpressbeesPerMinute),
			models.CarrierShiprocket: ratelimit.PerMinute(cfg.RateLimit.ShiprocketPerMinute),
		}),
	)
	if err != nil {
		return err
	}

	adapters, err := newAdapters(cfg.Carriers, log, trackingMetrics)
	if err != nil {
		return err
	}

	reconciler, err := reconcile.New(store, norm,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(trackingMetrics),
		reconcile.WithPublisher(publishers),
	)
	if err != nil {
		return err
	}

	queue := registry.New()
	orch, err := orchestrator.New(queue, adapters, limiter, norm, reconciler,
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(trackingMetrics),
		orchestrator.WithEntryTimeout(cfg.Tracking.EntryTimeout),
		orchestrator.WithNonBlocking(cfg.Tracking.NonBlocking),
	)
	if err != nil {
		return err
	}

	svc, err := service.New(queue, store, reconciler, orch,
		service.WithLogger(log),
		service.WithMetrics(trackingMetrics),
		service.WithCarrierLookup(adapters, limiter, norm),
	)
	if err != nil {
		return err
	}

	if cfg.Server.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is not set, operator routes are unauthenticated")
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(request.Middleware)
	r.Use(httpMetrics.Middleware)
	r.Get("/health", healthHandler(in))
	r.Handle("/metrics", promhttp.Handler())
	handler.New(svc, log, cfg.Server.AdminToken).Register(r)

	srv := httpserver.New(cfg.Server.Addr, r)
	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting shiptrack", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	schedDone := make(chan struct{})
	if cfg.Tracking.Interval > 0 {
		sched, err := scheduler.New(svc, cfg.Tracking.Interval,
			scheduler.WithLogger(log),
			scheduler.WithLoader(newLoader(cfg, in, log)),
		)
		if err != nil {
			return err
		}
		go func() {
			defer close(schedDone)
			_ = sched.Run(ctx)
		}()
	} else {
		log.Info("tracking scheduler disabled, cycles run only on demand")
		close(schedDone)
	}

	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		log.Warn("tracking cycle did not stop before shutdown timeout")
	}
	return nil
}

func newAdapters(cfg config.Carriers, log *slog.Logger, m *metrics.Metrics) (*carriers.Registry, error) {
	raw := []carriers.Adapter{
		carriers.NewAmazonAdapter(cfg.AmazonURL, carriers.WithTimeout(cfg.Timeout)),
		carriers.NewXpressbeesAdapter(cfg.XpressbeesURL,
			carriers.WithTimeout(cfg.Timeout),
			carriers.WithToken(cfg.XpressbeesToken),
		),
		carriers.NewShiprocketAdapter(cfg.ShiprocketURL,
			carriers.WithTimeout(cfg.Timeout),
			carriers.WithToken(cfg.ShiprocketToken),
		),
	}
	guarded := make([]carriers.Adapter, 0, len(raw))
	for _, a := range raw {
		breaker := circuit.New(a.Carrier().String(),
			circuit.WithFailureThreshold(cfg.BreakerFailures),
			circuit.WithSuccessThreshold(cfg.BreakerSuccesses),
			circuit.WithCooldown(cfg.BreakerCooldown),
		)
		guarded = append(guarded, carriers.Guard(a, breaker,
			carriers.WithGuardLogger(log),
			carriers.WithGuardMetrics(m),
		))
	}
	return carriers.NewRegistry(guarded...)
}

// newLoader prefers the orders table, then a static file. Without either the
// scheduler only runs cycles over orders enrolled through the API.
func newLoader(cfg config.Config, in *infra, log *slog.Logger) scheduler.Loader {
	if in.db != nil {
		return loader.NewPostgres(in.db)
	}
	if cfg.Tracking.StaticOrdersFile != "" {
		l, err := loader.LoadStaticFile(cfg.Tracking.StaticOrdersFile)
		if err != nil {
			log.Error("ignoring static orders file", "error", err)
			return nil
		}
		return l
	}
	return nil
}

func healthHandler(in *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := map[string]string{}
		healthy := true
		if in.db != nil {
			checks["postgres"] = "ok"
			if err := in.db.PingContext(ctx); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			}
		}
		if in.redis != nil {
			checks["redis"] = "ok"
			if err := in.redis.Health(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}
		code := http.StatusOK
		state := "ok"
		if !healthy {
			code = http.StatusServiceUnavailable
			state = "degraded"
		}
		httputil.WriteJSON(w, code, map[string]any{"status": state, "checks": checks})
	}
}
