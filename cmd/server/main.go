// Command server wires the decision engine and serves its HTTP surface.
// Business logic lives in the internal service packages; main only builds
// dependencies, mounts routes, and manages the server lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arbiter/internal/compare"
	"arbiter/internal/decision"
	decisionhandler "arbiter/internal/decision/handler"
	decisionmetrics "arbiter/internal/decision/metrics"
	decisionstore "arbiter/internal/decision/store"
	"arbiter/internal/dispatch"
	"arbiter/internal/facts"
	"arbiter/internal/override"
	"arbiter/internal/platform/config"
	"arbiter/internal/platform/httpserver"
	"arbiter/internal/platform/logger"
	redisplatform "arbiter/internal/platform/redis"
	"arbiter/internal/risk"
	ruleshandler "arbiter/internal/rules/handler"
	rulesservice "arbiter/internal/rules/service"
	rulesstore "arbiter/internal/rules/store"
	"arbiter/internal/stp"
	"arbiter/internal/worklist"
	"arbiter/pkg/platform/httputil"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		ruleStore     rulesservice.Store
		decisionStore decision.Store
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		ruleStore = rulesstore.NewPostgres(db)
		decisionStore = decisionstore.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		ruleStore = rulesstore.NewInMemory()
		decisionStore = decisionstore.NewInMemory()
		log.Info("using in-memory stores")
	}

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("risk assessment cache enabled")
	}

	// Facts arrive from the golden-record system; the in-memory provider is
	// the dev stand-in for that integration.
	provider := facts.NewInMemoryProvider()

	// Risk scoring.
	var scorer risk.Scorer = risk.StubScorer{}
	if cfg.ScorerURL != "" {
		scorer, err = risk.NewHTTPScorer(cfg.ScorerURL)
		if err != nil {
			return err
		}
	} else {
		log.Warn("no scorer url configured, using stub scorer")
	}
	thresholds := risk.NewThresholdStore(risk.Thresholds{
		LowBelow: cfg.RiskLowBelow,
		HighFrom: cfg.RiskHighFrom,
	})
	riskOpts := []risk.Option{
		risk.WithLogger(log),
		risk.WithTimeout(cfg.ScorerTimeout),
	}
	if redisClient != nil {
		riskOpts = append(riskOpts, risk.WithCache(risk.NewRedisCache(redisClient.Client, cfg.RiskCacheTTL)))
	}
	assessor, err := risk.New(scorer, thresholds, riskOpts...)
	if err != nil {
		return err
	}

	// Downstream dispatch.
	var dispatcher decision.Dispatcher = dispatch.NewInMemory()
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := dispatch.NewKafka(cfg.Kafka.Brokers, dispatch.WithKafkaLogger(log))
		if err != nil {
			return err
		}
		defer kafka.Close()
		dispatcher = kafka
		log.Info("kafka dispatch enabled", "brokers", cfg.Kafka.Brokers)
	}

	// Services.
	rules, err := rulesservice.New(ruleStore, rulesservice.WithLogger(log))
	if err != nil {
		return err
	}
	metrics := decisionmetrics.New()
	decisions, err := decision.NewService(rules, provider, assessor, decisionStore,
		decision.WithLogger(log),
		decision.WithMetrics(metrics),
		decision.WithDispatcher(dispatcher),
	)
	if err != nil {
		return err
	}
	overrides, err := override.New(decisionStore,
		override.WithLogger(log),
		override.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	comparer, err := compare.New(rules, provider, assessor, compare.WithLogger(log))
	if err != nil {
		return err
	}
	aggregator, err := stp.New(decisionStore)
	if err != nil {
		return err
	}
	worklists, err := worklist.New(rules, provider, provider, decisions,
		worklist.WithLogger(log),
		worklist.WithConcurrency(cfg.WorklistConcurrency),
	)
	if err != nil {
		return err
	}

	// Router.
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(httputil.RequestContext)
	router.Get("/healthz", healthz(redisClient))
	router.Handle("/metrics", promhttp.Handler())
	ruleshandler.New(rules, log).Register(router)
	decisionhandler.New(decisions, overrides, comparer, aggregator, worklists, thresholds, log).Register(router)

	srv := httpserver.New(cfg.Addr, router, httpserver.Options{
		ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	})
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthz(redisClient *redisplatform.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
