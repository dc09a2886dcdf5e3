package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokengate/tokengate/api"
	"github.com/tokengate/tokengate/metrics"
	"github.com/tokengate/tokengate/middleware"
	"github.com/tokengate/tokengate/obs"
	"github.com/tokengate/tokengate/pkg/tokengate"
	"github.com/tokengate/tokengate/rules"
)

func main() {
	port := getEnv("PORT", "8080")
	redisAddr := getEnv("REDIS_ADDR", "")
	configFile := getEnv("CONFIG_FILE", "")

	logger := obs.SetupLogger(getEnv("LOG_LEVEL", "info"))

	// Default policy, optionally replaced from a YAML config file
	policy := tokengate.BucketConfig{Capacity: 100, RefillRate: 10.0}
	cleanupAge := 1 * time.Hour
	if configFile != "" {
		cfg, err := tokengate.LoadConfigFromFile(configFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", configFile).Msg("load config")
		}
		policy = cfg.Defaults.ToBucketConfig()
		if age, err := time.ParseDuration(cfg.CleanupAge); err == nil {
			cleanupAge = age
		}
		logger.Info().Str("path", configFile).Msg("loaded config file")
	}

	// Rule storage: Redis when configured, in-memory otherwise
	var ruleStore rules.Store
	if redisAddr != "" {
		redisStore := rules.NewRedisStore(rules.RedisConfig{
			Addr:     redisAddr,
			Password: getEnv("REDIS_PASSWORD", ""),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisStore.Ping(ctx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", redisAddr).Msg("redis unreachable")
		}
		logger.Info().Str("addr", redisAddr).Msg("using redis rule store")
		ruleStore = redisStore
	} else {
		logger.Info().Msg("using in-memory rule store")
		ruleStore = rules.NewMemoryStore()
	}
	defer ruleStore.Close()

	buckets, err := tokengate.NewInMemoryStore(policy, cleanupAge)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bucket store")
	}
	stopCleanup := buckets.StartBackgroundCleanup(10 * time.Minute)
	defer stopCleanup()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	metrics.RegisterActiveBuckets(reg, buckets.Count)

	checkHandler := api.NewHandler(buckets, ruleStore, policy, m, logger)
	rulesHandler := api.NewRulesHandler(ruleStore, logger)

	mux := http.NewServeMux()
	mux.Handle("/check", middleware.Chain(
		http.HandlerFunc(checkHandler.CheckRateLimit),
		m.Middleware("check"),
	))
	mux.Handle("/rules/", middleware.Chain(
		rulesHandler,
		m.Middleware("rules"),
	))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	handler := middleware.Chain(
		mux,
		obs.Logger(logger),
		middleware.BodyLimit(1<<20),
	)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
