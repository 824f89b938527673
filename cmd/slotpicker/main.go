package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bookingslots/internal/api"
	"bookingslots/internal/bookingcache"
	"bookingslots/internal/bookingsapi"
	"bookingslots/internal/config"
	"bookingslots/internal/metrics"
	"bookingslots/internal/picker"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SLOTPICKER_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && cfg.Log.Level != "" {
		logger = logger.Level(lvl)
	}

	facility, err := cfg.LoadFacility()
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.FacilityConfigPath).Msg("failed to load facility settings")
	}
	logger.Info().Str("facility", facility.String()).Msg("facility settings loaded")

	if cfg.API.BaseURL == "" {
		logger.Fatal().Msg("set api.base_url in config")
	}
	client := bookingsapi.NewClient(cfg.API.BaseURL, cfg.API.APIKey, cfg.APITimeout())
	if perSecond, burst := cfg.APIRate(); perSecond > 0 {
		client.UseRateLimit(perSecond, burst)
	}
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.APICacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		client.UseRedisCache(rdb, cfg.APICacheTTL())
	}

	var svc *picker.Service
	fetch := bookingcache.NewFetchFunc(client, func() *time.Location { return svc.Facility().Location() }, &logger)
	cache, err := bookingcache.New(fetch, bookingcache.Options{Size: cfg.CacheSize(), TTL: cfg.CacheTTL()}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create booking cache error")
	}
	svc = picker.NewService(picker.NewSessionStore(cfg.SessionIdleTimeout()), cache, client, facility, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		err := config.WatchFacility(ctx, cfg.FacilityConfigPath, 10*time.Second,
			func(fc *config.FacilityConfig) {
				svc.SetFacility(fc)
				logger.Info().Str("facility", fc.String()).Msg("facility settings reloaded")
			},
			func(err error) {
				logger.Warn().Err(err).Msg("facility settings reload failed; keeping previous")
			})
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("facility watcher stopped")
		}
	}()

	go cleanupSessions(ctx, svc, time.Minute, &logger)

	go startHealthServer(ctx, cfg.HealthCheckPort(), client, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.PrometheusPort(), &logger)
	}

	srv := api.NewHTTPServer(cfg.HTTPPort(), svc, &logger)
	logger.Info().Msg("slot picker started")
	if err := srv.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

func cleanupSessions(ctx context.Context, svc *picker.Service, every time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.Cleanup(); n > 0 {
				logger.Debug().Int("removed", n).Msg("idle picker sessions dropped")
			}
		}
	}
}

func startHealthServer(ctx context.Context, port int, client *bookingsapi.Client, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.HealthCheck(ctxPing); err != nil {
			http.Error(w, "bookings backend not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
