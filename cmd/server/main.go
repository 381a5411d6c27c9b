package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bakerypos/backend/internal/cache"
	"bakerypos/backend/internal/config"
	"bakerypos/backend/internal/httpapi"
	"bakerypos/backend/internal/logger"
	"bakerypos/backend/internal/metrics"
	"bakerypos/backend/internal/service"
	"bakerypos/backend/internal/store"
	"bakerypos/backend/internal/store/memory"
	pgstore "bakerypos/backend/internal/store/postgres"
)

const cartSweepInterval = time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: cfg.ServiceName,
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "server exited", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logg *logger.Logger) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(reg)

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return fmt.Errorf("apply schema: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logg.Info(ctx, "repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logg.Info(ctx, "repository: in-memory")
	}

	var forecastCache cache.ForecastCache = cache.NewMemoryForecastCache()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisForecastCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logg.Error(ctx, "redis unavailable, using in-process cache", err)
			_ = redisCache.Close()
		} else {
			forecastCache = redisCache
			closers = append(closers, redisCache.Close)
			logg.Info(ctx, "cache: redis")
		}
	} else {
		logg.Info(ctx, "cache: in-process")
	}

	svc := service.New(repo, service.Options{
		Logger:           logg,
		Metrics:          recorder,
		ForecastCache:    forecastCache,
		ForecastCacheTTL: cfg.ForecastCacheTTL,
		CartIdleTTL:      cfg.CartIdleTTL,
		Location:         cfg.Location(),
		BillHistoryLimit: cfg.BillHistoryLimit,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, svc)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logg,
		Metrics:       recorder,
		Gatherer:      reg,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.CartIdleTTL > 0 {
		go sweepCarts(runCtx, svc)
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(runCtx, fmt.Sprintf("bakery POS listening on %s", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-runCtx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "shutdown error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logg.Error(shutdownCtx, "close error", err)
		}
	}

	logg.Info(shutdownCtx, "server stopped")
	return nil
}

// sweepCarts drops idle carts until ctx is cancelled.
func sweepCarts(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(cartSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.SweepCarts(ctx)
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("%s_AUTH_SECRET must be set and at least 32 characters", config.EnvPrefix)
	}
	return nil
}
