package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripplanner/internal/api"
	"tripplanner/internal/config"
	"tripplanner/internal/database"
	"tripplanner/internal/domain"
	"tripplanner/internal/events"
	"tripplanner/internal/google"
	"tripplanner/internal/logging"
	"tripplanner/internal/metrics"
	"tripplanner/internal/provider"
	"tripplanner/internal/repository"
	"tripplanner/internal/retry"
	"tripplanner/internal/service"
	"tripplanner/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	httpClient := provider.NewHTTPClient(cfg.Provider.Timeout)
	tokens := provider.NewTokenSource(cfg.Provider, tokenCache(redisClient, logger), httpClient, logging.Component(logger, "token"))
	inventory := provider.NewInventoryClient(cfg.Provider, tokens, httpClient, logging.Component(logger, "inventory"))
	generator := provider.NewGeneratorClient(cfg.Generator, provider.NewHTTPClient(cfg.Generator.Timeout), logging.Component(logger, "generator"))

	eventBus := events.NewEventBus(logging.Component(logger, "events"))
	eventBus.SubscribeAll(func(e *events.Event) error {
		metrics.IncEvent(e.Type)
		return nil
	})

	var syncWorker domain.SyncWorker
	sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, logger)
	if sheetsWorker != nil {
		syncWorker = sheetsWorker
	}

	rules := service.RulesFromConfig(cfg.Lifecycle)
	svc := api.Services{
		Itineraries: service.NewItineraryService(db, db, generator, eventBus, rules, logging.Component(logger, "itineraries")),
		Bookings:    service.NewBookingService(db, db, inventory, eventBus, syncWorker, rules, logging.Component(logger, "bookings")),
		Accounts:    service.NewAccountService(db, logging.Component(logger, "accounts")),
	}

	grpcServer, err := api.NewGRPCServer(cfg.API.GRPC, db, logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(cfg.API, cfg.App, svc, db, logger)
	backups := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return httpServer.Start() })
	g.Go(func() error { return grpcServer.Serve() })
	g.Go(func() error {
		grpcServer.WatchHealth(gctx, 15*time.Second)
		return nil
	})
	g.Go(func() error {
		backups.Start(gctx)
		return nil
	})
	if sheetsWorker != nil {
		g.Go(func() error {
			sheetsWorker.Start(gctx)
			return nil
		})
	}
	if cfg.Monitoring.PrometheusEnabled {
		g.Go(func() error { return startMetricsServer(gctx, cfg.Monitoring.PrometheusPort, logger) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		grpcServer.Shutdown(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info().
		Str("grpc_addr", grpcServer.Addr()).
		Int("http_port", cfg.API.HTTP.Port).
		Str("provider", inventory.Name()).
		Bool("strict_transitions", rules.Strict).
		Msg("API server started")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("API server stopped with error")
		return err
	}
	logger.Info().Msg("API server stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// tokenCache prefers Redis so replicas share one provider token, and falls
// back to process memory when Redis is absent or failing.
func tokenCache(client *redis.Client, logger *zerolog.Logger) domain.TokenCache {
	memory := repository.NewMemoryTokenCache()
	if client == nil {
		return memory
	}
	return repository.NewFailoverTokenCache(repository.NewRedisTokenCache(client), memory, logging.Component(logger, "token-cache"))
}

func initSheetsWorker(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.SheetsWorker {
	if !cfg.Google.SheetsEnabled() {
		return nil
	}

	sheets, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.BookingSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return worker.NewSheetsWorker(db, sheets, redisClient, retry.FromConfig(cfg.Google.SyncRetry), logging.Component(logger, "sheets-worker"))
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
