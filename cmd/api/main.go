package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tripline/internal/api"
	"tripline/internal/config"
	"tripline/internal/domain"
	"tripline/internal/events"
	"tripline/internal/export"
	"tripline/internal/google"
	"tripline/internal/logging"
	"tripline/internal/metrics"
	"tripline/internal/notify"
	"tripline/internal/repository"
	"tripline/internal/service"
	"tripline/internal/store"
	"tripline/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v2"
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

	if err := loadExtraAPIKeys(cfg, &logger); err != nil {
		return err
	}

	if err := prepareDirectories(cfg); err != nil {
		return err
	}

	bus := events.NewEventBus()

	tripStore, err := store.New(cfg.Database.Path, bus, &logger)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Database.Path).Msg("open store")
		return err
	}
	defer tripStore.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	locks := initLocks(redisClient, &logger)

	lockTTL := time.Duration(cfg.Locks.TTLSeconds) * time.Second

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keeper := worker.NewLockKeeper(locks, lockTTL, log.New(os.Stdout, "lock-keeper: ", log.LstdFlags))
	go keeper.Run(ctx)

	sessions := api.NewSessionManager(tripStore, locks, bus, keeper, lockTTL, &logger)
	defer sessions.CloseAll()

	users := service.NewUserService(tripStore, oauthExchanger(cfg.OAuth), cfg.OAuth.UserInfoURL, &logger)
	invites := service.NewInviteService(tripStore, tripStore, bus, &logger)

	if cfg.Telegram.Enabled {
		notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Debug, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier unavailable")
		} else {
			notifier.SubscribeToBus(bus)
			defer notifier.Stop()
		}
	}

	exporter := export.NewExcelExporter(cfg.Exports.Path, &logger)

	publishers := []worker.TripPublisher{exporter}
	if sheets := initGoogleSheets(ctx, cfg, &logger); sheets != nil && cfg.Google.PublishOnTripUpdate {
		publishers = append(publishers, sheets)
	}

	exportWorker := worker.NewExportWorker(tripStore, publishers, redisClient, worker.RetryPolicy{}, log.New(os.Stdout, "export-worker: ", log.LstdFlags))
	exportWorker.SubscribeToTripEvents(bus)
	go exportWorker.Start(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	httpServer := api.NewHTTPServer(cfg.API, sessions, users, invites, exporter)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("tripline API started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("tripline API stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadExtraAPIKeys merges API client keys from a separate file so deployments
// can rotate keys without touching the main config.
func loadExtraAPIKeys(cfg *config.Config, logger *zerolog.Logger) error {
	keysPath := os.Getenv("API_KEYS_PATH")
	if keysPath == "" {
		keysPath = "configs/api_keys.yaml"
	}
	data, err := os.ReadFile(keysPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Error().Err(err).Str("keys_path", keysPath).Msg("read api keys")
		return err
	}

	var keysConfig struct {
		APIKeys []config.APIClientKey `yaml:"api_keys"`
	}
	if err := yaml.Unmarshal(data, &keysConfig); err != nil {
		logger.Error().Err(err).Str("keys_path", keysPath).Msg("parse api keys")
		return err
	}

	cfg.API.Auth.APIKeys = append(cfg.API.Auth.APIKeys, keysConfig.APIKeys...)
	logger.Info().Int("count", len(keysConfig.APIKeys)).Msg("extra api keys loaded")
	return nil
}

func prepareDirectories(cfg *config.Config) error {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			return fmt.Errorf("create exports dir: %w", err)
		}
	}
	return nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("address", cfg.Redis.Address).Msg("redis unreachable, locks fall back to memory")
	} else {
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

// initLocks returns redis-backed locks with in-memory failover, or memory
// alone when redis is disabled.
func initLocks(redisClient *redis.Client, logger *zerolog.Logger) domain.LockRepository {
	memory := repository.NewMemoryLockRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverLockRepository(repository.NewRedisLockRepository(redisClient), memory, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ItinerarySheetID == "" {
		return nil
	}

	sheets, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.ItinerarySheetID)
	if err != nil {
		logger.Error().Err(err).Msg("init google sheets")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("google sheets connection test failed")
		return nil
	}
	logger.Info().Str("sheet_id", cfg.Google.ItinerarySheetID).Msg("google sheets connected")
	return sheets
}

func oauthExchanger(cfg config.OAuthConfig) service.OAuthExchanger {
	if cfg.ClientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
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
