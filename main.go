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

	"pingpong-ladder/config"
	"pingpong-ladder/handler"
	"pingpong-ladder/models"
	"pingpong-ladder/service"
	"pingpong-ladder/storage"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Инициализация логгера
	logger, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting Ping-Pong Ladder Service", zap.String("config", cfg.Redacted()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := openStore(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}
	defer store.Close()

	logger.Info("Storage ready", zap.String("backend", cfg.StorageBackend))

	if err := seedPlayers(context.Background(), store, cfg.SeedPlayers, logger); err != nil {
		logger.Fatal("Failed to seed players", zap.Error(err))
	}

	// Инициализация сервисов
	matchService := service.NewMatchService(store, logger, &service.MatchConfig{
		KFactor:   cfg.KFactor,
		AdaptiveK: cfg.AdaptiveK(),
	})
	leaderboardService := service.NewLeaderboardService(store, logger)

	// Инициализация HTTP handlers
	matchHandler := handler.NewMatchHandler(matchService, logger)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService, logger, cfg.LeaderboardMinMatches, cfg.LeaderboardLimit)
	router := handler.NewRouter(matchHandler, leaderboardHandler, logger)

	// Настройка HTTP сервера
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в горутине
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore выбирает хранилище по STORAGE_BACKEND
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		return storage.NewRedisStorage(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	case config.BackendSQLite:
		return storage.NewSQLStorage(ctx, storage.DialectSQLite, cfg.DatabaseURL, logger)
	case config.BackendPostgres:
		return storage.NewSQLStorage(ctx, storage.DialectPostgres, cfg.DatabaseURL, logger)
	default:
		return storage.NewMemoryStorage(), nil
	}
}

// seedPlayers создает отсутствующих игроков из SEED_PLAYERS
func seedPlayers(ctx context.Context, store storage.Store, seeds []config.SeedPlayer, logger *zap.Logger) error {
	for _, seed := range seeds {
		player := models.NewPlayer(seed.Name, seed.IsAdmin)
		err := store.CreatePlayer(ctx, player)
		if errors.Is(err, storage.ErrAlreadyExists) {
			logger.Debug("Seed player already exists", zap.String("name", seed.Name))
			continue
		}
		if err != nil {
			return fmt.Errorf("seed player %q: %w", seed.Name, err)
		}
		logger.Info("Seed player created",
			zap.String("player_id", player.ID),
			zap.String("name", player.Name),
			zap.Bool("is_admin", player.IsAdmin),
		)
	}
	return nil
}
