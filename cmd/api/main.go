// Package main is the entry point for the dungeon run API server.
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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dungeon-run-backend/internal/auth"
	"dungeon-run-backend/internal/config"
	"dungeon-run-backend/internal/handler"
	"dungeon-run-backend/internal/middleware"
	"dungeon-run-backend/internal/model"
	"dungeon-run-backend/internal/pkg/db"
	"dungeon-run-backend/internal/repository"
	"dungeon-run-backend/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Str("env", cfg.Server.Env).Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	log.Info().Msg("Running database migrations...")
	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}
	log.Info().Msg("Migrations completed")

	// Initialize repositories
	configRepo := repository.NewConfigRepository(dbPool.Pool)
	stateRepo := repository.NewStateRepository(dbPool.Pool)
	runRepo := repository.NewRunRepository(dbPool.Pool)
	dropRepo := repository.NewDropRepository(dbPool.Pool)
	walletRepo := repository.NewWalletRepository(dbPool.Pool)

	// Seed config and loot table so a fresh database can serve runs
	if err := seedDefaults(ctx, cfg, configRepo, dropRepo); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed defaults")
	}

	// Initialize services
	dungeonService := service.NewDungeonService(
		dbPool.Pool,
		configRepo,
		stateRepo,
		runRepo,
		dropRepo,
		walletRepo,
	)

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize auth")
	}

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		if err := dbPool.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	dungeonHandler := handler.NewDungeonHandler(dungeonService, cfg.Server.IsProduction())

	api := router.Group("/api/dungeon")
	api.Use(middleware.Auth(jwtService))
	dungeonHandler.Register(api)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown")
	}
	log.Info().Msg("Server stopped gracefully")
}

// seedDefaults inserts the config row and a starter loot table when the
// database is empty.
func seedDefaults(ctx context.Context, cfg *config.Config, configRepo *repository.ConfigRepository, dropRepo *repository.DropRepository) error {
	err := configRepo.SeedDefault(ctx, model.Config{
		DailySeed:       cfg.Dungeon.DailySeed,
		FreeRunsPerDay:  cfg.Dungeon.FreeRunsPerDay,
		AdRunRefreshMax: cfg.Dungeon.AdRunRefreshMax,
		AdLootRerollMax: cfg.Dungeon.AdLootRerollMax,
		WinChance:       cfg.Dungeon.WinChance,
		BaseHP:          cfg.Dungeon.BaseHP,
		BaseAtk:         cfg.Dungeon.BaseAtk,
	})
	if err != nil {
		return err
	}

	rows, err := dropRepo.ActiveLoot(ctx)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}

	starter := []model.LootRow{
		{Name: "Copper Coins", Type: model.LootTypeCoins, Tier: model.TierLow, WeightBase: 50, MinQty: 10, MaxQty: 30, IsActive: true},
		{Name: "Silver Coins", Type: model.LootTypeCoins, Tier: model.TierMid, WeightBase: 30, MinQty: 40, MaxQty: 80, IsActive: true},
		{Name: "Arcane Dust", Type: model.LootTypeDust, Tier: model.TierMid, WeightBase: 15, MinQty: 5, MaxQty: 15, IsActive: true},
		{Name: "Radiant Dust", Type: model.LootTypeDust, Tier: model.TierHigh, WeightBase: 5, MinQty: 10, MaxQty: 25, IsActive: true},
	}
	for _, row := range starter {
		if _, err := dropRepo.AddLoot(ctx, row); err != nil {
			return err
		}
	}
	log.Info().Int("entries", len(starter)).Msg("Seeded starter loot table")
	return nil
}
