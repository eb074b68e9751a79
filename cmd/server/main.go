package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/prudhvinik1/fieldsync/internal/config"
	"github.com/prudhvinik1/fieldsync/internal/database"
	"github.com/prudhvinik1/fieldsync/internal/handlers"
	"github.com/prudhvinik1/fieldsync/internal/repositories"
	"github.com/prudhvinik1/fieldsync/internal/services"
)

const jwtExpiry = 24 * time.Hour

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to create postgres pool", zap.Error(err))
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to create redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize repositories
	recordRepo := repositories.NewPostgresRecordRepository(postgresPool)
	conflictRepo := repositories.NewPostgresConflictRepository(postgresPool)
	activityRepo := repositories.NewPostgresActivityRepository(postgresPool)
	statusCache := repositories.NewRedisStatusCache(redisClient)

	// Initialize services
	authService := services.NewAuthService(cfg.JWTSecret, jwtExpiry)
	reconcileService := services.NewReconcileService(recordRepo, conflictRepo, activityRepo, statusCache, logger)
	statusService := services.NewStatusService(conflictRepo, activityRepo, statusCache)

	// Initialize HTTP server
	router := chi.NewRouter()
	router.Use(handlers.RequestLogger(logger))
	router.Use(middleware.Recoverer)

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Group(func(r chi.Router) {
		r.Use(handlers.AuthMiddleware(authService))

		syncHandler := handlers.NewSyncHandler(reconcileService, statusService, logger)
		syncHandler.Register(r)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info("starting server", zap.String("port", cfg.ServerPort))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
}
