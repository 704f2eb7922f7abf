// Command chronicle-engine starts one process that both serves the HTTP
// API (duplex websocket ingest, conversation CRUD, batch upload) and
// drives the asynq worker pool for the post-processing job graph. A
// larger deployment can split these by running the binary twice behind
// different entrypoints, but nothing here assumes that split.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	seedworkmw "chronicle/server/seedwork/application/middleware"
	"chronicle/server/seedwork/infrastructure/container"
	"chronicle/server/seedwork/infrastructure/database"
	"chronicle/server/seedwork/infrastructure/metrics"
)

func main() {
	logLevel := zerolog.InfoLevel
	if os.Getenv("APP_ENV") == "production" {
		logLevel = zerolog.WarnLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire container")
	}
	defer c.Close()

	migrationsPath := envOr("MIGRATIONS_PATH", "seedwork/infrastructure/database/migrations")
	if err := database.RunMigrations(migrationsPath); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	workerSrv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				string(transcriptionQueue): 3,
				string(memoryQueue):        2,
				string(defaultQueue):       1,
			},
		},
	)

	errCh := make(chan error, 2)
	go func() {
		if err := workerSrv.Run(c.Mux); err != nil {
			errCh <- err
		}
	}()

	engine := buildEngine(c)
	httpSrv := &http.Server{
		Addr:    ":" + c.Config.Server.Port,
		Handler: engine,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info().Str("port", c.Config.Server.Port).Str("env", c.Config.Server.Env).Msg("chronicle-engine ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	workerSrv.Shutdown()

	log.Info().Msg("chronicle-engine stopped")
}

// Queue name literals mirror jobs/domain.Queue without importing the
// jobs module here, since main only needs them as asynq.Config map keys.
const (
	transcriptionQueue = "transcription"
	memoryQueue        = "memory"
	defaultQueue       = "default"
)

func buildEngine(c *container.Container) *gin.Engine {
	if c.Config.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(seedworkmw.Logger())
	engine.Use(seedworkmw.CORS())
	engine.Use(seedworkmw.ErrorHandler())
	engine.Use(metrics.Instrument())

	engine.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	// Unauthenticated, like /healthz — scraped by an internal Prometheus,
	// never exposed past the deployment's own network boundary.
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Each routes struct gets its own group (not a shared one) so its
	// SetupProtectedRoutes' own RequirePrincipal().Use() call doesn't pile
	// up on routes registered by the other.
	c.TranscriptionRoutes.SetupProtectedRoutes(engine.Group("/"))
	c.ConversationRoutes.SetupProtectedRoutes(engine.Group("/"))

	return engine
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
