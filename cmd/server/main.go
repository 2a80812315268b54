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
	"github.com/rs/zerolog/log"

	"solarbill/internal/config"
	"solarbill/internal/extraction"
	"solarbill/internal/handler"
	"solarbill/internal/logger"
	"solarbill/internal/repository/postgres"
	"solarbill/internal/router"
	"solarbill/internal/service"
	s3storage "solarbill/internal/storage/s3"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Setup(cfg.Log); err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	billRepo := postgres.NewBillRepo(db)

	s3Client, err := s3storage.NewClient(ctx, &cfg.S3, logger.WithComponent("s3"))
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	pipeline, err := extraction.Build(ctx, cfg, logger.WithComponent("extraction"))
	if err != nil {
		return fmt.Errorf("failed to build extraction pipeline: %w", err)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Warn().Err(err).Msg("closing extraction pipeline")
		}
	}()

	billSvc := service.NewBillService(pipeline, billRepo, s3Client, cfg.S3, cfg.Processing, logger.WithComponent("bill_service"))

	billH := handler.NewBillHandler(billSvc)
	healthH := handler.NewHealthHandler(db, pipeline)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.Setup(billH, healthH, cfg.CORS.AllowedOrigins, logger.WithComponent("http"))

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Port).Str("environment", cfg.Server.Environment).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
