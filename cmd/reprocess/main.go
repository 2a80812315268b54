// Command reprocess re-runs extraction for stored bills in a given status,
// typically the degraded ones produced by the fallback path.
// Usage: go run ./cmd/reprocess --status degraded --limit 50
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"solarbill/internal/config"
	"solarbill/internal/domain"
	"solarbill/internal/extraction"
	"solarbill/internal/logger"
	"solarbill/internal/repository/postgres"
	"solarbill/internal/service"
	s3storage "solarbill/internal/storage/s3"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		status string
		limit  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-run extraction for stored bills",
		Long: `Reprocess downloads the original image of every bill in the given status
and runs it through the extraction pipeline again. Use --dry-run to list the
matching bills without touching them.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := domain.ExtractionStatus(status)
			switch st {
			case domain.ExtractionStatusDegraded, domain.ExtractionStatusFailed, domain.ExtractionStatusPending:
			default:
				return fmt.Errorf("unsupported status %q (want degraded, failed or pending)", status)
			}
			return run(cmd.Context(), st, limit, dryRun)
		},
	}

	cmd.Flags().StringVar(&status, "status", string(domain.ExtractionStatusDegraded), "status of bills to reprocess")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of bills to reprocess (0 = all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list matching bills without reprocessing")
	return cmd
}

func run(parent context.Context, status domain.ExtractionStatus, limit int, dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := logger.Setup(cfg.Log); err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	s3Client, err := s3storage.NewClient(ctx, &cfg.S3, logger.WithComponent("s3"))
	if err != nil {
		return fmt.Errorf("initializing S3 client: %w", err)
	}

	pipeline, err := extraction.Build(ctx, cfg, logger.WithComponent("extraction"))
	if err != nil {
		return fmt.Errorf("building extraction pipeline: %w", err)
	}
	defer func() { _ = pipeline.Close() }()

	svc := service.NewBillService(pipeline, postgres.NewBillRepo(db), s3Client,
		cfg.S3, cfg.Processing, logger.WithComponent("reprocess"))

	log.Info().
		Str("status", string(status)).
		Int("limit", limit).
		Bool("dry_run", dryRun).
		Strs("extraction_paths", pathNames(pipeline.Paths())).
		Msg("starting reprocess")

	res, err := svc.ReprocessByStatus(ctx, status, limit, dryRun)
	if err != nil && res == nil {
		return fmt.Errorf("reprocessing: %w", err)
	}

	if dryRun {
		for _, id := range res.IDs {
			log.Info().Str("bill_id", id.String()).Msg("would reprocess")
		}
	}
	log.Info().
		Int("matched", res.Matched).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Msg("reprocess complete")
	return err
}

func pathNames(paths []domain.ProcessingPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(p)
	}
	return out
}
