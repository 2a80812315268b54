package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solarbill/internal/config"
	"solarbill/internal/csvexport"
	"solarbill/internal/domain"
	"solarbill/internal/export"
	"solarbill/internal/extraction"
	"solarbill/internal/port"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	exportPageSize   = 200
)

// Pipeline runs extraction for one bill.
type Pipeline interface {
	Process(ctx context.Context, in domain.BillInput) (*extraction.Result, error)
}

// ExtractUploadInput is the DTO for a newly uploaded bill image.
type ExtractUploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// BatchResult summarizes a ReprocessByStatus run.
type BatchResult struct {
	Matched   int
	Succeeded int
	Failed    int
	IDs       []uuid.UUID
}

// BillService defines the bill extraction contract.
type BillService interface {
	ExtractUpload(ctx context.Context, input ExtractUploadInput) (*domain.BillExtraction, error)
	Reprocess(ctx context.Context, id uuid.UUID) (*domain.BillExtraction, error)
	ReprocessByStatus(ctx context.Context, status domain.ExtractionStatus, limit int, dryRun bool) (*BatchResult, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.BillExtraction, error)
	List(ctx context.Context, offset, limit int) ([]domain.BillExtraction, int, error)
	ExportHistory(ctx context.Context, id uuid.UUID, w io.Writer) error
	ExportCSV(ctx context.Context, w io.Writer) error
}

type billService struct {
	pipeline Pipeline
	repo     port.BillRepository
	storage  port.ObjectStorage
	bucket   string
	maxBytes int64
	log      zerolog.Logger
	now      func() time.Time
}

// NewBillService creates a new BillService.
func NewBillService(
	pipeline Pipeline,
	repo port.BillRepository,
	storage port.ObjectStorage,
	s3cfg config.S3Config,
	pcfg config.ProcessingConfig,
	log zerolog.Logger,
) BillService {
	return &billService{
		pipeline: pipeline,
		repo:     repo,
		storage:  storage,
		bucket:   s3cfg.Bucket,
		maxBytes: pcfg.MaxImageBytes(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *billService) ExtractUpload(ctx context.Context, input ExtractUploadInput) (*domain.BillExtraction, error) {
	if _, ok := domain.DetectImageType(input.ContentType, input.Filename); !ok {
		return nil, fmt.Errorf("%w: content type %q, file %q", domain.ErrInvalidFormat, input.ContentType, input.Filename)
	}
	if s.maxBytes > 0 && input.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrSizeExceeded, input.Size)
	}

	data, err := readLimited(input.Body, s.maxBytes)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	filename := safeFilename(input.Filename)
	bill := &domain.BillExtraction{
		ID:            id,
		Filename:      filename,
		ContentType:   input.ContentType,
		SizeBytes:     int64(len(data)),
		StorageBucket: s.bucket,
		StorageKey:    fmt.Sprintf("bills/%s/%s", id, filename),
		Status:        domain.ExtractionStatusPending,
	}

	log := s.log.With().Str("bill_id", id.String()).Str("filename", filename).Logger()
	log.Info().Int64("size_bytes", bill.SizeBytes).Msg("storing uploaded bill")

	if _, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      bill.StorageBucket,
		Key:         bill.StorageKey,
		Body:        bytes.NewReader(data),
		ContentType: bill.ContentType,
		Size:        bill.SizeBytes,
	}); err != nil {
		log.Error().Err(err).Msg("bill upload failed")
		if errors.Is(err, domain.ErrStorageFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}

	if err := s.repo.Create(ctx, bill); err != nil {
		log.Error().Err(err).Msg("creating bill row failed")
		if delErr := s.storage.Delete(ctx, bill.StorageBucket, bill.StorageKey); delErr != nil {
			log.Warn().Err(delErr).Msg("removing orphaned bill object failed")
		}
		return nil, fmt.Errorf("creating bill extraction: %w", err)
	}

	if err := s.run(ctx, bill, data); err != nil {
		return nil, err
	}
	return bill, nil
}

func (s *billService) Reprocess(ctx context.Context, id uuid.UUID) (*domain.BillExtraction, error) {
	bill, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := s.storage.Download(ctx, bill.StorageBucket, bill.StorageKey)
	if err != nil {
		s.log.Error().Err(err).Str("bill_id", id.String()).Msg("downloading bill for reprocess failed")
		return nil, err
	}

	if err := s.run(ctx, bill, data); err != nil {
		return nil, err
	}
	return bill, nil
}

// ReprocessByStatus re-runs extraction for up to limit bills in status. A
// failing bill is logged and counted; the batch continues.
func (s *billService) ReprocessByStatus(ctx context.Context, status domain.ExtractionStatus, limit int, dryRun bool) (*BatchResult, error) {
	ids, err := s.repo.ListIDsByStatus(ctx, status, limit)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Matched: len(ids), IDs: ids}
	if dryRun {
		return result, nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		bill, err := s.Reprocess(ctx, id)
		if err != nil {
			result.Failed++
			s.log.Warn().Err(err).Str("bill_id", id.String()).Msg("reprocess failed")
			continue
		}
		result.Succeeded++
		s.log.Info().
			Str("bill_id", id.String()).
			Str("status", string(bill.Status)).
			Str("path", string(bill.Path)).
			Msg("bill reprocessed")
	}
	return result, nil
}

// run executes the pipeline and persists the outcome on bill. Input errors
// mark the row failed and are returned.
func (s *billService) run(ctx context.Context, bill *domain.BillExtraction, data []byte) error {
	bill.Attempts++
	res, err := s.pipeline.Process(ctx, domain.BillInput{
		Filename:    bill.Filename,
		ContentType: bill.ContentType,
		Data:        data,
	})
	if err != nil {
		bill.Status = domain.ExtractionStatusFailed
		bill.ProcessingError = err.Error()
		if uerr := s.repo.Update(ctx, bill); uerr != nil {
			s.log.Error().Err(uerr).Str("bill_id", bill.ID.String()).Msg("marking bill failed")
		}
		return err
	}

	if err := applyResult(bill, res, s.now()); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, bill); err != nil {
		return fmt.Errorf("saving extraction result: %w", err)
	}

	s.log.Info().
		Str("bill_id", bill.ID.String()).
		Str("path", string(bill.Path)).
		Str("status", string(bill.Status)).
		Float64("score", bill.QualityScore).
		Int("attempt", bill.Attempts).
		Msg("bill extraction saved")
	return nil
}

func applyResult(bill *domain.BillExtraction, res *extraction.Result, now time.Time) error {
	record, err := domain.EncodeRecord(res.Record)
	if err != nil {
		return err
	}
	issues, err := json.Marshal(nonNil(res.Issues))
	if err != nil {
		return fmt.Errorf("encoding issues: %w", err)
	}
	warnings, err := json.Marshal(nonNil(res.Warnings))
	if err != nil {
		return fmt.Errorf("encoding warnings: %w", err)
	}

	bill.Record = record
	bill.Issues = issues
	bill.Warnings = warnings
	bill.Path = res.Path
	bill.Status = domain.StatusForPath(res.Path)
	bill.QualityScore = res.Score
	bill.ProcessingError = ""
	if res.Err != nil {
		bill.ProcessingError = res.Err.Error()
	}
	bill.ExtractedAt = &now
	return nil
}

func (s *billService) Get(ctx context.Context, id uuid.UUID) (*domain.BillExtraction, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *billService) List(ctx context.Context, offset, limit int) ([]domain.BillExtraction, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *billService) ExportHistory(ctx context.Context, id uuid.UUID, w io.Writer) error {
	bill, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if bill.ExtractedAt == nil || bill.Status == domain.ExtractionStatusFailed {
		return fmt.Errorf("%w: bill %s is %s", domain.ErrBillNotExtracted, id, bill.Status)
	}
	rec, err := domain.DecodeRecord(bill.Record)
	if err != nil {
		return err
	}
	return export.WriteHistoryXLSX(w, rec)
}

func (s *billService) ExportCSV(ctx context.Context, w io.Writer) error {
	if _, err := w.Write(csvexport.BOM); err != nil {
		return err
	}
	cw := csvexport.NewWriter(w)
	if err := cw.WriteHeader(); err != nil {
		return err
	}

	for offset := 0; ; offset += exportPageSize {
		bills, total, err := s.repo.List(ctx, offset, exportPageSize)
		if err != nil {
			return err
		}
		if err := cw.WriteBills(bills); err != nil {
			return err
		}
		if len(bills) == 0 || offset+len(bills) >= total {
			break
		}
	}

	cw.Flush()
	return cw.Error()
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidFormat)
	}
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", domain.ErrSizeExceeded, limit)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidFormat)
	}
	return data, nil
}

// safeFilename keeps only the final path element of a client-supplied name.
func safeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "bill"
	}
	return name
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
