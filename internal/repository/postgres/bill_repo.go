package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"solarbill/internal/domain"
)

type billRepo struct {
	db *sqlx.DB
}

// NewBillRepo creates a new PostgreSQL-backed BillRepository.
func NewBillRepo(db *sqlx.DB) *billRepo {
	return &billRepo{db: db}
}

func (r *billRepo) Create(ctx context.Context, bill *domain.BillExtraction) error {
	now := time.Now().UTC()
	bill.CreatedAt = now
	bill.UpdatedAt = now
	defaultJSON(bill)

	query := `INSERT INTO bill_extractions (
		id, filename, content_type, size_bytes, storage_bucket, storage_key,
		status, processing_path, quality_score, record, issues, warnings,
		processing_error, attempts, extracted_at, created_at, updated_at
	) VALUES (
		:id, :filename, :content_type, :size_bytes, :storage_bucket, :storage_key,
		:status, :processing_path, :quality_score, :record, :issues, :warnings,
		:processing_error, :attempts, :extracted_at, :created_at, :updated_at
	)`

	if _, err := r.db.NamedExecContext(ctx, query, bill); err != nil {
		return fmt.Errorf("billRepo.Create: %w", err)
	}
	return nil
}

func (r *billRepo) Update(ctx context.Context, bill *domain.BillExtraction) error {
	bill.UpdatedAt = time.Now().UTC()
	defaultJSON(bill)

	query := `UPDATE bill_extractions SET
		status = :status,
		processing_path = :processing_path,
		quality_score = :quality_score,
		record = :record,
		issues = :issues,
		warnings = :warnings,
		processing_error = :processing_error,
		attempts = :attempts,
		extracted_at = :extracted_at,
		updated_at = :updated_at
	WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, bill)
	if err != nil {
		return fmt.Errorf("billRepo.Update: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("billRepo.Update rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrBillNotFound
	}
	return nil
}

func (r *billRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BillExtraction, error) {
	var bill domain.BillExtraction
	err := r.db.GetContext(ctx, &bill, "SELECT * FROM bill_extractions WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBillNotFound
		}
		return nil, fmt.Errorf("billRepo.GetByID: %w", err)
	}
	return &bill, nil
}

func (r *billRepo) List(ctx context.Context, offset, limit int) ([]domain.BillExtraction, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM bill_extractions"); err != nil {
		return nil, 0, fmt.Errorf("billRepo.List count: %w", err)
	}

	var bills []domain.BillExtraction
	err := r.db.SelectContext(ctx, &bills,
		`SELECT * FROM bill_extractions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("billRepo.List: %w", err)
	}
	return bills, total, nil
}

// ListIDsByStatus returns up to limit ids with the given status, oldest first.
// A non-positive limit returns every match.
func (r *billRepo) ListIDsByStatus(ctx context.Context, status domain.ExtractionStatus, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM bill_extractions WHERE status = $1 ORDER BY created_at`
	args := []interface{}{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("billRepo.ListIDsByStatus: %w", err)
	}
	return ids, nil
}

// defaultJSON keeps NOT NULL jsonb columns valid.
func defaultJSON(bill *domain.BillExtraction) {
	if len(bill.Record) == 0 {
		bill.Record = []byte(`{}`)
	}
	if len(bill.Issues) == 0 {
		bill.Issues = []byte(`[]`)
	}
	if len(bill.Warnings) == 0 {
		bill.Warnings = []byte(`[]`)
	}
}
