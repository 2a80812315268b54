package port

import (
	"context"

	"github.com/google/uuid"

	"solarbill/internal/domain"
)

// BillRepository persists extraction results.
type BillRepository interface {
	Create(ctx context.Context, bill *domain.BillExtraction) error
	Update(ctx context.Context, bill *domain.BillExtraction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BillExtraction, error)
	List(ctx context.Context, offset, limit int) ([]domain.BillExtraction, int, error)
	ListIDsByStatus(ctx context.Context, status domain.ExtractionStatus, limit int) ([]uuid.UUID, error)
}
