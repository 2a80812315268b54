package mocks

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"solarbill/internal/domain"
	"solarbill/internal/service"
)

// MockBillService is a mock implementation of service.BillService.
type MockBillService struct {
	mock.Mock
}

func (m *MockBillService) ExtractUpload(ctx context.Context, input service.ExtractUploadInput) (*domain.BillExtraction, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillExtraction), args.Error(1)
}

func (m *MockBillService) Reprocess(ctx context.Context, id uuid.UUID) (*domain.BillExtraction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillExtraction), args.Error(1)
}

func (m *MockBillService) ReprocessByStatus(ctx context.Context, status domain.ExtractionStatus, limit int, dryRun bool) (*service.BatchResult, error) {
	args := m.Called(ctx, status, limit, dryRun)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchResult), args.Error(1)
}

func (m *MockBillService) Get(ctx context.Context, id uuid.UUID) (*domain.BillExtraction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillExtraction), args.Error(1)
}

func (m *MockBillService) List(ctx context.Context, offset, limit int) ([]domain.BillExtraction, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.BillExtraction), args.Int(1), args.Error(2)
}

func (m *MockBillService) ExportHistory(ctx context.Context, id uuid.UUID, w io.Writer) error {
	args := m.Called(ctx, id, w)
	return args.Error(0)
}

func (m *MockBillService) ExportCSV(ctx context.Context, w io.Writer) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}
