package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"solarbill/internal/domain"
)

// MockBillRepo is a mock implementation of port.BillRepository.
type MockBillRepo struct {
	mock.Mock
}

func (m *MockBillRepo) Create(ctx context.Context, bill *domain.BillExtraction) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *MockBillRepo) Update(ctx context.Context, bill *domain.BillExtraction) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *MockBillRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BillExtraction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BillExtraction), args.Error(1)
}

func (m *MockBillRepo) List(ctx context.Context, offset, limit int) ([]domain.BillExtraction, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.BillExtraction), args.Int(1), args.Error(2)
}

func (m *MockBillRepo) ListIDsByStatus(ctx context.Context, status domain.ExtractionStatus, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}
