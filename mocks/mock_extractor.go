package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"solarbill/internal/domain"
	"solarbill/internal/port"
)

// MockExtractor is a mock implementation of port.Extractor.
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, input port.ExtractInput) (*domain.ExtractedBillRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractedBillRecord), args.Error(1)
}

func (m *MockExtractor) Name() domain.ProcessingPath {
	args := m.Called()
	return args.Get(0).(domain.ProcessingPath)
}
