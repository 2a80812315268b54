package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"solarbill/internal/domain"
	"solarbill/internal/extraction"
)

// MockPipeline is a mock implementation of service.Pipeline.
type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Process(ctx context.Context, in domain.BillInput) (*extraction.Result, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extraction.Result), args.Error(1)
}
