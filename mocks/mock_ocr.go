package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockTokenProvider is a mock implementation of port.TokenProvider.
type MockTokenProvider struct {
	mock.Mock
}

func (m *MockTokenProvider) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockTextDetector is a mock implementation of port.TextDetector.
type MockTextDetector struct {
	mock.Mock
}

func (m *MockTextDetector) DetectText(ctx context.Context, encodedImage, token string) (string, error) {
	args := m.Called(ctx, encodedImage, token)
	return args.String(0), args.Error(1)
}
