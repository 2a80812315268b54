package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFormat      = errors.New("unsupported image format")
	ErrSizeExceeded       = errors.New("image exceeds maximum allowed size")
	ErrAuthFailure        = errors.New("cloud authentication failed")
	ErrOCRFailure         = errors.New("text detection failed")
	ErrNoTextDetected     = errors.New("no text detected in image")
	ErrLLMAPIFailure      = errors.New("language model request failed")
	ErrInvalidLLMResponse = errors.New("language model returned an invalid response")
	ErrMissingCredentials = errors.New("extraction credentials are not configured")
	ErrBillNotFound       = errors.New("bill extraction not found")
	ErrBillNotExtracted   = errors.New("bill has no extracted record")
	ErrStorageFailed      = errors.New("bill storage operation failed")
	ErrExtractorPanic     = errors.New("extractor panicked")
)

// Stage names used in StageError.
const (
	StagePreprocess = "preprocess"
	StageAuth       = "auth"
	StageOCR        = "ocr"
	StageParse      = "parse"
	StageLLM        = "llm"
)

// StageError records which pipeline stage failed.
type StageError struct {
	Stage   string
	Err     error
	Details string
}

func (e *StageError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err as a StageError unless it already is one.
func NewStageError(stage string, err error, details string) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err, Details: details}
}

// IsInputError reports whether err is a terminal input validation failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) || errors.Is(err, ErrSizeExceeded)
}
