package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"solarbill/internal/domain"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PagMeta holds pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrBillNotFound):
		return http.StatusNotFound, "BILL_NOT_FOUND", "bill extraction not found"
	case errors.Is(err, domain.ErrBillNotExtracted):
		return http.StatusConflict, "BILL_NOT_EXTRACTED", "bill has no extracted record yet"
	case errors.Is(err, domain.ErrInvalidFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "unsupported image; allowed: jpg, png, webp"
	case errors.Is(err, domain.ErrSizeExceeded):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "image exceeds maximum allowed size"
	case errors.Is(err, domain.ErrStorageFailed):
		return http.StatusBadGateway, "STORAGE_FAILED", "bill storage operation failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		requestID, _ := c.Get("request_id")
		log.Error().Err(err).Interface("request_id", requestID).Str("path", c.FullPath()).Msg("internal error")
	}
	RespondError(c, status, code, msg)
}
