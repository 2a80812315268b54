package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarbill/internal/handler"
	"solarbill/internal/middleware"
)

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestID())
	var seen string
	r.GET("/test", func(c *gin.Context) {
		seen = c.GetString("request_id")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "given")
	r.ServeHTTP(w, req)
	assert.Equal(t, "given", seen)
}

func TestLogger_LevelsByStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "info"},
		{http.StatusNotFound, "warn"},
		{http.StatusBadGateway, "error"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		r := gin.New()
		r.Use(middleware.RequestID(), middleware.Logger(zerolog.New(&buf)))
		r.GET("/test", func(c *gin.Context) { c.Status(tt.status) })

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, tt.wantLevel, entry["level"])
		assert.Equal(t, float64(tt.status), entry["status"])
		assert.Equal(t, "/test", entry["path"])
		assert.NotEmpty(t, entry["request_id"])
	}
}

func TestRecovery_RespondsWithEnvelope(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(zerolog.New(&buf)))
	r.GET("/boom", func(c *gin.Context) { panic("parser exploded") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "parser exploded", entry["panic"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "/boom", entry["path"])
}
