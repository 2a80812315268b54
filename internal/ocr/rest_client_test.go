package ocr_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarbill/internal/config"
	"solarbill/internal/domain"
	"solarbill/internal/logger"
	"solarbill/internal/ocr"
)

const annotateOK = `{
  "responses": [{
    "textAnnotations": [
      {"locale": "pt", "description": "CEMIG DISTRIBUIÇÃO S.A.\nJOAO DA SILVA\n3012345678"},
      {"description": "CEMIG"}
    ],
    "fullTextAnnotation": {"text": "CEMIG DISTRIBUIÇÃO S.A.\nJOAO DA SILVA\n3012345678"}
  }]
}`

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(url string, sleeper *sleepLog) *ocr.RESTClient {
	pcfg := config.DefaultProcessingConfig()
	pcfg.RetryDelay = 50 * time.Millisecond
	return ocr.NewRESTClient(config.GoogleConfig{}, pcfg, logger.Nop(),
		ocr.WithEndpoint(url),
		ocr.WithSleeper(sleeper.Sleep),
	)
}

// sequenceServer answers with statuses in order and annotateOK once they run out.
func sequenceServer(t *testing.T, calls *atomic.Int32, statuses ...int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(annotateOK))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRESTClient_DetectText_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer ya29.token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests := body["requests"].([]interface{})
		require.Len(t, requests, 1)
		req := requests[0].(map[string]interface{})
		assert.Equal(t, "aGVsbG8=", req["image"].(map[string]interface{})["content"])
		features := req["features"].([]interface{})
		feat := features[0].(map[string]interface{})
		assert.Equal(t, "TEXT_DETECTION", feat["type"])
		assert.Equal(t, float64(1), feat["maxResults"])

		_, _ = w.Write([]byte(annotateOK))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &sleepLog{})
	text, err := c.DetectText(context.Background(), "aGVsbG8=", "ya29.token")
	require.NoError(t, err)
	assert.Equal(t, "CEMIG DISTRIBUIÇÃO S.A.\nJOAO DA SILVA\n3012345678", text)
}

func TestRESTClient_DetectText_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := sequenceServer(t, &calls, http.StatusTooManyRequests, http.StatusTooManyRequests)
	sleeper := &sleepLog{}
	c := newTestClient(srv.URL, sleeper)

	text, err := c.DetectText(context.Background(), "aGVsbG8=", "tok")
	require.NoError(t, err)
	assert.Contains(t, text, "JOAO DA SILVA")
	assert.Equal(t, int32(3), calls.Load())

	require.Len(t, sleeper.delays, 2)
	assert.Equal(t, 50*time.Millisecond, sleeper.delays[0])
	assert.Equal(t, 100*time.Millisecond, sleeper.delays[1])
	assert.Greater(t, sleeper.delays[1], sleeper.delays[0])
}

func TestRESTClient_DetectText_RetryExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := sequenceServer(t, &calls,
		http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway, http.StatusBadGateway)
	c := newTestClient(srv.URL, &sleepLog{})

	_, err := c.DetectText(context.Background(), "aGVsbG8=", "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOCRFailure))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRESTClient_DetectText_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := sequenceServer(t, &calls, http.StatusForbidden)
	sleeper := &sleepLog{}
	c := newTestClient(srv.URL, sleeper)

	_, err := c.DetectText(context.Background(), "aGVsbG8=", "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOCRFailure))
	assert.Contains(t, err.Error(), "status 403")
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, sleeper.delays)
}

func TestRESTClient_DetectText_NoText(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty responses", `{"responses":[]}`},
		{"no annotations", `{"responses":[{}]}`},
		{"blank description", `{"responses":[{"textAnnotations":[{"description":"  "}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL, &sleepLog{})
			_, err := c.DetectText(context.Background(), "aGVsbG8=", "tok")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrNoTextDetected))
			assert.False(t, errors.Is(err, domain.ErrOCRFailure))
		})
	}
}

func TestRESTClient_DetectText_PerImageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &sleepLog{})
	_, err := c.DetectText(context.Background(), "aGVsbG8=", "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOCRFailure))
	assert.Contains(t, err.Error(), "Bad image data.")
}

func TestRESTClient_DetectText_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, &sleepLog{})
	_, err := c.DetectText(context.Background(), "aGVsbG8=", "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOCRFailure))
}

func TestRESTClient_DetectText_TimeoutRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		_, _ = w.Write([]byte(annotateOK))
	}))
	defer srv.Close()

	pcfg := config.DefaultProcessingConfig()
	pcfg.APITimeout = 50 * time.Millisecond
	c := ocr.NewRESTClient(config.GoogleConfig{}, pcfg, logger.Nop(),
		ocr.WithEndpoint(srv.URL),
		ocr.WithSleeper((&sleepLog{}).Sleep),
	)

	text, err := c.DetectText(context.Background(), "aGVsbG8=", "tok")
	require.NoError(t, err)
	assert.Contains(t, text, "CEMIG")
	assert.Equal(t, int32(2), calls.Load())
}
