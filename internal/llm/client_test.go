package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarbill/internal/config"
	"solarbill/internal/domain"
	"solarbill/internal/llm"
	"solarbill/internal/logger"
	"solarbill/internal/port"
	"solarbill/internal/quality"
)

func completionBody(content, finishReason string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": finishReason,
			},
		},
		"usage": map[string]interface{}{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
	}
}

func newTestClient(t *testing.T, baseURL string) *llm.Client {
	t.Helper()
	cfg := config.LLMConfig{
		APIKey:      "test-llm-key",
		Model:       "gpt-4o-mini",
		BaseURL:     baseURL + "/v1",
		Temperature: 0.1,
		MaxTokens:   1500,
		TimeoutSecs: 5,
	}
	pcfg := config.DefaultProcessingConfig()
	pcfg.RetryDelay = time.Millisecond
	validator := quality.NewValidator([]string{"CEMIG"}, logger.Nop())
	return llm.NewClient(cfg, pcfg, validator, logger.Nop(),
		llm.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
}

func serveContent(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody(content, "stop"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const billJSON = `{
  "provider": "CEMIG",
  "customer_name": "JOAO CARLOS DA SILVA",
  "address": "RUA DAS ACACIAS, 245 APTO 302",
  "city": "CONTAGEM",
  "state": "mg",
  "customer_id": "30.1234.5678",
  "tariff": "0,95632",
  "consumption_kwh": "254,0 kWh",
  "billing_period": "MAR/2024",
  "due_date": "15/04/2024",
  "consumption_history": [
    {"month": "Março", "consumption_kwh": "189,6", "year": 2024},
    {"month": "abril", "consumption_kwh": 254, "year": "2024"},
    {"month": "", "consumption_kwh": 300},
    {"month": "maio", "consumption_kwh": "n/d"},
    "garbage"
  ]
}`

func TestClient_ExtractStructured_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-llm-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		assert.InDelta(t, 0.1, req["temperature"], 1e-6)
		assert.Equal(t, map[string]interface{}{"type": "json_object"}, req["response_format"])

		msgs := req["messages"].([]interface{})
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
		user := msgs[1].(map[string]interface{})
		assert.Equal(t, "user", user["role"])
		assert.Contains(t, user["content"], "CONSUMO FATURADO 254 KWH")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody(billJSON, "stop"))
	}))
	defer srv.Close()

	rec, err := newTestClient(t, srv.URL).ExtractStructured(context.Background(), "CONSUMO FATURADO 254 KWH")
	require.NoError(t, err)

	assert.Equal(t, "CEMIG", rec.Provider)
	assert.Equal(t, "JOAO CARLOS DA SILVA", rec.CustomerName)
	assert.Equal(t, "MG", rec.State)
	assert.Equal(t, "3012345678", rec.CustomerID)
	assert.InDelta(t, 0.95632, rec.Tariff, 1e-9)
	assert.Equal(t, 254.0, rec.ConsumptionKWh)

	require.Len(t, rec.ConsumptionHistory, 2)
	assert.Equal(t, "março", rec.ConsumptionHistory[0].Month)
	assert.Equal(t, 190.0, rec.ConsumptionHistory[0].ConsumptionKWh)
	require.NotNil(t, rec.ConsumptionHistory[1].Year)
	assert.Equal(t, 2024, *rec.ConsumptionHistory[1].Year)
}

func TestClient_Extract_FencedResponse(t *testing.T) {
	content := "Here is the data:\n```json\n{\"customer_name\": \"MARIA SOUZA\", \"tariff\": 0.87}\n```"
	srv := serveContent(t, content)

	rec, err := newTestClient(t, srv.URL).ExtractStructured(context.Background(), "texto")
	require.NoError(t, err)
	assert.Equal(t, "MARIA SOUZA", rec.CustomerName)
	assert.InDelta(t, 0.87, rec.Tariff, 1e-9)
	assert.Equal(t, domain.NotAvailable, rec.Address)
	assert.Empty(t, rec.ConsumptionHistory)
}

func TestClient_Extract_CoercesInvalidFields(t *testing.T) {
	srv := serveContent(t, `{"customer_id": "12345", "tariff": 12.5, "consumption_kwh": "abc"}`)

	rec, err := newTestClient(t, srv.URL).ExtractStructured(context.Background(), "texto")
	require.NoError(t, err)
	assert.Equal(t, domain.NotAvailable, rec.CustomerID)
	assert.Equal(t, 0.0, rec.Tariff)
	assert.Equal(t, 0.0, rec.ConsumptionKWh)
}

func TestClient_Extract_HistoryCappedAtTwelve(t *testing.T) {
	history := make([]map[string]interface{}, 15)
	for i := range history {
		history[i] = map[string]interface{}{"month": "janeiro", "consumption_kwh": i + 1}
	}
	b, err := json.Marshal(map[string]interface{}{"consumption_history": history})
	require.NoError(t, err)
	srv := serveContent(t, string(b))

	rec, err := newTestClient(t, srv.URL).ExtractStructured(context.Background(), "texto")
	require.NoError(t, err)
	require.Len(t, rec.ConsumptionHistory, 12)
	assert.Equal(t, 1.0, rec.ConsumptionHistory[0].ConsumptionKWh)
	assert.Equal(t, 12.0, rec.ConsumptionHistory[11].ConsumptionKWh)
}

func TestClient_Extract_InvalidResponses(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"prose only", "I could not read the bill."},
		{"broken json", `{"customer_name": "JOAO"`},
		{"wrong shape", `{"customer_name": {"first": "JOAO"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveContent(t, tt.content)
			_, err := newTestClient(t, srv.URL).ExtractStructured(context.Background(), "texto")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidLLMResponse))
		})
	}
}

func TestClient_Extract_TruncatedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody(`{"customer_name": "JO`, "length"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ExtractStructured(context.Background(), "texto")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidLLMResponse))
}

func TestClient_Extract_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(completionBody(`{"customer_name":"JOAO DA SILVA"}`, "stop"))
	}))
	defer srv.Close()

	rec, err := newTestClient(t, srv.URL).ExtractStructured(context.Background(), "texto")
	require.NoError(t, err)
	assert.Equal(t, "JOAO DA SILVA", rec.CustomerName)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Extract_ClientErrorIsAPIFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ExtractStructured(context.Background(), "texto")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLLMAPIFailure))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Extract_ImageInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		msgs := req["messages"].([]interface{})
		parts := msgs[1].(map[string]interface{})["content"].([]interface{})
		require.Len(t, parts, 2)
		img := parts[1].(map[string]interface{})
		assert.Equal(t, "image_url", img["type"])
		assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", img["image_url"].(map[string]interface{})["url"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody(`{"city":"CONTAGEM"}`, "stop"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	assert.Equal(t, domain.PathLLM, c.Name())
	rec, err := c.Extract(context.Background(), port.ExtractInput{
		Filename:    "bill.jpg",
		ContentType: "image/jpeg",
		Encoded:     "aGVsbG8=",
	})
	require.NoError(t, err)
	assert.Equal(t, "CONTAGEM", rec.City)
}

func TestClient_Extract_NoContent(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0")
	_, err := c.Extract(context.Background(), port.ExtractInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLLMAPIFailure))
}
