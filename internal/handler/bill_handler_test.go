package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"solarbill/internal/domain"
	"solarbill/internal/handler"
	"solarbill/internal/service"
	"solarbill/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(svc service.BillService) *gin.Engine {
	h := handler.NewBillHandler(svc)
	r := gin.New()
	bills := r.Group("/api/v1/bills")
	bills.POST("/extract", h.Extract)
	bills.GET("", h.List)
	bills.GET("/export.csv", h.ExportCSV)
	bills.GET("/:id", h.GetByID)
	bills.POST("/:id/reprocess", h.Reprocess)
	bills.GET("/:id/history.xlsx", h.HistoryXLSX)
	return r
}

func multipartBody(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.APIResponse {
	t.Helper()
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBillHandler_Extract_Success(t *testing.T) {
	svc := new(mocks.MockBillService)
	id := uuid.New()
	svc.On("ExtractUpload", mock.Anything, mock.MatchedBy(func(in service.ExtractUploadInput) bool {
		data, _ := io.ReadAll(in.Body)
		return in.Filename == "conta.jpg" && in.ContentType == "image/jpeg" && in.Size == 5 && string(data) == "bytes"
	})).Return(&domain.BillExtraction{
		ID: id, Filename: "conta.jpg", Status: domain.ExtractionStatusCompleted, Path: domain.PathOCR,
		Record: json.RawMessage(`{"customer_id":"3012345678"}`),
	}, nil)

	body, ct := multipartBody(t, "conta.jpg", "image/jpeg", []byte("bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/extract", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	newEngine(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, id.String(), data["id"])
	assert.Equal(t, "ocr", data["processing_path"])
	assert.NotContains(t, data, "storage_key")
	svc.AssertExpectations(t)
}

func TestBillHandler_Extract_MissingFile(t *testing.T) {
	svc := new(mocks.MockBillService)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/extract", nil)
	w := httptest.NewRecorder()
	newEngine(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FILE", decode(t, w).Error.Code)
	svc.AssertNotCalled(t, "ExtractUpload", mock.Anything, mock.Anything)
}

func TestBillHandler_Extract_DomainErrors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{domain.ErrInvalidFormat, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE"},
		{domain.ErrSizeExceeded, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{domain.ErrStorageFailed, http.StatusBadGateway, "STORAGE_FAILED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			svc := new(mocks.MockBillService)
			svc.On("ExtractUpload", mock.Anything, mock.Anything).Return(nil, tt.err)

			body, ct := multipartBody(t, "conta.pdf", "application/pdf", []byte("%PDF"))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/bills/extract", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			newEngine(svc).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestBillHandler_GetByID(t *testing.T) {
	svc := new(mocks.MockBillService)
	id := uuid.New()
	svc.On("Get", mock.Anything, id).Return(&domain.BillExtraction{ID: id}, nil)
	missing := uuid.New()
	svc.On("Get", mock.Anything, missing).Return(nil, domain.ErrBillNotFound)
	r := newEngine(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bills/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bills/"+missing.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "BILL_NOT_FOUND", decode(t, w).Error.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bills/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", decode(t, w).Error.Code)
}

func TestBillHandler_List(t *testing.T) {
	svc := new(mocks.MockBillService)
	svc.On("List", mock.Anything, 40, 20).Return([]domain.BillExtraction{{ID: uuid.New()}}, 41, nil)

	w := httptest.NewRecorder()
	newEngine(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bills?offset=40&limit=500", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, handler.PagMeta{Total: 41, Offset: 40, Limit: 20}, *resp.Meta)
	assert.Len(t, resp.Data, 1)
}

func TestBillHandler_Reprocess(t *testing.T) {
	svc := new(mocks.MockBillService)
	id := uuid.New()
	svc.On("Reprocess", mock.Anything, id).Return(&domain.BillExtraction{ID: id, Attempts: 2}, nil)

	w := httptest.NewRecorder()
	newEngine(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/bills/"+id.String()+"/reprocess", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w).Data.(map[string]interface{})["attempts"])
}

func TestBillHandler_HistoryXLSX(t *testing.T) {
	svc := new(mocks.MockBillService)
	id := uuid.New()
	svc.On("ExportHistory", mock.Anything, id, mock.Anything).Run(func(args mock.Arguments) {
		_, _ = args.Get(2).(io.Writer).Write([]byte("PK-xlsx"))
	}).Return(nil)

	w := httptest.NewRecorder()
	newEngine(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bills/"+id.String()+"/history.xlsx", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK-xlsx", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "consumo_"+id.String())
}

func TestBillHandler_HistoryXLSX_NotExtracted(t *testing.T) {
	svc := new(mocks.MockBillService)
	id := uuid.New()
	svc.On("ExportHistory", mock.Anything, id, mock.Anything).
		Return(fmt.Errorf("%w: bill %s is pending", domain.ErrBillNotExtracted, id))

	w := httptest.NewRecorder()
	newEngine(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bills/"+id.String()+"/history.xlsx", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "BILL_NOT_EXTRACTED", resp.Error.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}

func TestBillHandler_ExportCSV(t *testing.T) {
	svc := new(mocks.MockBillService)
	svc.On("ExportCSV", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		_, _ = args.Get(1).(io.Writer).Write([]byte("Bill ID\n"))
	}).Return(nil)

	w := httptest.NewRecorder()
	newEngine(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bills/export.csv", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bill ID\n", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "bills_")
	svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fakePaths []domain.ProcessingPath

func (f fakePaths) Paths() []domain.ProcessingPath { return f }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         handler.Pinger
		paths      fakePaths
		wantStatus int
		wantBody   string
	}{
		{"ready", fakePinger{}, fakePaths{domain.PathOCR}, http.StatusOK, `{"status":"ok","extraction_paths":["ocr"],"degraded":false}`},
		{"fallback only", fakePinger{}, fakePaths{}, http.StatusOK, `{"status":"ok","extraction_paths":[],"degraded":true}`},
		{"db down", fakePinger{err: errors.New("refused")}, nil, http.StatusServiceUnavailable, `{"status":"unavailable","error":"database not reachable"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.db, tt.paths)
			r := gin.New()
			r.GET("/readyz", h.Readiness)
			r.GET("/healthz", h.Liveness)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())

			w = httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
