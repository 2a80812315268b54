package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"solarbill/internal/csvexport"
	"solarbill/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// BillHandler handles bill extraction endpoints.
type BillHandler struct {
	billService service.BillService
}

// NewBillHandler creates a new BillHandler.
func NewBillHandler(billService service.BillService) *BillHandler {
	return &BillHandler{billService: billService}
}

// Extract handles POST /api/v1/bills/extract
// @Summary Extract a bill
// @Description Upload a bill image (JPG, PNG or WEBP), store it and run extraction. Records produced by the fallback path are stored as degraded.
// @Tags bills
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Bill image"
// @Success 201 {object} APIResponse{data=domain.BillExtraction} "Extraction stored"
// @Failure 400 {object} APIResponse "Missing file or unsupported type"
// @Failure 413 {object} APIResponse "Image too large"
// @Failure 502 {object} APIResponse "Storage failed"
// @Failure 500 {object} APIResponse "Extraction failed"
// @Router /bills/extract [post]
func (h *BillHandler) Extract(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	contentType := header.Header.Get("Content-Type")
	bill, err := h.billService.ExtractUpload(c.Request.Context(), service.ExtractUploadInput{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, bill)
}

// Reprocess handles POST /api/v1/bills/:id/reprocess
// @Summary Reprocess a bill
// @Description Download the stored image and run extraction again
// @Tags bills
// @Produce json
// @Param id path string true "Bill ID (UUID)"
// @Success 200 {object} APIResponse{data=domain.BillExtraction} "Extraction updated"
// @Failure 400 {object} APIResponse "Invalid ID"
// @Failure 404 {object} APIResponse "Bill not found"
// @Failure 502 {object} APIResponse "Storage failed"
// @Router /bills/{id}/reprocess [post]
func (h *BillHandler) Reprocess(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	bill, err := h.billService.Reprocess(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, bill)
}

// GetByID handles GET /api/v1/bills/:id
// @Summary Get bill by ID
// @Tags bills
// @Produce json
// @Param id path string true "Bill ID (UUID)"
// @Success 200 {object} APIResponse{data=domain.BillExtraction} "Stored extraction"
// @Failure 400 {object} APIResponse "Invalid ID"
// @Failure 404 {object} APIResponse "Bill not found"
// @Router /bills/{id} [get]
func (h *BillHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	bill, err := h.billService.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, bill)
}

// List handles GET /api/v1/bills
// @Summary List bills
// @Description List stored extractions, newest first
// @Tags bills
// @Produce json
// @Param offset query int false "Pagination offset" default(0)
// @Param limit query int false "Pagination limit" default(20)
// @Success 200 {object} APIResponse{data=[]domain.BillExtraction,meta=PagMeta} "Paginated extractions"
// @Failure 500 {object} APIResponse "Internal error"
// @Router /bills [get]
func (h *BillHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	bills, total, err := h.billService.List(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, bills, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// HistoryXLSX handles GET /api/v1/bills/:id/history.xlsx
// @Summary Export consumption history
// @Description Download the customer header and monthly consumption of one bill as an XLSX workbook
// @Tags bills
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Bill ID (UUID)"
// @Success 200 {file} binary "XLSX workbook"
// @Failure 400 {object} APIResponse "Invalid ID"
// @Failure 404 {object} APIResponse "Bill not found"
// @Failure 409 {object} APIResponse "Bill has no extracted record"
// @Router /bills/{id}/history.xlsx [get]
func (h *BillHandler) HistoryXLSX(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	// Buffered so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := h.billService.ExportHistory(c.Request.Context(), id, &buf); err != nil {
		HandleError(c, err)
		return
	}

	filename := csvexport.BuildFilename("consumo_"+id.String(), "xlsx", time.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ExportCSV handles GET /api/v1/bills/export.csv
// @Summary Export bills as CSV
// @Description Stream every stored extraction as CSV
// @Tags bills
// @Produce text/csv
// @Success 200 {file} binary "CSV export"
// @Failure 500 {object} APIResponse "Export failed"
// @Router /bills/export.csv [get]
func (h *BillHandler) ExportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.billService.ExportCSV(c.Request.Context(), &buf); err != nil {
		HandleError(c, err)
		return
	}

	filename := csvexport.BuildFilename("bills", "csv", time.Now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid bill ID")
		return uuid.Nil, false
	}
	return id, true
}

func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
