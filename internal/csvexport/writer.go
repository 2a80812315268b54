package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"solarbill/internal/domain"
)

// BOM is the UTF-8 byte order mark Excel needs to detect the encoding.
var BOM = []byte{0xEF, 0xBB, 0xBF}

var columns = []string{
	"Bill ID",
	"Filename",
	"Status",
	"Processing Path",
	"Quality Score",
	"Provider",
	"Customer Name",
	"Customer ID",
	"Address",
	"City",
	"State",
	"Tariff",
	"Consumption kWh",
	"Billing Period",
	"Due Date",
	"History Months",
	"Extracted At",
	"Created At",
}

// Writer wraps csv.Writer for exporting bill extractions.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteBills converts a batch of extractions to rows and writes them.
func (w *Writer) WriteBills(bills []domain.BillExtraction) error {
	for i := range bills {
		if err := w.csv.Write(billToRow(&bills[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// billToRow fills the metadata columns always and the record columns only
// when the stored record decodes.
func billToRow(b *domain.BillExtraction) []string {
	row := make([]string, len(columns))

	row[0] = b.ID.String()
	row[1] = b.Filename
	row[2] = string(b.Status)
	row[3] = string(b.Path)
	row[4] = strconv.FormatFloat(b.QualityScore, 'f', 2, 64)
	row[16] = formatTime(b.ExtractedAt)
	row[17] = b.CreatedAt.Format(time.RFC3339)

	if len(b.Record) == 0 {
		return row
	}
	rec, err := domain.DecodeRecord(b.Record)
	if err != nil {
		return row
	}

	row[5] = rec.Provider
	row[6] = rec.CustomerName
	row[7] = rec.CustomerID
	row[8] = rec.Address
	row[9] = rec.City
	row[10] = rec.State
	row[11] = strconv.FormatFloat(rec.Tariff, 'f', 5, 64)
	row[12] = strconv.FormatFloat(rec.ConsumptionKWh, 'f', 0, 64)
	row[13] = rec.BillingPeriod
	row[14] = rec.DueDate
	row[15] = strconv.Itoa(len(rec.ConsumptionHistory))

	return row
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use in Content-Disposition. Characters
// other than letters, digits, - and _ become _, runs of _ collapse, and the
// result is capped at 100 characters.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns {sanitized_prefix}_{YYYY-MM-DD}.{ext}.
func BuildFilename(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", SanitizeFilename(prefix), now.Format("2006-01-02"), ext)
}
