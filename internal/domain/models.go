package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotAvailable is the sentinel stored in text fields that could not be extracted.
const NotAvailable = "N/A"

// Record invariants.
const (
	CustomerIDLength  = 10
	MinTariff         = 0.3
	MaxTariff         = 3.0
	MaxConsumptionKWh = 10000
	MaxHistoryEntries = 12
)

// ConsumptionHistoryEntry is one month of the consumption history chart.
type ConsumptionHistoryEntry struct {
	Month          string  `json:"month"`
	ConsumptionKWh float64 `json:"consumption_kwh"`
	Year           *int    `json:"year,omitempty"`
}

// ExtractedBillRecord is the normalized output of the extraction pipeline.
// Every field is always populated; missing values carry sentinels.
type ExtractedBillRecord struct {
	Provider           string                    `json:"provider"`
	CustomerName       string                    `json:"customer_name"`
	Address            string                    `json:"address"`
	City               string                    `json:"city"`
	State              string                    `json:"state"`
	CustomerID         string                    `json:"customer_id"`
	Tariff             float64                   `json:"tariff"`
	ConsumptionKWh     float64                   `json:"consumption_kwh"`
	BillingPeriod      string                    `json:"billing_period"`
	DueDate            string                    `json:"due_date"`
	ConsumptionHistory []ConsumptionHistoryEntry `json:"consumption_history"`
	HistorySynthetic   bool                      `json:"history_synthetic"`
}

// NewEmptyRecord returns a record with every field set to its sentinel.
func NewEmptyRecord() *ExtractedBillRecord {
	return &ExtractedBillRecord{
		Provider:           NotAvailable,
		CustomerName:       NotAvailable,
		Address:            NotAvailable,
		City:               NotAvailable,
		State:              NotAvailable,
		CustomerID:         NotAvailable,
		BillingPeriod:      NotAvailable,
		DueDate:            NotAvailable,
		ConsumptionHistory: []ConsumptionHistoryEntry{},
	}
}

// Normalize replaces blank text fields with sentinels and enforces the record
// invariants (identifier shape, tariff range, history length).
func (r *ExtractedBillRecord) Normalize() {
	for _, f := range []*string{
		&r.Provider, &r.CustomerName, &r.Address, &r.City, &r.State,
		&r.CustomerID, &r.BillingPeriod, &r.DueDate,
	} {
		if *f == "" {
			*f = NotAvailable
		}
	}
	if r.CustomerID != NotAvailable && !IsValidCustomerID(r.CustomerID) {
		r.CustomerID = NotAvailable
	}
	if r.Tariff != 0 && !IsPlausibleTariff(r.Tariff) {
		r.Tariff = 0
	}
	if r.ConsumptionKWh < 0 || r.ConsumptionKWh > MaxConsumptionKWh {
		r.ConsumptionKWh = 0
	}
	if r.ConsumptionHistory == nil {
		r.ConsumptionHistory = []ConsumptionHistoryEntry{}
	}
	if len(r.ConsumptionHistory) > MaxHistoryEntries {
		r.ConsumptionHistory = r.ConsumptionHistory[len(r.ConsumptionHistory)-MaxHistoryEntries:]
	}
}

// Clone returns a deep copy of the record.
func (r *ExtractedBillRecord) Clone() *ExtractedBillRecord {
	out := *r
	out.ConsumptionHistory = make([]ConsumptionHistoryEntry, len(r.ConsumptionHistory))
	for i, e := range r.ConsumptionHistory {
		out.ConsumptionHistory[i] = e
		if e.Year != nil {
			y := *e.Year
			out.ConsumptionHistory[i].Year = &y
		}
	}
	return &out
}

// IsValidCustomerID reports whether id is exactly ten ASCII digits.
func IsValidCustomerID(id string) bool {
	if len(id) != CustomerIDLength {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsPlausibleTariff reports whether a per-kWh price lies in the accepted range.
func IsPlausibleTariff(v float64) bool {
	return v >= MinTariff && v <= MaxTariff
}

// EncodeRecord serializes a record to its persistence format.
func EncodeRecord(r *ExtractedBillRecord) (json.RawMessage, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding bill record: %w", err)
	}
	return b, nil
}

// DecodeRecord reads a record back from its persistence format.
func DecodeRecord(raw json.RawMessage) (*ExtractedBillRecord, error) {
	var r ExtractedBillRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding bill record: %w", err)
	}
	if r.ConsumptionHistory == nil {
		r.ConsumptionHistory = []ConsumptionHistoryEntry{}
	}
	return &r, nil
}

// BillInput is one uploaded bill as received from the storage collaborator.
type BillInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BillExtraction is the persisted row for one processed bill.
type BillExtraction struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	Filename        string           `db:"filename" json:"filename"`
	ContentType     string           `db:"content_type" json:"content_type"`
	SizeBytes       int64            `db:"size_bytes" json:"size_bytes"`
	StorageBucket   string           `db:"storage_bucket" json:"-"`
	StorageKey      string           `db:"storage_key" json:"-"`
	Status          ExtractionStatus `db:"status" json:"status"`
	Path            ProcessingPath   `db:"processing_path" json:"processing_path"`
	QualityScore    float64          `db:"quality_score" json:"quality_score"`
	Record          json.RawMessage  `db:"record" json:"record"`
	Issues          json.RawMessage  `db:"issues" json:"issues"`
	Warnings        json.RawMessage  `db:"warnings" json:"warnings"`
	ProcessingError string           `db:"processing_error" json:"processing_error,omitempty"`
	Attempts        int              `db:"attempts" json:"attempts"`
	ExtractedAt     *time.Time       `db:"extracted_at" json:"extracted_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}
