package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarbill/internal/domain"
)

func TestNewEmptyRecord_FullyPopulated(t *testing.T) {
	rec := domain.NewEmptyRecord()
	for _, v := range []string{
		rec.Provider, rec.CustomerName, rec.Address, rec.City, rec.State,
		rec.CustomerID, rec.BillingPeriod, rec.DueDate,
	} {
		assert.Equal(t, domain.NotAvailable, v)
	}
	assert.NotNil(t, rec.ConsumptionHistory)
	assert.Empty(t, rec.ConsumptionHistory)
}

func TestNormalize_EnforcesInvariants(t *testing.T) {
	rec := &domain.ExtractedBillRecord{
		CustomerID:     "30123",
		Tariff:         4.2,
		ConsumptionKWh: -3,
	}
	for i := 0; i < 15; i++ {
		rec.ConsumptionHistory = append(rec.ConsumptionHistory, domain.ConsumptionHistoryEntry{
			Month: "janeiro", ConsumptionKWh: float64(i),
		})
	}

	rec.Normalize()

	assert.Equal(t, domain.NotAvailable, rec.CustomerID)
	assert.Equal(t, domain.NotAvailable, rec.CustomerName)
	assert.Zero(t, rec.Tariff)
	assert.Zero(t, rec.ConsumptionKWh)
	require.Len(t, rec.ConsumptionHistory, domain.MaxHistoryEntries)
	assert.Equal(t, 3.0, rec.ConsumptionHistory[0].ConsumptionKWh)
}

func TestIsValidCustomerID(t *testing.T) {
	assert.True(t, domain.IsValidCustomerID("3012345678"))
	assert.False(t, domain.IsValidCustomerID("301234567"))
	assert.False(t, domain.IsValidCustomerID("30123456789"))
	assert.False(t, domain.IsValidCustomerID("30123456a8"))
	assert.False(t, domain.IsValidCustomerID(domain.NotAvailable))
}

func TestIsPlausibleTariff(t *testing.T) {
	assert.True(t, domain.IsPlausibleTariff(0.3))
	assert.True(t, domain.IsPlausibleTariff(3.0))
	assert.False(t, domain.IsPlausibleTariff(0.29))
	assert.False(t, domain.IsPlausibleTariff(3.01))
}

func TestRecord_PersistenceRoundTrip(t *testing.T) {
	year := 2024
	rec := domain.NewEmptyRecord()
	rec.Provider = "CEMIG"
	rec.CustomerID = "3012345678"
	rec.Tariff = 0.95632
	rec.ConsumptionKWh = 254
	rec.ConsumptionHistory = []domain.ConsumptionHistoryEntry{
		{Month: "março", ConsumptionKWh: 190, Year: &year},
		{Month: "abril", ConsumptionKWh: 254},
	}

	raw, err := domain.EncodeRecord(rec)
	require.NoError(t, err)
	got, err := domain.DecodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	empty, err := domain.DecodeRecord([]byte(`{"customer_id":"N/A"}`))
	require.NoError(t, err)
	assert.NotNil(t, empty.ConsumptionHistory)

	_, err = domain.DecodeRecord([]byte(`{`))
	assert.Error(t, err)
}

func TestClone_IsDeep(t *testing.T) {
	year := 2024
	rec := domain.NewEmptyRecord()
	rec.ConsumptionHistory = []domain.ConsumptionHistoryEntry{{Month: "maio", ConsumptionKWh: 420, Year: &year}}

	c := rec.Clone()
	c.ConsumptionHistory[0].ConsumptionKWh = 1
	*c.ConsumptionHistory[0].Year = 1999

	assert.Equal(t, 420.0, rec.ConsumptionHistory[0].ConsumptionKWh)
	assert.Equal(t, 2024, *rec.ConsumptionHistory[0].Year)
}

func TestStageError(t *testing.T) {
	err := domain.NewStageError(domain.StageOCR, domain.ErrOCRFailure, "bill.jpg")
	assert.ErrorIs(t, err, domain.ErrOCRFailure)
	assert.Equal(t, "ocr: bill.jpg: text detection failed", err.Error())

	// an existing stage is preserved
	again := domain.NewStageError(domain.StageParse, err, "")
	var se *domain.StageError
	require.True(t, errors.As(again, &se))
	assert.Equal(t, domain.StageOCR, se.Stage)

	assert.NoError(t, domain.NewStageError(domain.StageAuth, nil, ""))
	assert.True(t, domain.IsInputError(domain.ErrSizeExceeded))
	assert.False(t, domain.IsInputError(domain.ErrOCRFailure))
}

func TestStatusForPath(t *testing.T) {
	assert.Equal(t, domain.ExtractionStatusCompleted, domain.StatusForPath(domain.PathOCR))
	assert.Equal(t, domain.ExtractionStatusCompleted, domain.StatusForPath(domain.PathLLM))
	assert.Equal(t, domain.ExtractionStatusDegraded, domain.StatusForPath(domain.PathFallback))
}
