package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"solarbill/internal/domain"
)

const historySheet = "Consumo"

// WriteHistoryXLSX writes the customer header and the monthly consumption
// table of one record as a single-sheet workbook.
func WriteHistoryXLSX(w io.Writer, rec *domain.ExtractedBillRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), historySheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := [][2]any{
		{"Distribuidora", rec.Provider},
		{"Cliente", rec.CustomerName},
		{"Instalação", rec.CustomerID},
		{"Endereço", rec.Address},
		{"Cidade", fmt.Sprintf("%s/%s", rec.City, rec.State)},
		{"Tarifa (R$/kWh)", rec.Tariff},
		{"Consumo atual (kWh)", rec.ConsumptionKWh},
		{"Referência", rec.BillingPeriod},
	}
	row := 1
	for _, kv := range header {
		if err := setRow(f, row, kv[0], kv[1]); err != nil {
			return err
		}
		row++
	}

	row++
	tableStart := row
	if err := setRow(f, row, "Mês", "Consumo (kWh)", "Ano"); err != nil {
		return err
	}
	for _, e := range rec.ConsumptionHistory {
		row++
		values := []any{e.Month, e.ConsumptionKWh}
		if e.Year != nil {
			values = append(values, *e.Year)
		}
		if err := setRow(f, row, values...); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}
	_ = f.SetCellStyle(historySheet, "A1", fmt.Sprintf("A%d", len(header)), bold)
	_ = f.SetCellStyle(historySheet, fmt.Sprintf("A%d", tableStart), fmt.Sprintf("C%d", tableStart), bold)
	_ = f.SetColWidth(historySheet, "A", "A", 22)
	_ = f.SetColWidth(historySheet, "B", "B", 40)

	if rec.HistorySynthetic {
		note := fmt.Sprintf("A%d", row+2)
		_ = f.SetCellValue(historySheet, note, "Histórico estimado: não foi possível ler o gráfico da fatura.")
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(historySheet, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}
