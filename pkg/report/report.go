// Package report renders a computed daily view into downloadable
// documents. Both formats are built entirely from the view so the numbers
// always match what the dashboard shows.
package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/fluxboard/fluxboard/pkg/types"
)

// Formats accepted by BuildDaily.
const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// ContentType returns the MIME type served for a format, or empty when the
// format is unknown.
func ContentType(format string) string {
	switch format {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return ""
}

// BuildDaily renders view for the given day in the given format.
func BuildDaily(view *types.DailyView, day, format string) ([]byte, error) {
	switch format {
	case FormatPDF:
		return BuildDailyPDF(view, day)
	case FormatXLSX:
		return BuildDailyXLSX(view, day)
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

func batteryCapacityKWH(view *types.DailyView) float64 {
	if len(view.Periods) == 0 {
		return 0
	}
	return view.Periods[0].Input.BatteryCapacityKWH
}

// BuildDailyPDF renders a one-day energy report as a PDF.
func BuildDailyPDF(view *types.DailyView, day string) ([]byte, error) {
	sum := view.Summary

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Energy Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Day: %s", day))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Periods: %d valid (%d actual, %d predicted), %d skipped",
		sum.ValidPeriods, sum.ActualPeriods, sum.PredictedPeriods, len(view.SkippedPeriods)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Battery capacity: %.1f kWh", batteryCapacityKWH(view)))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Solar production: %.1f kWh", sum.TotalSolarProductionKWH))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Home consumption: %.1f kWh", sum.TotalHomeConsumptionKWH))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Grid imported: %.1f kWh, exported: %.1f kWh",
		sum.TotalGridImportedKWH, sum.TotalGridExportedKWH))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Battery charged: %.1f kWh, discharged: %.1f kWh (%.2f cycles)",
		sum.TotalBatteryChargedKWH, sum.TotalBatteryDischargedKWH, sum.CycleCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Self-sufficiency: %.0f%%", sum.SelfSufficiencyPercent))
	pdf.Ln(8)

	pdf.Cell(0, 6, fmt.Sprintf("Grid-only cost: $%.2f", sum.Costs.GridOnlyCost))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Solar-only cost: $%.2f", sum.Costs.SolarOnlyCost))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Optimized cost: $%.2f", sum.Costs.OptimizedCost))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Savings: $%.2f total ($%.2f solar, $%.2f battery)",
		sum.Costs.TotalSavings, sum.Costs.SolarSavings, sum.Costs.BatterySavings))
	pdf.Ln(8)

	// Periods table
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(14, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Source", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Buy $/kWh", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Solar kWh", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Load kWh", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Battery kWh", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Action", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Savings $", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, p := range view.Periods {
		pdf.CellFormat(14, 6, fmt.Sprintf("%d", p.Input.Index), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, string(p.Input.DataSource), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%.3f", p.Input.BuyPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%.2f", p.Input.SolarProductionKWH), "1", 0, "R", false, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%.2f", p.Input.HomeConsumptionKWH), "1", 0, "R", false, 0, "")
		pdf.CellFormat(22, 6, fmt.Sprintf("%+.2f", p.Input.BatteryActionKWH), "1", 0, "R", false, 0, "")
		pdf.CellFormat(22, 6, string(p.Decision.Action), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%.2f", p.Costs.TotalSavings), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(view.SkippedPeriods) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, fmt.Sprintf("Skipped periods (%d)", len(view.SkippedPeriods)))
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 9)
		for _, s := range view.SkippedPeriods {
			pdf.Cell(0, 5, fmt.Sprintf("Period %d dropped at %s: %s", s.Index, s.Stage, s.Error))
			pdf.Ln(5)
		}
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDailyXLSX renders a one-day energy report as a spreadsheet with
// summary, periods, and skipped sheets.
func BuildDailyXLSX(view *types.DailyView, day string) ([]byte, error) {
	sum := view.Summary

	f := excelize.NewFile()
	summarySheet := "summary"
	periodsSheet := "periods"
	skippedSheet := "skipped"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(periodsSheet)
	f.NewSheet(skippedSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Daily Energy Report")
	_ = f.SetCellValue(summarySheet, "A3", "Day")
	_ = f.SetCellValue(summarySheet, "B3", day)
	_ = f.SetCellValue(summarySheet, "A4", "Valid Periods")
	_ = f.SetCellValue(summarySheet, "B4", sum.ValidPeriods)
	_ = f.SetCellValue(summarySheet, "A5", "Skipped Periods")
	_ = f.SetCellValue(summarySheet, "B5", len(view.SkippedPeriods))
	_ = f.SetCellValue(summarySheet, "A6", "Battery Capacity (kWh)")
	_ = f.SetCellValue(summarySheet, "B6", batteryCapacityKWH(view))
	_ = f.SetCellValue(summarySheet, "A7", "Solar Production (kWh)")
	_ = f.SetCellValue(summarySheet, "B7", sum.TotalSolarProductionKWH)
	_ = f.SetCellValue(summarySheet, "A8", "Home Consumption (kWh)")
	_ = f.SetCellValue(summarySheet, "B8", sum.TotalHomeConsumptionKWH)
	_ = f.SetCellValue(summarySheet, "A9", "Grid Imported (kWh)")
	_ = f.SetCellValue(summarySheet, "B9", sum.TotalGridImportedKWH)
	_ = f.SetCellValue(summarySheet, "A10", "Grid Exported (kWh)")
	_ = f.SetCellValue(summarySheet, "B10", sum.TotalGridExportedKWH)
	_ = f.SetCellValue(summarySheet, "A11", "Battery Charged (kWh)")
	_ = f.SetCellValue(summarySheet, "B11", sum.TotalBatteryChargedKWH)
	_ = f.SetCellValue(summarySheet, "A12", "Battery Discharged (kWh)")
	_ = f.SetCellValue(summarySheet, "B12", sum.TotalBatteryDischargedKWH)
	_ = f.SetCellValue(summarySheet, "A13", "Cycle Count")
	_ = f.SetCellValue(summarySheet, "B13", sum.CycleCount)
	_ = f.SetCellValue(summarySheet, "A14", "Grid-Only Cost ($)")
	_ = f.SetCellValue(summarySheet, "B14", sum.Costs.GridOnlyCost)
	_ = f.SetCellValue(summarySheet, "A15", "Solar-Only Cost ($)")
	_ = f.SetCellValue(summarySheet, "B15", sum.Costs.SolarOnlyCost)
	_ = f.SetCellValue(summarySheet, "A16", "Optimized Cost ($)")
	_ = f.SetCellValue(summarySheet, "B16", sum.Costs.OptimizedCost)
	_ = f.SetCellValue(summarySheet, "A17", "Solar Savings ($)")
	_ = f.SetCellValue(summarySheet, "B17", sum.Costs.SolarSavings)
	_ = f.SetCellValue(summarySheet, "A18", "Battery Savings ($)")
	_ = f.SetCellValue(summarySheet, "B18", sum.Costs.BatterySavings)
	_ = f.SetCellValue(summarySheet, "A19", "Total Savings ($)")
	_ = f.SetCellValue(summarySheet, "B19", sum.Costs.TotalSavings)
	_ = f.SetCellValue(summarySheet, "A20", "Total Savings (%)")
	_ = f.SetCellValue(summarySheet, "B20", sum.TotalSavingsPercent)
	_ = f.SetCellValue(summarySheet, "A21", "Self-Sufficiency (%)")
	_ = f.SetCellValue(summarySheet, "B21", sum.SelfSufficiencyPercent)

	_ = f.SetSheetRow(periodsSheet, "A1", &[]any{
		"Period", "Source", "Buy ($/kWh)", "Sell ($/kWh)", "Solar (kWh)",
		"Consumption (kWh)", "Grid Imported (kWh)", "Grid Exported (kWh)",
		"Battery (kWh)", "SOC Start (%)", "SOC End (%)", "Action", "Reason",
		"Savings ($)", "Price Percentile",
	})
	for i, p := range view.Periods {
		cell := fmt.Sprintf("A%d", i+2)
		_ = f.SetSheetRow(periodsSheet, cell, &[]any{
			p.Input.Index, string(p.Input.DataSource), p.Input.BuyPrice,
			p.Input.SellPrice, p.Input.SolarProductionKWH,
			p.Input.HomeConsumptionKWH, p.Input.GridImportedKWH,
			p.Input.GridExportedKWH, p.Input.BatteryActionKWH,
			p.Input.BatterySOCStart, p.Input.BatterySOCEnd,
			string(p.Decision.Action), p.Decision.PrimaryReason,
			p.Costs.TotalSavings, p.PricePercentile,
		})
	}

	_ = f.SetSheetRow(skippedSheet, "A1", &[]any{"Period", "Stage", "Error"})
	for i, s := range view.SkippedPeriods {
		cell := fmt.Sprintf("A%d", i+2)
		_ = f.SetSheetRow(skippedSheet, cell, &[]any{s.Index, s.Stage, s.Error})
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
