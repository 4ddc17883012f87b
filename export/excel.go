/*
Package export renders reconciliation results as Excel workbooks.

PURPOSE:
  Operations teams review drift through spreadsheets, not JSON. This
  package turns validation reports and sweep history into .xlsx files
  the API streams as downloads.

SEE ALSO:
  - earnings/report.go: The report types rendered here
  - api/handlers.go: The download endpoints
*/
package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/warp/earnings-engine/earnings"
)

const timeLayout = "2006-01-02 15:04:05"

// DriftWorkbook builds a workbook with one row per driver validation report.
// Valid drivers are included so the sheet doubles as a full census.
func DriftWorkbook(reports []*earnings.ValidationReport) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Drift"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := []string{
		"Driver ID", "Valid", "Fixed",
		"Stored Deliveries", "Recomputed Deliveries",
		"Stored Completed", "Recomputed Completed",
		"Stored Earnings", "Recomputed Earnings",
		"Mismatched Fields", "Missing Earnings", "Checked At",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	rowIndex := 2
	for _, r := range reports {
		if r == nil {
			continue
		}
		fields := make([]string, 0, len(r.Mismatches))
		for _, m := range r.Mismatches {
			fields = append(fields, m.Field)
		}

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", rowIndex), r.DriverID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", rowIndex), r.Valid)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowIndex), r.Fixed)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowIndex), r.Stored.TotalDeliveries)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", rowIndex), r.Recomputed.TotalDeliveries)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", rowIndex), r.Stored.CompletedDeliveries)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", rowIndex), r.Recomputed.CompletedDeliveries)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", rowIndex), r.Stored.TotalEarnings.MinorUnits())
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", rowIndex), r.Recomputed.TotalEarnings.MinorUnits())
		f.SetCellValue(sheetName, fmt.Sprintf("J%d", rowIndex), strings.Join(fields, ", "))
		f.SetCellValue(sheetName, fmt.Sprintf("K%d", rowIndex), r.Recomputed.MissingEarnings)
		f.SetCellValue(sheetName, fmt.Sprintf("L%d", rowIndex), r.CheckedAt.Format(timeLayout))
		rowIndex++
	}

	return f, nil
}

// SweepWorkbook builds a workbook with one row per recorded sweep run,
// newest first as the store returns them.
func SweepWorkbook(runs []earnings.SweepRun) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Sweeps"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := []string{
		"Run ID", "Mode", "Status", "Started At", "Finished At",
		"Checked", "Valid", "Invalid", "Fixed", "Failures", "Error",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	rowIndex := 2
	for _, run := range runs {
		finished := ""
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format(timeLayout)
		}

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", rowIndex), run.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", rowIndex), string(run.Mode))
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowIndex), string(run.Status))
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowIndex), run.StartedAt.Format(timeLayout))
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", rowIndex), finished)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", rowIndex), run.DriversChecked)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", rowIndex), run.DriversValid)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", rowIndex), run.DriversInvalid)
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", rowIndex), run.DriversFixed)
		f.SetCellValue(sheetName, fmt.Sprintf("J%d", rowIndex), run.Failures)
		f.SetCellValue(sheetName, fmt.Sprintf("K%d", rowIndex), run.Error)
		rowIndex++
	}

	return f, nil
}
