// Package report exports run history to an XLSX workbook.
package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/loopback-labs/e2e-agent/internal/models"
)

const sheetName = "Runs"

var header = []string{"Run ID", "Kind", "Started", "Duration", "Suites", "Completed", "Success", "Error"}

// Write renders one row per run plus a totals line and saves the workbook at
// path.
func Write(runs []models.RunResult, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	for col, title := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return err
		}
	}

	succeeded := 0
	for i, run := range runs {
		completed := 0
		for _, s := range run.Suites {
			if s.State == models.SuiteStateCompleted {
				completed++
			}
		}
		if run.Success {
			succeeded++
		}
		values := []any{
			run.RunID,
			string(run.Kind),
			run.StartedAt.Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
			len(run.Suites),
			completed,
			run.Success,
			run.Error,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
	}

	summaryCell, _ := excelize.CoordinatesToCellName(1, len(runs)+3)
	summary := fmt.Sprintf("%d runs, %d succeeded", len(runs), succeeded)
	if err := f.SetCellValue(sheetName, summaryCell, summary); err != nil {
		return err
	}

	return f.SaveAs(path)
}
