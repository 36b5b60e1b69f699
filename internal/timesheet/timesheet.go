package timesheet

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/roofmanager/fieldsync/internal/domain"
	"github.com/roofmanager/fieldsync/internal/timecalc"
)

const sheetName = "Timesheet"

var header = []string{"Job Number", "Job", "Date", "Start", "End", "Hours", "Duration", "Synced"}

var columnWidths = []float64{14, 30, 12, 8, 8, 8, 12, 8}

// Write renders completed time logs as an xlsx workbook, oldest first, with
// a total row. Times are shown in loc. Running logs are skipped.
func Write(w io.Writer, logs []domain.TimeLog, jobs []domain.Job, loc *time.Location) error {
	f, err := build(logs, jobs, loc)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func build(logs []domain.TimeLog, jobs []domain.Job, loc *time.Location) (*excelize.File, error) {
	byID := make(map[string]domain.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	completed := make([]domain.TimeLog, 0, len(logs))
	for _, l := range logs {
		if l.EndTime != nil && l.TotalHours != nil {
			completed = append(completed, l)
		}
	}
	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].StartTime.Before(completed[j].StartTime)
	})

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "H1", headerStyle); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to style header: %w", err)
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	var total float64
	for i, l := range completed {
		job := byID[l.JobID]
		title := job.Title
		if title == "" {
			title = l.JobID
		}
		start, end := l.StartTime.In(loc), l.EndTime.In(loc)
		hours := *l.TotalHours
		total += hours

		row := []any{
			job.JobNumber,
			title,
			start.Format("2006-01-02"),
			start.Format("15:04"),
			end.Format("15:04"),
			roundHours(hours),
			timecalc.FormatHours(hours),
			yesNo(l.Synced),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	totalRow := []any{"Total", "", "", "", "", roundHours(total), timecalc.FormatHours(total), ""}
	cell, err := excelize.CoordinatesToCellName(1, len(completed)+2)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(sheetName, cell, &totalRow); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write total row: %w", err)
	}
	return f, nil
}

func roundHours(h float64) float64 {
	return float64(int64(h*100+0.5)) / 100
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
