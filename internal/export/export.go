// Package export renders the execution log into spreadsheet reports.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kintai/internal/config"
	"kintai/internal/domain"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

type Exporter struct {
	cfg    config.ExportConfig
	store  domain.Store
	clock  domain.Clock
	logger *zerolog.Logger
}

func NewExporter(cfg config.ExportConfig, store domain.Store, clk domain.Clock, logger *zerolog.Logger) *Exporter {
	return &Exporter{cfg: cfg, store: store, clock: clk, logger: logger}
}

// MonthlyReport writes one XLSX file covering the month (YYYY-MM) and
// returns its path.
func (e *Exporter) MonthlyReport(ctx context.Context, month string) (string, error) {
	start, err := time.ParseInLocation("2006-01", month, e.clock.Location())
	if err != nil {
		return "", fmt.Errorf("invalid month %q: %w", month, err)
	}
	end := start.AddDate(0, 1, 0)

	entries, err := e.store.ListExecutionLog(ctx, start, end, 5000)
	if err != nil {
		return "", fmt.Errorf("load execution log: %w", err)
	}

	if err := os.MkdirAll(e.cfg.Path, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Attendance"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Attendance automation log %s", month))
	_ = f.MergeCell(sheetName, "A1", "G1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"Executed at", "Action", "Scheduled", "Status", "Trigger", "Duration (ms)", "Error"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(sheetName, "A2", "G2", headerStyle)

	// Entries come newest-first; the report reads better oldest-first.
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		row := len(entries) - i + 2
		values := []any{
			entry.ExecutedAt.In(e.clock.Location()).Format("2006-01-02 15:04:05"),
			string(entry.ActionType),
			entry.ScheduledTime,
			string(entry.Status),
			string(entry.Trigger),
			entry.DurationMS,
			entry.ErrorMessage,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 22)
	_ = f.SetColWidth(sheetName, "B", "F", 14)
	_ = f.SetColWidth(sheetName, "G", "G", 40)
	_ = f.DeleteSheet("Sheet1")

	path := filepath.Join(e.cfg.Path, fmt.Sprintf("attendance_%s.xlsx", month))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save export: %w", err)
	}

	e.logger.Info().Str("path", path).Int("entries", len(entries)).Msg("monthly report exported")
	return path, nil
}
