// Package export produces XLSX workbooks the production team hands to
// accounting and fulfilment.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/goopick/madstamp/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for exports.
type Service struct {
	orders   repository.OrderRepository
	attempts repository.GenerationRepository
	logger   *slog.Logger
}

func NewService(orders repository.OrderRepository, attempts repository.GenerationRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orders: orders, attempts: attempts, logger: logger}
}

// ExportOrdersXLSX returns an XLSX workbook (as bytes) for the given date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all orders.
func (s *Service) ExportOrdersXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	// Normalize dates (date-only, UTC)
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		// Inclusive upper bound: end of day.
		t := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}

	orders, err := s.orders.List(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Orders"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Created",
		"Order ID",
		"Customer",
		"Subject",
		"Status",
		"Score",
		"Verdict",
		"Attempts",
		"Completed",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, o := range orders {
		attempts, err := s.attempts.ListByOrder(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("query attempts: %w", err)
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, o.CreatedAt.Format("2006-01-02"))
		write(2, o.ID.String())
		write(3, o.FromEmail)
		write(4, truncate(o.Subject, 60))
		write(5, string(o.Status))
		write(6, fmt.Sprintf("%.1f", o.Score))
		write(7, string(o.Verdict))
		write(8, len(attempts))
		if o.CompletedAt != nil {
			write(9, o.CompletedAt.Format("2006-01-02 15:04"))
		} else {
			write(9, "")
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 12) // created
	_ = f.SetColWidth(sheet, "B", "B", 38) // id
	_ = f.SetColWidth(sheet, "C", "C", 28) // customer
	_ = f.SetColWidth(sheet, "D", "D", 40) // subject
	_ = f.SetColWidth(sheet, "E", "E", 20) // status
	_ = f.SetColWidth(sheet, "F", "G", 14) // score / verdict
	_ = f.SetColWidth(sheet, "I", "I", 18) // completed

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(orders),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
