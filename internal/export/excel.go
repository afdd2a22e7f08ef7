// Package export renders booking data for salon staff: Excel workbooks for
// download and a Google Sheets mirror for the shared schedule.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"glowdesk/internal/models"
	"glowdesk/internal/schedule"
)

// ExcelWriter writes tabular data to a workbook.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	Close() error
}

// ExcelizeWriter implements ExcelWriter on the excelize library.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func NewExcelizeWriter() ExcelWriter {
	return &ExcelizeWriter{file: excelize.NewFile()}
}

// AddSheet adds a sheet and makes it current. The first sheet renames the
// workbook default instead of leaving an empty Sheet1 behind.
func (w *ExcelizeWriter) AddSheet(name string) error {
	// Excel caps sheet names at 31 chars.
	if len(name) > 31 {
		name = name[:31]
	}
	if w.currentSheet == "" {
		w.file.SetSheetName("Sheet1", name)
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, col); err != nil {
			return err
		}
	}
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	w.currentRow++
	return nil
}

func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	w.currentRow++
	return nil
}

func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}

var bookingColumns = []string{
	"ID", "Client", "Email", "Phone", "Date", "Time", "Service", "Duration (min)", "Status",
}

// bookingRow flattens a booking for a spreadsheet row.
func bookingRow(b models.Booking, durationMinutes int) []interface{} {
	return []interface{}{
		b.ID,
		b.Name,
		b.Email,
		b.Phone,
		b.Date,
		b.Time,
		b.Service,
		durationMinutes,
		b.Status,
	}
}

// WriteBookingsWorkbook fills a workbook with one row per booking, sorted as
// given. Durations come from the resolver so exported rows match the
// calendar display.
func WriteBookingsWorkbook(ctx context.Context, w ExcelWriter, bookings []models.Booking, services []models.Service, resolver *schedule.DurationResolver) error {
	if err := w.AddSheet("Bookings"); err != nil {
		return err
	}
	if err := w.WriteHeader(bookingColumns); err != nil {
		return err
	}
	for _, b := range bookings {
		minutes := schedule.DefaultDurationMinutes
		if resolver != nil {
			minutes = resolver.Resolve(ctx, b.Service, services, false)
		}
		if err := w.WriteRow(bookingRow(b, minutes)); err != nil {
			return err
		}
	}
	return nil
}
