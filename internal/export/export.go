// Package export renders bookings as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"tripplanner/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var headers = []string{
	"Reference", "Type", "Provider", "Status", "Amount", "Currency",
	"Travel Date", "Booked At", "Itinerary", "Cancellation Policy",
}

// FileName is the attachment name for a bookings export over [from, to).
func FileName(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// BookingsWorkbook builds a single-sheet workbook: a period title, a header
// row, one row per booking and a totals row per currency.
func BookingsWorkbook(from, to time.Time, bookings []*models.Booking) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format("2006-01-02"), to.Format("2006-01-02")))
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	totals := make(map[string]float64)
	var currencies []string
	row := 3
	for _, b := range bookings {
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", row), &[]interface{}{
			b.BookingReference,
			b.Type,
			b.Provider,
			b.Status,
			b.Cost.Amount,
			b.Cost.Currency,
			dateCell(b.TravelDate),
			b.BookingDate.UTC().Format("2006-01-02 15:04"),
			stringCell(b.ItineraryID),
			b.CancellationPolicy,
		}); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
		if b.Status != models.BookingCancelled {
			if _, seen := totals[b.Cost.Currency]; !seen {
				currencies = append(currencies, b.Cost.Currency)
			}
			totals[b.Cost.Currency] += b.Cost.Amount
		}
		row++
	}

	totalStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for _, cur := range currencies {
		_ = f.SetSheetRow(sheetName, fmt.Sprintf("D%d", row), &[]interface{}{"Total", totals[cur], cur})
		_ = f.SetCellStyle(sheetName, fmt.Sprintf("D%d", row), fmt.Sprintf("F%d", row), totalStyle)
		row++
	}

	_ = f.SetColWidth(sheetName, "A", "A", 28)
	_ = f.SetColWidth(sheetName, "B", lastCol, 16)
	return f, nil
}

// WriteBookings streams the workbook to w.
func WriteBookings(w io.Writer, from, to time.Time, bookings []*models.Booking) error {
	f, err := BookingsWorkbook(from, to, bookings)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveBookings writes the workbook into dir and returns the file path.
func SaveBookings(dir string, from, to time.Time, bookings []*models.Booking) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	f, err := BookingsWorkbook(from, to, bookings)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(from, to))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

func dateCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func stringCell(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
