// Package export builds spreadsheet reports of the ledger.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"studiodesk/internal/billing"
	"studiodesk/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	LedgerSheet     = "Ledger"
	CommissionSheet = "Commission"
)

var (
	ledgerHeaders     = []string{"Date", "Reference", "Type", "Amount", "Account", "Booking", "Recipient", "Description"}
	commissionHeaders = []string{"Staff", "Rate, %", "Bookings", "Net revenue", "Earned", "Paid", "Outstanding"}
)

// LedgerWorkbook lays out transactions and commission records on two sheets.
// The caller owns the returned file and must Close it.
func LedgerWorkbook(transactions []models.Transaction, commissions []billing.CommissionRecord) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(LedgerSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create ledger sheet: %w", err)
	}
	if _, err := f.NewSheet(CommissionSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create commission sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	header, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := writeRows(f, LedgerSheet, ledgerHeaders, header, ledgerRows(transactions)); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeRows(f, CommissionSheet, commissionHeaders, header, commissionRows(commissions)); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.SetColWidth(LedgerSheet, "A", "A", 20)
	_ = f.SetColWidth(LedgerSheet, "B", "B", 38)
	_ = f.SetColWidth(LedgerSheet, "H", "H", 40)
	_ = f.SetColWidth(CommissionSheet, "A", "A", 25)
	_ = f.SetColWidth(CommissionSheet, "B", "G", 14)
	return f, nil
}

func ledgerRows(transactions []models.Transaction) [][]any {
	rows := make([][]any, 0, len(transactions))
	for _, tx := range transactions {
		rows = append(rows, []any{
			tx.CreatedAt.UTC().Format("2006-01-02 15:04"),
			tx.Reference.String(),
			string(tx.Type),
			tx.Amount,
			tx.AccountID,
			optionalID(tx.BookingID),
			optionalID(tx.RecipientID),
			tx.Description,
		})
	}
	return rows
}

func commissionRows(records []billing.CommissionRecord) [][]any {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		var rate any = ""
		if r.RateSet {
			rate = r.Rate
		}
		rows = append(rows, []any{r.StaffName, rate, r.Bookings, r.NetRevenue, r.Earned, r.Paid, r.Outstanding})
	}
	return rows
}

func writeRows(f *excelize.File, sheet string, headers []string, headerStyle int, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write %s header: %w", sheet, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, headerStyle)

	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write %s row %d: %w", sheet, r+2, err)
			}
		}
	}
	return nil
}

func optionalID(id *int64) any {
	if id == nil {
		return ""
	}
	return *id
}

// LedgerFileName names the workbook of the [from, to) period.
func LedgerFileName(from, to time.Time) string {
	return fmt.Sprintf("ledger_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
}

// Save writes the workbook into dir and returns its path.
func Save(f *excelize.File, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}
