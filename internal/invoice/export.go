package invoice

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SummaryHeader is the header row of the summary table
var SummaryHeader = []string{
	"Filename",
	"Invoice Number",
	"Company",
	"Total Amount",
	"Currency",
	"Balance Due",
	"Invoice Date",
	"Due Date",
}

const summarySheet = "Invoices"

// balanceColumn is the 1-based position of "Balance Due" in SummaryHeader
const balanceColumn = 6

// SummaryRows returns one row per entry, in entry order, without the header
func SummaryRows(entries []StoreEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		inv := e.Document.Invoice
		rows = append(rows, []string{
			e.ID,
			inv.Header.InvoiceNumber,
			inv.BillingParties.BillFrom.CompanyName,
			formatAmount(inv.Totals.TotalAmount),
			inv.Header.Currency,
			formatAmount(inv.Totals.BalanceDue),
			inv.Header.InvoiceDate,
			inv.Header.DueDate,
		})
	}
	return rows
}

// SummaryTable returns the header followed by SummaryRows
func SummaryTable(entries []StoreEntry) [][]string {
	table := make([][]string, 0, len(entries)+1)
	table = append(table, append([]string(nil), SummaryHeader...))
	return append(table, SummaryRows(entries)...)
}

// WriteSummaryCSV writes the summary table as comma-separated values
func WriteSummaryCSV(w io.Writer, entries []StoreEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(SummaryTable(entries)); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

// WriteSummaryXLSX writes the summary table as a single-sheet workbook.
// Amount columns are stored as numbers and the balance of an outstanding
// invoice is highlighted.
func WriteSummaryXLSX(w io.Writer, entries []StoreEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range SummaryHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(summarySheet, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	outstanding, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "C00000"},
	})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	row := 2
	for _, e := range entries {
		inv := e.Document.Invoice
		values := []any{
			e.ID,
			inv.Header.InvoiceNumber,
			inv.BillingParties.BillFrom.CompanyName,
			inv.Totals.TotalAmount,
			inv.Header.Currency,
			inv.Totals.BalanceDue,
			inv.Header.InvoiceDate,
			inv.Header.DueDate,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(summarySheet, cell, v); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
		}
		if inv.Outstanding() {
			cell, _ := excelize.CoordinatesToCellName(balanceColumn, row)
			if err := f.SetCellStyle(summarySheet, cell, cell, outstanding); err != nil {
				return fmt.Errorf("styling row %d: %w", row, err)
			}
		}
		row++
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 28) // filename
	_ = f.SetColWidth(summarySheet, "B", "C", 22)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}
