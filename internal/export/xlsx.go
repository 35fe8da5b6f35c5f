// Package export writes the donation ledger to spreadsheet files.
package export

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"donations/internal/core"
	applog "donations/internal/log"
)

// SheetName is the worksheet holding the exported donations
const SheetName = "Donations"

// ContentType is the media type of an XLSX workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var header = []string{"Donor", "Amount", "Donated At"}

// Summary describes what an export wrote
type Summary struct {
	Rows  int
	Total decimal.Decimal
}

// WriteXLSX writes every donation of seq, oldest first, followed by a
// total row. Nothing is written to w when the sequence fails.
func WriteXLSX(ctx context.Context, w io.Writer, donations iter.Seq2[core.Donation, error], logger *applog.Logger) (Summary, error) {
	logger = logger.WithComponent(applog.ComponentExport)

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return Summary{}, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return Summary{}, fmt.Errorf("failed to write header: %w", err)
		}
	}

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create style: %w", err)
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create style: %w", err)
	}
	_ = f.SetCellStyle(SheetName, "A1", "C1", boldStyle)

	summary := Summary{Total: decimal.Zero}
	row := 2
	for d, err := range donations {
		if err != nil {
			return Summary{}, err
		}
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		ts := ""
		if at, ok := d.Timestamp(); ok {
			ts = at.Format(core.TimestampLayout)
		}
		values := []any{d.Name(), d.Amount().InexactFloat64(), ts}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return Summary{}, fmt.Errorf("failed to write row %d: %w", row, err)
		}

		summary.Rows++
		summary.Total = summary.Total.Add(d.Amount())
		row++
	}

	totalLabel, _ := excelize.CoordinatesToCellName(1, row)
	totalCell, _ := excelize.CoordinatesToCellName(2, row)
	_ = f.SetCellValue(SheetName, totalLabel, "Total")
	_ = f.SetCellValue(SheetName, totalCell, summary.Total.InexactFloat64())
	_ = f.SetCellStyle(SheetName, totalLabel, totalLabel, boldStyle)
	_ = f.SetCellStyle(SheetName, "B2", totalCell, amountStyle)

	_ = f.SetColWidth(SheetName, "A", "A", 24)
	_ = f.SetColWidth(SheetName, "B", "B", 14)
	_ = f.SetColWidth(SheetName, "C", "C", 18)

	if err := f.Write(w); err != nil {
		return Summary{}, fmt.Errorf("failed to write workbook: %w", err)
	}

	logger.Info("Exported donations",
		"rows", summary.Rows,
		applog.FieldTotal, summary.Total.String())
	return summary, nil
}
