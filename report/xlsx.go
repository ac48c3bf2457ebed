package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/warp/patient-ledger/ledger"
)

// SheetName is the worksheet holding exported records.
const SheetName = "Patients"

// xlsxHeader is the first row of the export.
var xlsxHeader = []string{"#", "ID", "Name", "Price"}

// WriteXLSX writes the snapshot as a single-sheet workbook: one row per
// record in mirror order, then a subtotal row. Prices are numeric cells.
func (f *Formatter) WriteXLSX(w io.Writer, snap ledger.Snapshot) error {
	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName(x.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := x.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	// 4 is the built-in "#,##0.00" format.
	amount, err := x.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("amount style: %w", err)
	}

	for col, title := range xlsxHeader {
		if err := setCell(x, col+1, 1, title); err != nil {
			return err
		}
	}
	if err := x.SetCellStyle(SheetName, "A1", "D1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	row := 2
	for i, r := range snap.Records {
		for col, v := range []any{i + 1, r.ID.String(), r.Name, r.Price.InexactFloat64()} {
			if err := setCell(x, col+1, row, v); err != nil {
				return err
			}
		}
		row++
	}

	if err := setCell(x, 3, row, "Subtotal"); err != nil {
		return err
	}
	if err := setCell(x, 4, row, snap.Subtotal.InexactFloat64()); err != nil {
		return err
	}
	if err := x.SetCellStyle(SheetName, fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), bold); err != nil {
		return fmt.Errorf("style subtotal: %w", err)
	}
	if err := x.SetCellStyle(SheetName, "D2", fmt.Sprintf("D%d", row), amount); err != nil {
		return fmt.Errorf("style prices: %w", err)
	}
	if err := x.SetColWidth(SheetName, "C", "C", 36); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	if err := x.SetDocProps(&excelize.DocProperties{
		Title:   "Patients",
		Subject: fmt.Sprintf("%d records, currency %s", snap.Count(), f.Code()),
	}); err != nil {
		return fmt.Errorf("doc props: %w", err)
	}

	if err := x.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setCell(x *excelize.File, col, row int, v any) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := x.SetCellValue(SheetName, name, v); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}
