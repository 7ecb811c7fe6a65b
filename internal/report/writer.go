package report

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX serialises table to a single-sheet workbook with a header row.
// status_code cells are written as numbers; empty ones are left blank.
func WriteXLSX(table *Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	codeIdx := table.ColumnIndex(StatusCodeColumn)

	header := make([]any, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range table.Rows {
		values := make([]any, len(row))
		for j, cell := range row {
			values[j] = cellValue(cell, j == codeIdx)
		}

		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, axis, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func cellValue(cell string, numeric bool) any {
	if !numeric {
		return cell
	}
	if cell == "" {
		return nil
	}
	if n, err := strconv.Atoi(cell); err == nil {
		return n
	}
	return cell
}
