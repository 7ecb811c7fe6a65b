package report

import (
	"errors"

	"url-status-report/internal/checker"
)

const (
	DomainColumn     = "domain"
	StatusCodeColumn = "status_code"
	MessageColumn    = "message"

	SheetName = "Sheet1"
	FileName  = "results.xlsx"
	MIMEType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported file format")
	ErrMissingDomainColumn = errors.New("missing domain column")
)

// Table is a parsed spreadsheet. Every row has len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Report is an augmented table together with its serialised workbook.
type Report struct {
	Table   *Table
	Records []checker.Record
	XLSX    []byte
}
