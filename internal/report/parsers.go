package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadTable parses an uploaded file. The format is chosen by the file
// extension; only .csv and .xlsx are accepted.
func ReadTable(ctx context.Context, logger *slog.Logger, filename string, r io.Reader) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	logger = logger.With(slog.String("filename", filename), slog.String("format", ext))

	var (
		table *Table
		err   error
	)
	switch ext {
	case ".csv":
		table, err = readCSV(ctx, logger, r)
	case ".xlsx":
		table, err = readXLSX(ctx, logger, r)
	default:
		logger.WarnContext(ctx, "Rejected upload with unsupported extension")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to parse uploaded table", slog.Any("error", err))
		return nil, err
	}

	logger.InfoContext(ctx, "Parsed uploaded table",
		slog.Int("columns", len(table.Columns)),
		slog.Int("rows", len(table.Rows)),
	)
	return table, nil
}

func readCSV(ctx context.Context, logger *slog.Logger, r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		logger.DebugContext(ctx, "CSV is not valid UTF-8, decoding as GBK")
		src = transform.NewReader(src, simplifiedchinese.GBK.NewDecoder())
	}

	reader := csv.NewReader(src)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return newTable(records), nil
}

func readXLSX(ctx context.Context, logger *slog.Logger, r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return &Table{}, nil
	}
	logger.DebugContext(ctx, "Reading first worksheet",
		slog.String("sheet", sheets[0]),
		slog.Int("sheets", len(sheets)),
	)

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return newTable(rows), nil
}

// newTable takes the first record as the header and pads or truncates the
// remaining records to its width. Blank records are dropped.
func newTable(records [][]string) *Table {
	t := &Table{}
	if len(records) == 0 {
		return t
	}

	t.Columns = make([]string, len(records[0]))
	for i, c := range records[0] {
		t.Columns[i] = strings.TrimSpace(c)
	}

	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(t.Columns))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
