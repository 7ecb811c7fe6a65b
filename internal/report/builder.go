package report

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"url-status-report/internal/checker"
)

// StatusChecker checks a batch of URLs and returns one record per URL in
// input order.
type StatusChecker interface {
	CheckAll(ctx context.Context, urls []string) []checker.Record
}

type Builder struct {
	checker StatusChecker
	logger  *slog.Logger
}

func NewBuilder(logger *slog.Logger, chk StatusChecker) *Builder {
	return &Builder{checker: chk, logger: logger}
}

// Build checks the domain of every row and returns the table with
// status_code and message columns plus its XLSX serialisation.
func (b *Builder) Build(ctx context.Context, table *Table) (*Report, error) {
	logger := b.logger.With(slog.Int("rows", len(table.Rows)))
	logger.DebugContext(ctx, "Starting report build")

	domainIdx := table.ColumnIndex(DomainColumn)
	if domainIdx < 0 {
		logger.WarnContext(ctx, "Table has no domain column", slog.Any("columns", table.Columns))
		return nil, ErrMissingDomainColumn
	}

	urls := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		urls[i] = strings.TrimSpace(row[domainIdx])
	}

	records := b.checker.CheckAll(ctx, urls)
	if len(records) != len(urls) {
		return nil, fmt.Errorf("checker returned %d records for %d rows", len(records), len(urls))
	}

	out := augment(table, records)

	buf, err := WriteXLSX(out)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to serialise report", slog.Any("error", err))
		return nil, err
	}

	logger.InfoContext(ctx, "Report build complete",
		slog.Int("columns", len(out.Columns)),
		slog.Int("report_bytes", len(buf)),
	)

	return &Report{Table: out, Records: records, XLSX: buf}, nil
}

// augment returns a copy of table with the status columns filled from
// records. Existing status columns are overwritten in place.
func augment(table *Table, records []checker.Record) *Table {
	columns := append([]string(nil), table.Columns...)
	codeIdx := indexOrAppend(&columns, StatusCodeColumn)
	msgIdx := indexOrAppend(&columns, MessageColumn)

	out := &Table{Columns: columns, Rows: make([][]string, len(table.Rows))}
	for i, row := range table.Rows {
		next := make([]string, len(columns))
		copy(next, row)

		rec := records[i]
		if rec.HasStatus() {
			next[codeIdx] = strconv.Itoa(rec.StatusCode)
		} else {
			next[codeIdx] = ""
		}
		next[msgIdx] = rec.Message
		out.Rows[i] = next
	}
	return out
}

func indexOrAppend(columns *[]string, name string) int {
	for i, c := range *columns {
		if c == name {
			return i
		}
	}
	*columns = append(*columns, name)
	return len(*columns) - 1
}
