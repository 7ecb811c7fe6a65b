// Package store keeps the result set and report workbook of each session.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"url-status-report/internal/checker"
)

var ErrNotFound = errors.New("not found")

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Store is keyed by session ID. Implementations are safe for concurrent use.
type Store interface {
	Results(ctx context.Context, sessionID string) ([]checker.Record, error)
	ReplaceResults(ctx context.Context, sessionID string, records []checker.Record) error
	AppendResults(ctx context.Context, sessionID string, records ...checker.Record) error

	// Report returns ErrNotFound when the session has not uploaded a file.
	Report(ctx context.Context, sessionID string) ([]byte, error)
	SaveReport(ctx context.Context, sessionID string, report []byte) error

	// Sweep drops every session last written before the cutoff and returns
	// how many were removed.
	Sweep(ctx context.Context, before time.Time) (int, error)
	Close() error
}

func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverSQLite:
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
