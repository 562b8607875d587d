package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// Store persists accepted events and finalized calibration records.
type Store interface {
	SaveEvents(ctx context.Context, records []models.EventRecord) error
	SaveCalibration(ctx context.Context, records []models.CalibrationRecord) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendCSV        = "csv"
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
)

// Options configures every backend Open may create.
type Options struct {
	CSVEventLog       string
	CSVCalibrationLog string
	SQLitePath        string
	ClickHouseAddr    string
	ClickHouseDB      string
	ClickHouseUser    string
	ClickHousePass    string
}

// Open creates the named backends and joins them into one MultiStore. On
// failure the backends already opened are closed.
func Open(backends []string, opts Options) (*MultiStore, error) {
	multi := &MultiStore{}
	for _, name := range backends {
		var (
			s   Store
			err error
		)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case BackendCSV:
			s, err = NewCSVLog(opts.CSVEventLog, opts.CSVCalibrationLog)
		case BackendSQLite:
			s, err = NewSQLiteDB(opts.SQLitePath)
		case BackendClickHouse:
			s, err = NewClickHouseDB(opts.ClickHouseAddr, opts.ClickHouseDB, opts.ClickHouseUser, opts.ClickHousePass)
		case "":
			continue
		default:
			err = fmt.Errorf("unknown store backend %q", name)
		}
		if err != nil {
			multi.Close()
			return nil, fmt.Errorf("failed to open %s store: %w", name, err)
		}
		multi.stores = append(multi.stores, s)
		log.Printf("Database: %s store enabled", name)
	}
	return multi, nil
}

// MultiStore writes to every underlying store. A failing store does not
// prevent writes to the others; errors are joined.
type MultiStore struct {
	stores []Store
}

// NewMultiStore joins stores.
func NewMultiStore(stores ...Store) *MultiStore {
	return &MultiStore{stores: stores}
}

// Len returns the number of underlying stores.
func (m *MultiStore) Len() int { return len(m.stores) }

// SaveEvents implements Store.
func (m *MultiStore) SaveEvents(ctx context.Context, records []models.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	var errs []error
	for _, s := range m.stores {
		if err := s.SaveEvents(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveCalibration implements Store.
func (m *MultiStore) SaveCalibration(ctx context.Context, records []models.CalibrationRecord) error {
	if len(records) == 0 {
		return nil
	}
	var errs []error
	for _, s := range m.stores {
		if err := s.SaveCalibration(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Store.
func (m *MultiStore) Close() error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
