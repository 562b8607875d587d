package database

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// CSVLog appends events and calibration records to two CSV files. Each file
// gets its header only when it is created empty.
type CSVLog struct {
	mu          sync.Mutex
	events      *csvFile
	calibration *csvFile
}

type csvFile struct {
	path   string
	header []string
	f      *os.File
	w      *csv.Writer
}

// NewCSVLog opens (or creates) both logs. An empty path disables that log.
func NewCSVLog(eventPath, calibrationPath string) (*CSVLog, error) {
	l := &CSVLog{}
	var err error
	if eventPath != "" {
		if l.events, err = openCSV(eventPath, EventColumns); err != nil {
			return nil, err
		}
	}
	if calibrationPath != "" {
		if l.calibration, err = openCSV(calibrationPath, CalibrationColumns); err != nil {
			l.Close()
			return nil, err
		}
	}
	return l, nil
}

func openCSV(path string, header []string) (*csvFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cf := &csvFile{path: path, header: header, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := cf.write([][]string{header}); err != nil {
			f.Close()
			return nil, err
		}
		log.Printf("CSVLog: created %s", path)
	}
	return cf, nil
}

func (cf *csvFile) write(rows [][]string) error {
	if err := cf.w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", cf.path, err)
	}
	return nil
}

// SaveEvents implements Store.
func (l *CSVLog) SaveEvents(_ context.Context, records []models.EventRecord) error {
	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = eventRow(rec)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.events == nil || len(rows) == 0 {
		return nil
	}
	return l.events.write(rows)
}

// SaveCalibration implements Store.
func (l *CSVLog) SaveCalibration(_ context.Context, records []models.CalibrationRecord) error {
	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = calibrationRow(rec)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calibration == nil || len(rows) == 0 {
		return nil
	}
	return l.calibration.write(rows)
}

// Close flushes and closes both files.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, cf := range []*csvFile{l.events, l.calibration} {
		if cf == nil {
			continue
		}
		cf.w.Flush()
		if err := cf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", cf.path, err)
		}
	}
	l.events, l.calibration = nil, nil
	return firstErr
}
