package database

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// WriteSessionJSON writes the session summary to path. The file is written
// to a temporary name first and renamed into place.
func WriteSessionJSON(path string, summary models.SessionSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session summary: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move session file into place: %w", err)
	}

	log.Printf("Session summary saved to %s (%d devices, %d events)",
		path, summary.Counts.UniqueDevices, summary.Counts.StoredEvents)
	return nil
}
