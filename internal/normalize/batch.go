package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

var batchScannerKeys = []string{"scannerid", "scanner_id", "scanner", "station", "station_id"}

// DecodeBatch parses an ingestion body. Both the batch form
// {"scannerId": "...", "events": [...]} and a bare single event are accepted.
// Events that are not objects are dropped here; field coercion is deferred to
// NormalizeBatch so the caller can return quickly.
func DecodeBatch(body []byte, scannerFallback string) (models.RawBatch, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return models.RawBatch{}, fmt.Errorf("failed to decode ingest body: %w", err)
	}
	if payload == nil {
		return models.RawBatch{}, ErrNotObject
	}

	r := lower(payload)
	batch := models.RawBatch{
		ScannerID:  strings.TrimSpace(r.str(batchScannerKeys)),
		ReceivedAt: time.Now(),
	}
	if batch.ScannerID == "" {
		batch.ScannerID = scannerFallback
	}
	if addr := strings.TrimSpace(r.str([]string{"ip", "station_address"})); addr != "" {
		batch.RemoteAddr = addr
	}

	events, isBatch := r["events"].([]any)
	if !isBatch {
		batch.Events = []map[string]any{payload}
		return batch, nil
	}

	batch.Events = make([]map[string]any, 0, len(events))
	for _, e := range events {
		if m, ok := e.(map[string]any); ok {
			batch.Events = append(batch.Events, m)
		}
	}
	return batch, nil
}

// NormalizeBatch normalizes every event of a batch, stamping the batch
// receive time. Records that cannot be normalized are counted, not returned.
func NormalizeBatch(batch models.RawBatch) (events []models.CanonicalEvent, rejected int) {
	events = make([]models.CanonicalEvent, 0, len(batch.Events))
	for _, raw := range batch.Events {
		ev, err := Normalize(raw, batch.ScannerID)
		if err != nil {
			rejected++
			continue
		}
		ev.ReceivedAt = batch.ReceivedAt
		events = append(events, ev)
	}
	return events, rejected
}
