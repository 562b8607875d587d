package database

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

func sampleEvent(mac string) models.EventRecord {
	interval := 100.5
	return models.EventRecord{
		Event: models.CanonicalEvent{
			MAC:         mac,
			RSSI:        -61,
			Channel:     38,
			Scanner:     "2",
			TsEpochUs:   1_700_000_000_000_000,
			TsMonoUs:    42_000_000,
			Name:        "Tag",
			MfgID:       0x004C,
			MfgDataHex:  "0215",
			TxPower:     -8,
			AdvLen:      27,
			NServices16: 1,
			HasServices: true,
			PacketHash:  "1A2B3C4D",
			ReceivedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		AdvIntervalMs: &interval,
		Manufacturer:  "Apple, Inc.",
	}
}

func sampleCalibration(scanner string) models.CalibrationRecord {
	return models.CalibrationRecord{
		Timestamp: time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC),
		Coords:    models.Coords{X: 1.5, Y: 2, Z: 1},
		Scanner:   scanner,
		TargetMAC: "AA:BB:CC:DD:EE:FF",
		Channels: map[int]models.ChannelStats{
			37: {Count: 10, Mean: -55.1, StdDev: 1.2, Min: -57, Max: -53},
			38: {Count: 10, Mean: -56, StdDev: 0.8, Min: -57, Max: -55},
			39: {Count: 10, Mean: -58.25, StdDev: 2, Min: -61, Max: -55},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVLog_HeaderWrittenOnce(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "ble_log.csv")
	calib := filepath.Join(dir, "calibration_log.csv")
	ctx := context.Background()

	l, err := NewCSVLog(events, calib)
	require.NoError(t, err)
	require.NoError(t, l.SaveEvents(ctx, []models.EventRecord{sampleEvent("AA:00:00:00:00:01")}))
	require.NoError(t, l.Close())

	l, err = NewCSVLog(events, calib)
	require.NoError(t, err)
	rec := sampleEvent("AA:00:00:00:00:02")
	rec.AdvIntervalMs = nil
	require.NoError(t, l.SaveEvents(ctx, []models.EventRecord{rec}))
	require.NoError(t, l.SaveCalibration(ctx, []models.CalibrationRecord{sampleCalibration("1"), sampleCalibration("2")}))
	require.NoError(t, l.Close())

	rows := readCSV(t, events)
	require.Len(t, rows, 3)
	assert.Equal(t, EventColumns, rows[0])
	assert.Equal(t, "AA:00:00:00:00:01", rows[1][1])
	assert.Equal(t, "100.5", rows[1][8])
	assert.Equal(t, "", rows[2][8])
	assert.Equal(t, "1", rows[1][9])
	assert.Equal(t, "1A2B3C4D", rows[1][13])
	assert.Equal(t, "1700000000000000", rows[1][15])

	calRows := readCSV(t, calib)
	require.Len(t, calRows, 3)
	assert.Equal(t, CalibrationColumns, calRows[0])
	assert.Equal(t, []string{"1.5", "2", "1", "1", "AA:BB:CC:DD:EE:FF"}, calRows[1][1:6])
	assert.Equal(t, []string{"-55.1", "1.2", "10", "-56", "0.8", "10", "-58.25", "2", "10"}, calRows[1][6:])
	assert.Equal(t, "2", calRows[2][4])
}

func TestCSVLog_DisabledPaths(t *testing.T) {
	l, err := NewCSVLog("", "")
	require.NoError(t, err)
	assert.NoError(t, l.SaveEvents(context.Background(), []models.EventRecord{sampleEvent("AA")}))
	assert.NoError(t, l.Close())
}

func TestSQLiteDB_SaveAndCount(t *testing.T) {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "ble.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.SaveEvents(ctx, []models.EventRecord{
		sampleEvent("AA:00:00:00:00:01"),
		sampleEvent("AA:00:00:00:00:01"),
		sampleEvent("AA:00:00:00:00:02"),
	}))

	n, err := db.CountEvents(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = db.CountEvents(ctx, "AA:00:00:00:00:01")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, db.SaveCalibration(ctx, []models.CalibrationRecord{sampleCalibration("1")}))
	var rows int
	var mean float64
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM calibration_points").Scan(&rows))
	require.NoError(t, db.QueryRow("SELECT mean FROM calibration_points WHERE channel = 39").Scan(&mean))
	assert.Equal(t, 3, rows)
	assert.Equal(t, -58.25, mean)

	var interval *float64
	require.NoError(t, db.QueryRow("SELECT adv_int_ms FROM ble_events LIMIT 1").Scan(&interval))
	require.NotNil(t, interval)
	assert.Equal(t, 100.5, *interval)
}

type fakeStore struct {
	events, calibration int
	err                 error
	closed              bool
}

func (f *fakeStore) SaveEvents(_ context.Context, r []models.EventRecord) error {
	f.events += len(r)
	return f.err
}

func (f *fakeStore) SaveCalibration(_ context.Context, r []models.CalibrationRecord) error {
	f.calibration += len(r)
	return f.err
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func TestMultiStore_WritesAllAndJoinsErrors(t *testing.T) {
	failing := &fakeStore{err: errors.New("disk full")}
	ok := &fakeStore{}
	m := NewMultiStore(failing, ok)
	ctx := context.Background()

	err := m.SaveEvents(ctx, []models.EventRecord{sampleEvent("AA")})
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, ok.events)
	assert.Equal(t, 1, failing.events)

	assert.NoError(t, m.SaveCalibration(ctx, nil))
	assert.Zero(t, ok.calibration)

	require.NoError(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CSVEventLog:       filepath.Join(dir, "events.csv"),
		CSVCalibrationLog: filepath.Join(dir, "calibration.csv"),
		SQLitePath:        filepath.Join(dir, "ble.db"),
	}

	m, err := Open([]string{"csv", " SQLite ", ""}, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	require.NoError(t, m.SaveEvents(context.Background(), []models.EventRecord{sampleEvent("AA")}))
	require.NoError(t, m.Close())

	_, err = Open([]string{"csv", "mongo"}, opts)
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestWriteSessionJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	summary := models.SessionSummary{
		Meta:        map[string]any{"session_id": "abc"},
		Counts:      models.SessionCounts{TotalEvents: 1, StoredEvents: 1, UniqueDevices: 1},
		DevicesSeen: []models.DeviceSeen{{MAC: "AA"}},
		Events:      []models.EventRecord{sampleEvent("AA")},
	}
	require.NoError(t, WriteSessionJSON(path, summary))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "abc", got["meta"].(map[string]any)["session_id"])
	assert.Len(t, got["events"], 1)
	assert.Contains(t, got, "devices_seen")
}
