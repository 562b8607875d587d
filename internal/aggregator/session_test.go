package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/timeutil"
)

func TestSessionRecorder_Summary(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	sr := NewSessionRecorder(2, clock)
	require.NotEmpty(t, sr.ID())

	rec := func(mac string) models.EventRecord {
		return models.EventRecord{Event: models.CanonicalEvent{MAC: mac}}
	}

	sr.Record(rec("BB:00:00:00:00:01"))
	clock.Advance(time.Second)
	sr.Record(rec("AA:00:00:00:00:01"))
	clock.Advance(time.Second)
	sr.Record(rec("BB:00:00:00:00:01"))

	summary := sr.Summary(map[string]any{"presence_window_s": 5.0})

	assert.Equal(t, models.SessionCounts{TotalEvents: 3, StoredEvents: 2, UniqueDevices: 2}, summary.Counts)
	require.Len(t, summary.DevicesSeen, 2)
	assert.Equal(t, models.DeviceSeen{
		MAC:       "AA:00:00:00:00:01",
		FirstSeen: start.Add(time.Second),
		LastSeen:  start.Add(time.Second),
	}, summary.DevicesSeen[0])
	assert.Equal(t, start, summary.DevicesSeen[1].FirstSeen)
	assert.Equal(t, start.Add(2*time.Second), summary.DevicesSeen[1].LastSeen)

	assert.Len(t, summary.Events, 2)
	assert.Equal(t, sr.ID(), summary.Meta["session_id"])
	assert.Equal(t, 5.0, summary.Meta["presence_window_s"])
	assert.Equal(t, true, summary.Meta["events_full"])
	assert.Equal(t, 2.0, summary.Meta["duration_s"])
}
