package aggregator

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/timeutil"
)

// DefaultSessionMaxEvents bounds the event list kept for the summary.
const DefaultSessionMaxEvents = 100_000

// SessionRecorder accumulates what the session summary reports: first and
// last local sighting per MAC and the accepted events, capped at maxEvents.
type SessionRecorder struct {
	mu        sync.Mutex
	id        string
	clock     timeutil.Clock
	startedAt time.Time
	maxEvents int
	total     int
	seen      map[string]*models.DeviceSeen
	events    []models.EventRecord
}

// NewSessionRecorder starts a new session.
func NewSessionRecorder(maxEvents int, clock timeutil.Clock) *SessionRecorder {
	if maxEvents <= 0 {
		maxEvents = DefaultSessionMaxEvents
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SessionRecorder{
		id:        uuid.NewString(),
		clock:     clock,
		startedAt: clock.Now(),
		maxEvents: maxEvents,
		seen:      make(map[string]*models.DeviceSeen),
	}
}

// ID returns the session identifier.
func (sr *SessionRecorder) ID() string { return sr.id }

// Record adds one accepted event to the session.
func (sr *SessionRecorder) Record(rec models.EventRecord) {
	now := sr.clock.Now()

	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.total++
	mac := rec.Event.MAC
	if d, ok := sr.seen[mac]; ok {
		d.LastSeen = now
	} else {
		sr.seen[mac] = &models.DeviceSeen{MAC: mac, FirstSeen: now, LastSeen: now}
	}
	if len(sr.events) < sr.maxEvents {
		sr.events = append(sr.events, rec)
	}
}

// Summary builds the session document. Entries in meta override the
// generated ones.
func (sr *SessionRecorder) Summary(meta map[string]any) models.SessionSummary {
	now := sr.clock.Now()

	sr.mu.Lock()
	defer sr.mu.Unlock()

	m := map[string]any{
		"session_id":  sr.id,
		"started_at":  sr.startedAt,
		"ended_at":    now,
		"duration_s":  now.Sub(sr.startedAt).Seconds(),
		"max_events":  sr.maxEvents,
		"events_full": sr.total > len(sr.events),
	}
	for k, v := range meta {
		m[k] = v
	}

	devices := make([]models.DeviceSeen, 0, len(sr.seen))
	for _, d := range sr.seen {
		devices = append(devices, *d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].MAC < devices[j].MAC })

	events := make([]models.EventRecord, len(sr.events))
	copy(events, sr.events)

	return models.SessionSummary{
		Meta: m,
		Counts: models.SessionCounts{
			TotalEvents:   sr.total,
			StoredEvents:  len(events),
			UniqueDevices: len(devices),
		},
		DevicesSeen: devices,
		Events:      events,
	}
}
