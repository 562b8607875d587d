package aggregator

import (
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/timeutil"
	"github.com/EldarSaltoun/BLE-Security-System/internal/vendors"
)

// MaxAdvertisementIntervalUs is the largest gap between two advertisements of
// one device that is still accepted as an interval sample (10.24 s).
const MaxAdvertisementIntervalUs = 10_240_000

// DefaultPresenceWindow is how long a silent device stays present.
const DefaultPresenceWindow = 5 * time.Second

// PresenceTracker keeps the live set of advertising devices keyed by MAC.
// Apply and Sweep are serialized by one mutex.
type PresenceTracker struct {
	mu      sync.Mutex
	devices map[string]*models.DeviceState
	window  time.Duration
	clock   timeutil.Clock
	vendors *vendors.Directory
}

// NewPresenceTracker creates a tracker evicting devices silent for longer
// than window.
func NewPresenceTracker(window time.Duration, clock timeutil.Clock, dir *vendors.Directory) *PresenceTracker {
	if window <= 0 {
		window = DefaultPresenceWindow
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PresenceTracker{
		devices: make(map[string]*models.DeviceState),
		window:  window,
		clock:   clock,
		vendors: dir,
	}
}

// Apply records ev as the latest observation of its device. It returns the
// device's current advertisement interval estimate and whether the device
// was unknown before this event.
//
// Devices are keyed by MAC alone, so consecutive events may come from
// different stations whose monotonic clocks are unrelated. Such deltas are
// used like any other: a backwards or out-of-bound delta keeps the previous
// estimate, anything else replaces it.
func (pt *PresenceTracker) Apply(ev models.CanonicalEvent) (interval *float64, isNew bool) {
	now := pt.clock.Now()

	pt.mu.Lock()
	defer pt.mu.Unlock()

	state, exists := pt.devices[ev.MAC]
	if !exists {
		pt.devices[ev.MAC] = &models.DeviceState{Last: ev, LastSeen: now}
		return nil, true
	}

	if ms, ok := intervalMs(state.Last.TsMonoUs, ev.TsMonoUs); ok {
		state.AdvIntervalMs = &ms
	}
	state.Last = ev
	state.LastSeen = now
	return copyFloat(state.AdvIntervalMs), false
}

// Record applies ev and returns the row that goes to the event log.
func (pt *PresenceTracker) Record(ev models.CanonicalEvent) (models.EventRecord, bool) {
	interval, isNew := pt.Apply(ev)
	return models.EventRecord{
		Event:         ev,
		AdvIntervalMs: interval,
		Manufacturer:  pt.vendors.Resolve(ev.MfgID),
	}, isNew
}

// intervalMs converts a monotonic timestamp delta to milliseconds rounded to
// one decimal. A zero timestamp means the station sent none.
func intervalMs(prevUs, curUs uint64) (float64, bool) {
	if prevUs == 0 || curUs == 0 || curUs <= prevUs {
		return 0, false
	}
	dt := curUs - prevUs
	if dt > MaxAdvertisementIntervalUs {
		return 0, false
	}
	return math.Round(float64(dt)/100) / 10, true
}

// Sweep removes every device not seen within the presence window and
// returns the evicted MACs in sorted order.
func (pt *PresenceTracker) Sweep() []string {
	now := pt.clock.Now()

	pt.mu.Lock()
	var evicted []string
	for mac, state := range pt.devices {
		if now.Sub(state.LastSeen) > pt.window {
			delete(pt.devices, mac)
			evicted = append(evicted, mac)
		}
	}
	pt.mu.Unlock()

	sort.Strings(evicted)
	if len(evicted) > 0 {
		log.Printf("PresenceTracker: %d device(s) left, %d present", len(evicted), pt.Count())
	}
	return evicted
}

// Count returns the number of devices currently present.
func (pt *PresenceTracker) Count() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return len(pt.devices)
}

// Get returns a copy of the state of one device.
func (pt *PresenceTracker) Get(mac string) (models.DeviceState, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	state, ok := pt.devices[mac]
	if !ok {
		return models.DeviceState{}, false
	}
	out := *state
	out.AdvIntervalMs = copyFloat(state.AdvIntervalMs)
	return out, true
}

// Snapshot returns display rows for all present devices sorted by MAC.
// Manufacturer names are resolved after the lock is released.
func (pt *PresenceTracker) Snapshot() []models.DeviceSnapshot {
	pt.mu.Lock()
	states := make([]models.DeviceState, 0, len(pt.devices))
	for _, state := range pt.devices {
		s := *state
		s.AdvIntervalMs = copyFloat(state.AdvIntervalMs)
		states = append(states, s)
	}
	pt.mu.Unlock()

	sort.Slice(states, func(i, j int) bool { return states[i].Last.MAC < states[j].Last.MAC })

	rows := make([]models.DeviceSnapshot, 0, len(states))
	for _, s := range states {
		ev := s.Last
		rows = append(rows, models.DeviceSnapshot{
			MAC:           ev.MAC,
			Name:          ev.Name,
			RSSI:          ev.RSSI,
			Channel:       ev.Channel,
			TxPower:       ev.TxPower,
			Manufacturer:  pt.vendors.Resolve(ev.MfgID),
			AdvLen:        ev.AdvLen,
			AdvIntervalMs: s.AdvIntervalMs,
			HasServices:   ev.HasServices,
			NServices16:   ev.NServices16,
			NServices128:  ev.NServices128,
			MfgDataHex:    ev.MfgDataHex,
			PacketHash:    ev.PacketHash,
			Scanner:       ev.Scanner,
			LastSeen:      s.LastSeen,
		})
	}
	return rows
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
