// Package stations tracks the scanning stations that report to the backend
// and forwards control commands to them.
package stations

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/timeutil"
)

// DefaultStationWindow is how long a silent station still counts as alive.
const DefaultStationWindow = 30 * time.Second

// Registry maps station ids to their last-known address and report time.
type Registry struct {
	mu       sync.RWMutex
	stations map[string]models.StationInfo
	window   time.Duration
	clock    timeutil.Clock
}

// NewRegistry creates an empty registry.
func NewRegistry(window time.Duration, clock timeutil.Clock) *Registry {
	if window <= 0 {
		window = DefaultStationWindow
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Registry{
		stations: make(map[string]models.StationInfo),
		window:   window,
		clock:    clock,
	}
}

// Touch marks a station as having just reported. An empty address keeps
// the previously known one.
func (r *Registry) Touch(id, address string) {
	if id == "" {
		return
	}
	now := r.clock.Now()

	r.mu.Lock()
	info, known := r.stations[id]
	info.ID = id
	info.LastSeen = now
	if address != "" {
		info.Address = address
	}
	r.stations[id] = info
	r.mu.Unlock()

	if !known {
		log.Printf("Stations: new station %s at %q", id, info.Address)
	}
}

// Active returns the stations seen within window. A non-positive window
// uses the registry default.
func (r *Registry) Active(window time.Duration) map[string]models.StationInfo {
	if window <= 0 {
		window = r.window
	}
	now := r.clock.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.StationInfo)
	for id, info := range r.stations {
		if now.Sub(info.LastSeen) <= window {
			out[id] = info
		}
	}
	return out
}

// ActiveIDs returns the sorted ids of stations alive within the default
// window.
func (r *Registry) ActiveIDs() []string {
	active := r.Active(0)
	ids := make([]string, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns a known station regardless of liveness.
func (r *Registry) Lookup(id string) (models.StationInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.stations[id]
	return info, ok
}

// Len returns the number of stations ever seen.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stations)
}
