package aggregator

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/normalize"
	"github.com/EldarSaltoun/BLE-Security-System/internal/timeutil"
)

// DefaultCalibrationQuota is the number of RSSI samples collected per
// (scanner, channel) bucket at one coordinate.
const DefaultCalibrationQuota = 10

// DefaultCalibrationTarget is the name substring that identifies the
// calibration beacon when no MAC is given.
const DefaultCalibrationTarget = "CALIB"

// StandardChannels are the BLE primary advertising channels.
var StandardChannels = [3]int{37, 38, 39}

// ErrCalibrationInactive is returned when aborting without an active cycle.
var ErrCalibrationInactive = errors.New("no calibration cycle in progress")

// StationDirectory reports which stations are currently alive.
type StationDirectory interface {
	ActiveIDs() []string
}

// CalibrationSampler collects per-station, per-channel RSSI samples of one
// target device at one coordinate. Start, Abort and Observe are serialized.
type CalibrationSampler struct {
	mu         sync.Mutex
	stations   StationDirectory
	clock      timeutil.Clock
	targetName string
	quota      int

	active    bool
	coords    models.Coords
	targetMAC string
	startedAt time.Time
	buckets   map[string]map[int][]int
	last      []models.CalibrationRecord
}

// NewCalibrationSampler creates an idle sampler. targetName is matched
// case-insensitively as a substring of advertised names.
func NewCalibrationSampler(targetName string, stations StationDirectory, clock timeutil.Clock) *CalibrationSampler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &CalibrationSampler{
		stations:   stations,
		clock:      clock,
		targetName: strings.ToUpper(strings.TrimSpace(targetName)),
		quota:      DefaultCalibrationQuota,
	}
}

// Start begins a new cycle at coords, discarding any cycle in progress.
// An empty targetMAC selects name-lock mode.
func (cs *CalibrationSampler) Start(coords models.Coords, targetMAC string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.active {
		log.Printf("CalibrationSampler: restarting, discarding cycle at %+v", cs.coords)
	}
	cs.active = true
	cs.coords = coords
	cs.targetMAC = ""
	if targetMAC != "" {
		cs.targetMAC = normalize.CanonicalMAC(targetMAC)
	}
	cs.startedAt = cs.clock.Now()
	cs.buckets = make(map[string]map[int][]int)

	if cs.targetMAC != "" {
		log.Printf("CalibrationSampler: started at (%.2f, %.2f, %.2f) for %s",
			coords.X, coords.Y, coords.Z, cs.targetMAC)
	} else {
		log.Printf("CalibrationSampler: started at (%.2f, %.2f, %.2f), waiting for name %q",
			coords.X, coords.Y, coords.Z, cs.targetName)
	}
}

// Abort cancels the active cycle.
func (cs *CalibrationSampler) Abort() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.active {
		return ErrCalibrationInactive
	}
	log.Printf("CalibrationSampler: aborted at (%.2f, %.2f, %.2f)", cs.coords.X, cs.coords.Y, cs.coords.Z)
	cs.reset()
	return nil
}

// Observe feeds one event into the active cycle. It returns the finalized
// per-scanner records when this event completes the cycle, nil otherwise.
func (cs *CalibrationSampler) Observe(ev models.CanonicalEvent) []models.CalibrationRecord {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.active {
		return nil
	}

	if cs.targetMAC == "" {
		if cs.targetName == "" || !strings.Contains(strings.ToUpper(ev.Name), cs.targetName) {
			return nil
		}
		cs.targetMAC = ev.MAC
		log.Printf("CalibrationSampler: locked target %s (%q)", ev.MAC, ev.Name)
	}
	if ev.MAC != cs.targetMAC || !isStandardChannel(ev.Channel) {
		return nil
	}

	channels, ok := cs.buckets[ev.Scanner]
	if !ok {
		channels = make(map[int][]int, len(StandardChannels))
		cs.buckets[ev.Scanner] = channels
	}
	if len(channels[ev.Channel]) >= cs.quota {
		return nil
	}
	channels[ev.Channel] = append(channels[ev.Channel], ev.RSSI)

	if !cs.complete() {
		return nil
	}
	records := cs.finalize()
	cs.last = records
	cs.reset()
	return records
}

// complete reports whether every alive station has a full quota on every
// standard channel. No alive stations means not complete.
func (cs *CalibrationSampler) complete() bool {
	if cs.stations == nil {
		return false
	}
	alive := cs.stations.ActiveIDs()
	if len(alive) == 0 {
		return false
	}
	for _, id := range alive {
		channels := cs.buckets[id]
		for _, ch := range StandardChannels {
			if len(channels[ch]) < cs.quota {
				return false
			}
		}
	}
	return true
}

func (cs *CalibrationSampler) finalize() []models.CalibrationRecord {
	now := cs.clock.Now()
	scanners := make([]string, 0, len(cs.buckets))
	for id := range cs.buckets {
		scanners = append(scanners, id)
	}
	sort.Strings(scanners)

	records := make([]models.CalibrationRecord, 0, len(scanners))
	for _, id := range scanners {
		stats := make(map[int]models.ChannelStats, len(StandardChannels))
		for _, ch := range StandardChannels {
			stats[ch] = SummarizeRSSI(cs.buckets[id][ch])
		}
		records = append(records, models.CalibrationRecord{
			Timestamp: now,
			Coords:    cs.coords,
			Scanner:   id,
			TargetMAC: cs.targetMAC,
			Channels:  stats,
		})
	}
	log.Printf("CalibrationSampler: finalized (%.2f, %.2f, %.2f) with %d station record(s)",
		cs.coords.X, cs.coords.Y, cs.coords.Z, len(records))
	return records
}

func (cs *CalibrationSampler) reset() {
	cs.active = false
	cs.targetMAC = ""
	cs.buckets = nil
	cs.startedAt = time.Time{}
}

// Status returns the sampler state and per-bucket progress.
func (cs *CalibrationSampler) Status() models.CalibrationStatus {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	status := models.CalibrationStatus{
		Active:    cs.active,
		TargetMAC: cs.targetMAC,
		Coords:    cs.coords,
		Quota:     cs.quota,
		Progress:  make(map[string]map[int]int, len(cs.buckets)),
		Last:      cs.last,
	}
	if cs.active {
		started := cs.startedAt
		status.StartedAt = &started
	}
	for id, channels := range cs.buckets {
		counts := make(map[int]int, len(StandardChannels))
		for _, ch := range StandardChannels {
			counts[ch] = len(channels[ch])
		}
		status.Progress[id] = counts
	}
	return status
}

func isStandardChannel(ch int) bool {
	for _, c := range StandardChannels {
		if c == ch {
			return true
		}
	}
	return false
}
