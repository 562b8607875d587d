package services

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/aggregator"
	"github.com/EldarSaltoun/BLE-Security-System/internal/database"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/queue"
	"github.com/EldarSaltoun/BLE-Security-System/internal/timeutil"
)

// PresenceService applies canonical events to the presence tracker, records
// the session and persists accepted events in batches
type PresenceService struct {
	events  *queue.Queue[models.CanonicalEvent]
	tracker *aggregator.PresenceTracker
	session *aggregator.SessionRecorder
	store   database.Store
	clock   timeutil.Clock

	// Configuration
	minRSSI       *int
	batchSize     int
	sweepInterval time.Duration
	flushInterval time.Duration

	mu      sync.Mutex
	pending []models.EventRecord

	// Held from taking a batch until it is stored, so batches reach the
	// append-only logs in the order they were taken.
	flushMu sync.Mutex

	applied       atomic.Uint64
	filtered      atomic.Uint64
	persisted     atomic.Uint64
	persistErrors atomic.Uint64
	evicted       atomic.Uint64
}

// PresenceServiceConfig holds configuration for presence service
type PresenceServiceConfig struct {
	MinRSSI       *int // Events weaker than this are tracked but not persisted
	BatchSize     int
	SweepInterval time.Duration
	FlushInterval time.Duration
}

// DefaultPresenceServiceConfig returns default configuration
func DefaultPresenceServiceConfig() PresenceServiceConfig {
	return PresenceServiceConfig{
		BatchSize:     50,
		SweepInterval: 300 * time.Millisecond,
		FlushInterval: time.Second,
	}
}

// PresenceStats is a snapshot of the presence counters
type PresenceStats struct {
	Present       int    `json:"present"`
	Applied       uint64 `json:"applied"`
	Filtered      uint64 `json:"filtered"`
	Persisted     uint64 `json:"persisted"`
	PersistErrors uint64 `json:"persist_errors"`
	Evicted       uint64 `json:"evicted"`
}

// NewPresenceService creates a new presence service
func NewPresenceService(
	events *queue.Queue[models.CanonicalEvent],
	tracker *aggregator.PresenceTracker,
	session *aggregator.SessionRecorder,
	store database.Store,
	clock timeutil.Clock,
	config PresenceServiceConfig,
) *PresenceService {
	defaults := DefaultPresenceServiceConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaults.FlushInterval
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PresenceService{
		events:        events,
		tracker:       tracker,
		session:       session,
		store:         store,
		clock:         clock,
		minRSSI:       config.MinRSSI,
		batchSize:     config.BatchSize,
		sweepInterval: config.SweepInterval,
		flushInterval: config.FlushInterval,
	}
}

// Start consumes events and runs the sweep/flush tickers until the context
// is cancelled. Pending records are flushed before it returns.
func (s *PresenceService) Start(ctx context.Context) {
	log.Printf("PresenceService: Starting (sweep=%v, flush=%v, batch=%d)",
		s.sweepInterval, s.flushInterval, s.batchSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.tickLoop(ctx)
	}()

	for {
		ev, err := s.events.Dequeue(ctx)
		if err != nil {
			break
		}
		s.processEvent(ctx, ev)
	}
	wg.Wait()

	// Final flush outlives the cancelled context.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)
	log.Println("PresenceService: Shutdown complete")
}

// tickLoop sweeps on a fixed cadence regardless of traffic and flushes
// pending records periodically
func (s *PresenceService) tickLoop(ctx context.Context) {
	sweep := s.clock.NewTicker(s.sweepInterval)
	defer sweep.Stop()
	flush := s.clock.NewTicker(s.flushInterval)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C():
			s.Sweep()
		case <-flush.C():
			s.flush(ctx)
		}
	}
}

// processEvent handles a single canonical event
func (s *PresenceService) processEvent(ctx context.Context, ev models.CanonicalEvent) {
	rec, _ := s.tracker.Record(ev)
	s.applied.Add(1)
	if s.session != nil {
		s.session.Record(rec)
	}

	if s.minRSSI != nil && ev.RSSI < *s.minRSSI {
		s.filtered.Add(1)
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, rec)
	full := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if full {
		s.flush(ctx)
	}
}

// Sweep evicts silent devices
func (s *PresenceService) Sweep() {
	s.evicted.Add(uint64(len(s.tracker.Sweep())))
}

// flush writes pending records to the store
func (s *PresenceService) flush(ctx context.Context) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 || s.store == nil {
		return
	}
	if err := s.store.SaveEvents(ctx, batch); err != nil {
		s.persistErrors.Add(1)
		log.Printf("PresenceService: Error saving %d event(s): %v", len(batch), err)
		return
	}
	s.persisted.Add(uint64(len(batch)))
}

// Stats returns the presence counters
func (s *PresenceService) Stats() PresenceStats {
	return PresenceStats{
		Present:       s.tracker.Count(),
		Applied:       s.applied.Load(),
		Filtered:      s.filtered.Load(),
		Persisted:     s.persisted.Load(),
		PersistErrors: s.persistErrors.Load(),
		Evicted:       s.evicted.Load(),
	}
}
