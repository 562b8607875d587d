package services

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/normalize"
	"github.com/EldarSaltoun/BLE-Security-System/internal/queue"
	"github.com/EldarSaltoun/BLE-Security-System/internal/stations"
)

// IngestService turns raw station batches into canonical events and fans
// them out to every hub subscriber
type IngestService struct {
	ingest   *queue.Queue[models.RawBatch]
	hub      *queue.Hub[models.CanonicalEvent]
	registry *stations.Registry

	statsInterval time.Duration

	batches   atomic.Uint64
	events    atomic.Uint64
	rejected  atomic.Uint64
	delivered atomic.Uint64
}

// IngestStats is a snapshot of the ingest counters
type IngestStats struct {
	Batches   uint64      `json:"batches"`
	Events    uint64      `json:"events"`
	Rejected  uint64      `json:"rejected"`
	Delivered uint64      `json:"delivered"`
	Queue     queue.Stats `json:"queue"`
}

// NewIngestService creates a new ingest service. A zero statsInterval
// disables the periodic stats log.
func NewIngestService(
	ingest *queue.Queue[models.RawBatch],
	hub *queue.Hub[models.CanonicalEvent],
	registry *stations.Registry,
	statsInterval time.Duration,
) *IngestService {
	return &IngestService{
		ingest:        ingest,
		hub:           hub,
		registry:      registry,
		statsInterval: statsInterval,
	}
}

// Start drains the ingest queue until the context is cancelled or the
// queue is closed
func (s *IngestService) Start(ctx context.Context) {
	log.Println("IngestService: Starting...")

	if s.statsInterval > 0 {
		go s.reportLoop(ctx)
	}

	for {
		batch, err := s.ingest.Dequeue(ctx)
		if err != nil {
			log.Printf("IngestService: Stopping (%v)", err)
			return
		}
		s.processBatch(batch)
	}
}

// processBatch normalizes one batch and publishes its events
func (s *IngestService) processBatch(batch models.RawBatch) {
	s.batches.Add(1)

	if batch.ScannerID != normalize.UnknownScanner {
		s.registry.Touch(batch.ScannerID, batch.RemoteAddr)
	}

	events, rejected := normalize.NormalizeBatch(batch)
	s.rejected.Add(uint64(rejected))
	if rejected > 0 {
		log.Printf("IngestService: Rejected %d record(s) from scanner %s", rejected, batch.ScannerID)
	}

	for _, ev := range events {
		// Events may name a different station than the batch envelope.
		if ev.Scanner != batch.ScannerID && ev.Scanner != normalize.UnknownScanner {
			s.registry.Touch(ev.Scanner, "")
		}
		s.events.Add(1)
		s.delivered.Add(uint64(s.hub.Publish(ev)))
	}
}

// Stats returns the ingest counters
func (s *IngestService) Stats() IngestStats {
	return IngestStats{
		Batches:   s.batches.Load(),
		Events:    s.events.Load(),
		Rejected:  s.rejected.Load(),
		Delivered: s.delivered.Load(),
		Queue:     s.ingest.Stats(),
	}
}

// reportLoop periodically logs throughput and queue drops
func (s *IngestService) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	var lastEvents uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.Stats()
			if st.Events == lastEvents && st.Queue.Dropped == 0 {
				continue
			}
			lastEvents = st.Events
			log.Printf("IngestService: batches=%d events=%d rejected=%d ingest_dropped=%d",
				st.Batches, st.Events, st.Rejected, st.Queue.Dropped)
			for _, sub := range s.hub.Stats() {
				if sub.Dropped > 0 {
					log.Printf("IngestService: subscriber %s (%s) dropped=%d len=%d/%d",
						sub.Name, sub.ID[:8], sub.Dropped, sub.Length, sub.Capacity)
				}
			}
		}
	}
}
