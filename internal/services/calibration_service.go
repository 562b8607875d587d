package services

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/EldarSaltoun/BLE-Security-System/internal/aggregator"
	"github.com/EldarSaltoun/BLE-Security-System/internal/database"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/queue"
)

// CalibrationService feeds canonical events to the calibration sampler and
// persists and forwards every finalized cycle
type CalibrationService struct {
	events  *queue.Queue[models.CanonicalEvent]
	sampler *aggregator.CalibrationSampler
	store   database.Store

	// Output channel for finalized records (read by the MQTT publisher), may be nil
	ResultChan chan []models.CalibrationRecord

	completed    atomic.Uint64
	forwardDrops atomic.Uint64
}

// NewCalibrationService creates a new calibration service
func NewCalibrationService(
	events *queue.Queue[models.CanonicalEvent],
	sampler *aggregator.CalibrationSampler,
	store database.Store,
	resultChan chan []models.CalibrationRecord,
) *CalibrationService {
	return &CalibrationService{
		events:     events,
		sampler:    sampler,
		store:      store,
		ResultChan: resultChan,
	}
}

// Start consumes events until the context is cancelled or the queue closes
func (s *CalibrationService) Start(ctx context.Context) {
	log.Println("CalibrationService: Starting...")
	for {
		ev, err := s.events.Dequeue(ctx)
		if err != nil {
			log.Printf("CalibrationService: Stopping (%v)", err)
			return
		}
		if records := s.sampler.Observe(ev); records != nil {
			s.complete(ctx, records)
		}
	}
}

// complete persists and forwards one finalized cycle
func (s *CalibrationService) complete(ctx context.Context, records []models.CalibrationRecord) {
	s.completed.Add(1)

	if s.store != nil {
		if err := s.store.SaveCalibration(ctx, records); err != nil {
			log.Printf("CalibrationService: Error saving calibration: %v", err)
		}
	}

	if s.ResultChan == nil {
		return
	}
	select {
	case s.ResultChan <- records:
	default:
		s.forwardDrops.Add(1)
		log.Println("CalibrationService: Warning - result channel full, not forwarding")
	}
}

// Completed returns the number of finalized cycles
func (s *CalibrationService) Completed() uint64 {
	return s.completed.Load()
}
