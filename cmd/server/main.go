package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/aggregator"
	"github.com/EldarSaltoun/BLE-Security-System/internal/api"
	"github.com/EldarSaltoun/BLE-Security-System/internal/database"
	"github.com/EldarSaltoun/BLE-Security-System/internal/httputil"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/mqtt"
	"github.com/EldarSaltoun/BLE-Security-System/internal/queue"
	"github.com/EldarSaltoun/BLE-Security-System/internal/services"
	"github.com/EldarSaltoun/BLE-Security-System/internal/stations"
	"github.com/EldarSaltoun/BLE-Security-System/internal/timeutil"
	"github.com/EldarSaltoun/BLE-Security-System/internal/vendors"
	"github.com/EldarSaltoun/BLE-Security-System/pkg/config"
)

func main() {
	log.Println("Starting BLE grid backend...")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}

	// === Reference data and storage ===
	dir, err := vendors.Load(cfg.MfgDB)
	if err != nil {
		log.Fatalf("Failed to load manufacturer table: %v", err)
	}
	log.Printf("Loaded %d manufacturer ids from %s", dir.Len(), cfg.MfgDB)

	store, err := database.Open(cfg.StoreBackends, database.Options{
		CSVEventLog:       cfg.CSVEventLog,
		CSVCalibrationLog: cfg.CSVCalibrationLog,
		SQLitePath:        cfg.SQLitePath,
		ClickHouseAddr:    cfg.ClickHouseAddr,
		ClickHouseDB:      cfg.ClickHouseDB,
		ClickHouseUser:    cfg.ClickHouseUser,
		ClickHousePass:    cfg.ClickHousePass,
	})
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer store.Close()

	// === Shared state ===
	registry := stations.NewRegistry(cfg.StationWindow, clock)
	tracker := aggregator.NewPresenceTracker(cfg.PresenceWindow, clock, dir)
	session := aggregator.NewSessionRecorder(cfg.SessionMaxEvents, clock)
	sampler := aggregator.NewCalibrationSampler(cfg.CalibrationTargetName, registry, clock)

	// === Queues ===
	// Raw batches (HTTP/MQTT → IngestService), canonical events fanned out to consumers
	ingest := queue.New[models.RawBatch](cfg.IngestQueueCapacity)
	hub := queue.NewHub[models.CanonicalEvent]()
	_, presenceEvents := hub.Subscribe("presence", cfg.QueueCapacity)
	_, calibrationEvents := hub.Subscribe("calibration", cfg.QueueCapacity)

	var calibrationOut chan []models.CalibrationRecord

	// === MQTT (optional) ===
	var (
		mqttClient *mqtt.Client
		subscriber *mqtt.Subscriber
		publisher  *mqtt.Publisher
	)
	if cfg.MQTTEnabled {
		log.Println("Connecting to MQTT broker...")
		mqttClient, err = mqtt.NewClient(mqtt.ClientConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			StatusTopic: cfg.MQTTTopicStatus,
		})
		if err != nil {
			log.Fatalf("Failed to initialize MQTT client: %v", err)
		}
		defer mqttClient.Close()

		subscriber = mqtt.NewSubscriber(mqttClient.GetNativeClient(), mqtt.SubscriberConfig{
			IngestTopic: cfg.MQTTTopicIngest,
		}, ingest)
		if err := subscriber.SubscribeAll(); err != nil {
			log.Fatalf("Failed to subscribe to MQTT topics: %v", err)
		}
		defer subscriber.Unsubscribe()
		// Subscriptions do not survive a clean-session reconnect.
		mqttClient.OnReady(func() {
			if err := subscriber.SubscribeAll(); err != nil {
				log.Printf("MQTT Subscriber: resubscribe failed: %v", err)
			}
		})

		calibrationOut = make(chan []models.CalibrationRecord, 16)
		publisher = mqtt.NewPublisher(mqttClient.GetNativeClient(), mqtt.PublisherConfig{
			CalibrationTopic: cfg.MQTTTopicCalibration,
			CommandTopic:     cfg.MQTTTopicCommand,
		}, calibrationOut)
	}

	// === Station commands ===
	var transport stations.Transport = stations.NewHTTPTransport(httputil.NewStationClient(cfg.CommandTimeout))
	if cfg.CommandTransport == "mqtt" {
		transport = publisher
	}
	commander := stations.NewCommander(registry, transport, cfg.CommandTimeout)

	// === Services ===
	ingestService := services.NewIngestService(ingest, hub, registry, cfg.StatsInterval)
	presenceService := services.NewPresenceService(presenceEvents, tracker, session, store, clock,
		services.PresenceServiceConfig{
			MinRSSI:       cfg.MinRSSI,
			BatchSize:     cfg.PersistBatchSize,
			SweepInterval: cfg.SweepInterval,
			FlushInterval: cfg.PersistFlushInterval,
		})
	calibrationService := services.NewCalibrationService(calibrationEvents, sampler, store, calibrationOut)

	var wg sync.WaitGroup
	run := func(start func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx)
		}()
	}
	run(ingestService.Start)
	run(presenceService.Start)
	run(calibrationService.Start)
	if publisher != nil {
		run(publisher.Start)
	}

	// === HTTP API ===
	server := api.NewServer(api.Deps{
		Ingest:    ingest,
		Hub:       hub,
		Tracker:   tracker,
		Session:   session,
		Registry:  registry,
		Commander: commander,
		Sampler:   sampler,
	})
	server.StatsFunc = func() map[string]any {
		out := map[string]any{
			"ingest":                 ingestService.Stats(),
			"presence":               presenceService.Stats(),
			"calibrations_completed": calibrationService.Completed(),
		}
		if subscriber != nil {
			received, rejected := subscriber.Stats()
			out["mqtt"] = map[string]any{
				"connected": mqttClient.IsConnected(),
				"received":  received,
				"rejected":  rejected,
			}
		}
		return out
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPListen,
		Handler: api.LoggingMiddleware(server.ServeMux()),

		// Live streams end with the process context instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Printf("HTTP API listening on %s", cfg.HTTPListen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	log.Println("=== BLE grid backend is running ===")
	log.Printf("Presence window: %v, sweep every %v", cfg.PresenceWindow, cfg.SweepInterval)
	log.Printf("Stores: %v", cfg.StoreBackends)
	if cfg.MQTTEnabled {
		log.Printf("MQTT Topics:")
		log.Printf("  - Ingest:      %s", cfg.MQTTTopicIngest)
		log.Printf("  - Command:     %s", cfg.MQTTTopicCommand)
		log.Printf("  - Calibration: %s", cfg.MQTTTopicCalibration)
	}
	log.Println("Press Ctrl+C to exit...")

	<-ctx.Done()

	// === Graceful shutdown ===
	log.Println("Shutdown signal received, stopping services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}

	ingest.Close()
	hub.Close()
	wg.Wait()

	writeSession(cfg, session, clock.Now())
	log.Println("Shutdown complete. Goodbye!")
}

// writeSession saves the end-of-session document to SESSION_OUT or a
// timestamped default path.
func writeSession(cfg *config.Config, session *aggregator.SessionRecorder, now time.Time) {
	path := cfg.SessionOut
	if path == "" {
		path = fmt.Sprintf("ble_session_%s.json", now.Format("20060102_150405"))
	}

	summary := session.Summary(map[string]any{
		"presence_window_s": cfg.PresenceWindow.Seconds(),
		"store_backends":    cfg.StoreBackends,
		"min_rssi":          cfg.MinRSSI,
	})
	if err := database.WriteSessionJSON(path, summary); err != nil {
		log.Printf("Failed to write session summary: %v", err)
		return
	}
	log.Printf("Session summary written to %s (%d events, %d devices)",
		path, summary.Counts.TotalEvents, summary.Counts.UniqueDevices)
}
