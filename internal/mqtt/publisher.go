package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// Publisher publishes calibration results and station commands
type Publisher struct {
	client mqtt.Client

	// Input channel (read by publisher, written by the calibration service)
	CalibrationChan chan []models.CalibrationRecord

	// Topic patterns
	calibrationTopic string // e.g., "ble/calibration/{scanner_id}"
	commandTopic     string // e.g., "ble/{scanner_id}/cmd"
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	CalibrationTopic string
	CommandTopic     string
}

// NewPublisher creates a new MQTT publisher reading from calibrationChan
func NewPublisher(client mqtt.Client, config PublisherConfig, calibrationChan chan []models.CalibrationRecord) *Publisher {
	return &Publisher{
		client:           client,
		CalibrationChan:  calibrationChan,
		calibrationTopic: config.CalibrationTopic,
		commandTopic:     config.CommandTopic,
	}
}

// Start publishes calibration results from the channel
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	log.Println("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT Publisher: Context cancelled, shutting down...")
			return

		case records, ok := <-p.CalibrationChan:
			if !ok {
				log.Println("MQTT Publisher: Calibration channel closed, shutting down...")
				return
			}
			for _, rec := range records {
				if err := p.publishCalibration(ctx, rec); err != nil {
					log.Printf("MQTT Publisher: %v", err)
				}
			}
		}
	}
}

// publishCalibration publishes one finalized record to the scanner's topic
func (p *Publisher) publishCalibration(ctx context.Context, rec models.CalibrationRecord) error {
	if p.calibrationTopic == "" {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal calibration record: %w", err)
	}
	topic := formatTopic(p.calibrationTopic, rec.Scanner)
	if err := p.publish(ctx, topic, 1, true, payload); err != nil {
		return fmt.Errorf("failed to publish calibration for scanner %s: %w", rec.Scanner, err)
	}
	log.Printf("MQTT Publisher: Published calibration for scanner %s to %s", rec.Scanner, topic)
	return nil
}

// SendCommand publishes a station command; it implements stations.Transport
func (p *Publisher) SendCommand(ctx context.Context, station models.StationInfo, cmd models.StationCommand) error {
	if p.commandTopic == "" {
		return fmt.Errorf("no command topic configured")
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	return p.publish(ctx, formatTopic(p.commandTopic, station.ID), 1, false, payload)
}

// publish waits for the broker acknowledgement or ctx, whichever is first
func (p *Publisher) publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// formatTopic replaces the {scanner_id} placeholder
func formatTopic(topicPattern, scannerID string) string {
	return strings.ReplaceAll(topicPattern, "{scanner_id}", scannerID)
}
