package mqtt

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/normalize"
	"github.com/EldarSaltoun/BLE-Security-System/internal/queue"
)

// Subscriber receives station batches over MQTT and hands them to the
// ingest queue without blocking the paho callback.
type Subscriber struct {
	client mqtt.Client
	ingest *queue.Queue[models.RawBatch]

	ingestTopic string // e.g., "ble/+/adv"

	received atomic.Uint64
	rejected atomic.Uint64
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	IngestTopic string // e.g., "ble/+/adv"; the "+" level is the scanner id
}

// NewSubscriber creates a new MQTT subscriber feeding ingest
func NewSubscriber(client mqtt.Client, config SubscriberConfig, ingest *queue.Queue[models.RawBatch]) *Subscriber {
	return &Subscriber{
		client:      client,
		ingest:      ingest,
		ingestTopic: config.IngestTopic,
	}
}

// SubscribeAll subscribes to the configured topics
func (s *Subscriber) SubscribeAll() error {
	if s.ingestTopic == "" {
		return nil
	}
	token := s.client.Subscribe(s.ingestTopic, 0, s.handleIngest)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to ingest topic: %w", token.Error())
	}
	log.Printf("MQTT Subscriber: Subscribed to ingest topic: %s", s.ingestTopic)
	return nil
}

// Unsubscribe removes the ingest subscription
func (s *Subscriber) Unsubscribe() {
	if s.ingestTopic == "" {
		return
	}
	token := s.client.Unsubscribe(s.ingestTopic)
	token.WaitTimeout(time.Second)
}

// handleIngest decodes one batch message and enqueues it
func (s *Subscriber) handleIngest(_ mqtt.Client, msg mqtt.Message) {
	s.received.Add(1)

	scannerID := wildcardValue(s.ingestTopic, msg.Topic())
	if scannerID == "" {
		scannerID = normalize.UnknownScanner
	}

	batch, err := normalize.DecodeBatch(msg.Payload(), scannerID)
	if err != nil {
		s.rejected.Add(1)
		log.Printf("MQTT Subscriber: Rejected message on %s: %v", msg.Topic(), err)
		return
	}
	batch.Source = "mqtt"

	// Drops are counted by the queue.
	s.ingest.Enqueue(batch)
}

// Stats returns message counters
func (s *Subscriber) Stats() (received, rejected uint64) {
	return s.received.Load(), s.rejected.Load()
}

// wildcardValue returns the topic level matched by the first "+" of pattern.
// Example: ("ble/+/adv", "ble/3/adv") -> "3"
func wildcardValue(pattern, topic string) string {
	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")
	for i, p := range patternParts {
		if p == "+" && i < len(topicParts) {
			return topicParts[i]
		}
	}
	return ""
}
