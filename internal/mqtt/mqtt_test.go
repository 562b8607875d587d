package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/queue"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error, completed bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if completed {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient records publishes. Methods not overridden panic through the
// nil embedded interface.
type fakeClient struct {
	mqtt.Client
	mu        sync.Mutex
	published []published
	token     *fakeToken
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	c.published = append(c.published, published{topic: topic, retained: retained, payload: b})
	if c.token != nil {
		return c.token
	}
	return newFakeToken(nil, true)
}

func (c *fakeClient) Published() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

func TestWildcardValue(t *testing.T) {
	assert.Equal(t, "3", wildcardValue("ble/+/adv", "ble/3/adv"))
	assert.Equal(t, "scanner-a", wildcardValue("site/+/ble/+", "site/scanner-a/ble/x"))
	assert.Equal(t, "", wildcardValue("ble/adv", "ble/adv"))
	assert.Equal(t, "", wildcardValue("ble/+/adv", "ble"))
}

func TestFormatTopic(t *testing.T) {
	assert.Equal(t, "ble/calibration/2", formatTopic("ble/calibration/{scanner_id}", "2"))
	assert.Equal(t, "ble/7/cmd", formatTopic("ble/{scanner_id}/cmd", "7"))
}

func TestSubscriber_HandleIngest(t *testing.T) {
	ingest := queue.New[models.RawBatch](1)
	sub := NewSubscriber(nil, SubscriberConfig{IngestTopic: "ble/+/adv"}, ingest)

	sub.handleIngest(nil, fakeMessage{
		topic:   "ble/4/adv",
		payload: []byte(`{"events":[{"a":"AA:BB:CC:DD:EE:01","r":-70}]}`),
	})
	require.Equal(t, 1, ingest.Len())

	batch, err := ingest.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4", batch.ScannerID)
	assert.Equal(t, "mqtt", batch.Source)
	assert.Len(t, batch.Events, 1)
	assert.False(t, batch.ReceivedAt.IsZero())

	sub.handleIngest(nil, fakeMessage{topic: "ble/4/adv", payload: []byte(`not json`)})
	received, rejected := sub.Stats()
	assert.Equal(t, uint64(2), received)
	assert.Equal(t, uint64(1), rejected)
}

func TestSubscriber_PayloadScannerWinsAndDropsWhenFull(t *testing.T) {
	ingest := queue.New[models.RawBatch](1)
	sub := NewSubscriber(nil, SubscriberConfig{IngestTopic: "ble/+/adv"}, ingest)

	msg := fakeMessage{topic: "ble/4/adv", payload: []byte(`{"scanner_id":"9","events":[]}`)}
	sub.handleIngest(nil, msg)
	sub.handleIngest(nil, msg)

	assert.Equal(t, uint64(1), ingest.Stats().Dropped)
	batch, err := ingest.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9", batch.ScannerID)
}

func TestPublisher_PublishesCalibrationPerScanner(t *testing.T) {
	client := &fakeClient{}
	ch := make(chan []models.CalibrationRecord, 1)
	pub := NewPublisher(client, PublisherConfig{CalibrationTopic: "ble/calibration/{scanner_id}"}, ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pub.Start(ctx)
		close(done)
	}()

	ch <- []models.CalibrationRecord{{Scanner: "1"}, {Scanner: "2", TargetMAC: "AA"}}
	require.Eventually(t, func() bool { return len(client.Published()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	msgs := client.Published()
	assert.Equal(t, "ble/calibration/1", msgs[0].topic)
	assert.True(t, msgs[0].retained)
	var rec models.CalibrationRecord
	require.NoError(t, json.Unmarshal(msgs[1].payload, &rec))
	assert.Equal(t, "AA", rec.TargetMAC)
}

func TestPublisher_StopsWhenChannelClosed(t *testing.T) {
	ch := make(chan []models.CalibrationRecord)
	pub := NewPublisher(&fakeClient{}, PublisherConfig{}, ch)
	close(ch)

	done := make(chan struct{})
	go func() {
		pub.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

func TestPublisher_SendCommand(t *testing.T) {
	client := &fakeClient{}
	pub := NewPublisher(client, PublisherConfig{CommandTopic: "ble/{scanner_id}/cmd"}, nil)

	state := 1
	err := pub.SendCommand(context.Background(), models.StationInfo{ID: "3"}, models.StationCommand{State: &state})
	require.NoError(t, err)

	msgs := client.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ble/3/cmd", msgs[0].topic)
	assert.JSONEq(t, `{"state":1}`, string(msgs[0].payload))

	client.token = newFakeToken(errors.New("not connected"), true)
	err = pub.SendCommand(context.Background(), models.StationInfo{ID: "3"}, models.StationCommand{State: &state})
	assert.EqualError(t, err, "not connected")
}

func TestPublisher_SendCommandHonoursContext(t *testing.T) {
	client := &fakeClient{token: newFakeToken(nil, false)}
	pub := NewPublisher(client, PublisherConfig{CommandTopic: "ble/{scanner_id}/cmd"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	mode := 37
	err := pub.SendCommand(ctx, models.StationInfo{ID: "1"}, models.StationCommand{Mode: &mode})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_HandleConnectPublishesStatusAndRunsHooks(t *testing.T) {
	fake := &fakeClient{}
	c := &Client{client: fake, config: ClientConfig{StatusTopic: "ble/backend/status"}}

	ran := make(chan struct{}, 2)
	c.OnReady(func() { ran <- struct{}{} })
	c.OnReady(func() { ran <- struct{}{} })

	c.handleConnect(fake)

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(time.Second):
			t.Fatal("OnReady hook did not run")
		}
	}

	pubs := fake.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "ble/backend/status", pubs[0].topic)
	assert.True(t, pubs[0].retained)
	assert.Equal(t, "online", string(pubs[0].payload))
}

func TestClient_HandleConnectWithoutStatusTopic(t *testing.T) {
	fake := &fakeClient{}
	c := &Client{client: fake}
	c.handleConnect(fake)
	assert.Empty(t, fake.Published())
}
