package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// Client manages the broker connection for the backend. Subscriber and
// Publisher share its native client.
type Client struct {
	client mqtt.Client
	config ClientConfig

	mu      sync.Mutex
	onReady []func()
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string // Random "ble-backend-<uuid>" when empty
	Username string
	Password string

	// StatusTopic receives a retained "online" on connect and "offline" as
	// the last will. Empty disables it.
	StatusTopic    string
	ConnectTimeout time.Duration
}

// NewClient connects to the broker. Handlers registered with OnReady run
// after every (re)connect, so subscriptions survive broker restarts.
func NewClient(config ClientConfig) (*Client, error) {
	if config.ClientID == "" {
		config.ClientID = "ble-backend-" + uuid.NewString()[:8]
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	c := &Client{config: config}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetDefaultPublishHandler(unroutedHandler)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(connectLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOrderMatters(false)
	if config.StatusTopic != "" {
		opts.SetWill(config.StatusTopic, statusOffline, 1, true)
	}

	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(config.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", config.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	log.Printf("MQTT Client: Connected to broker %s as %s", config.Broker, config.ClientID)
	return c, nil
}

// OnReady registers fn to run after each successful connect.
func (c *Client) OnReady(fn func()) {
	c.mu.Lock()
	c.onReady = append(c.onReady, fn)
	c.mu.Unlock()
}

func (c *Client) handleConnect(client mqtt.Client) {
	log.Println("MQTT Client: Connection established")

	if c.config.StatusTopic != "" {
		client.Publish(c.config.StatusTopic, 1, true, statusOnline)
	}

	c.mu.Lock()
	hooks := append([]func(){}, c.onReady...)
	c.mu.Unlock()
	for _, fn := range hooks {
		go fn()
	}
}

// GetNativeClient returns the underlying paho MQTT client
// This is used by Subscriber and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close publishes the offline status and disconnects
func (c *Client) Close() {
	if c.config.StatusTopic != "" && c.client.IsConnected() {
		c.client.Publish(c.config.StatusTopic, 1, true, statusOffline).WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
	log.Println("MQTT Client: Disconnected")
}

var unroutedHandler mqtt.MessageHandler = func(client mqtt.Client, msg mqtt.Message) {
	log.Printf("MQTT: Unrouted message on topic: %s", msg.Topic())
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	log.Printf("MQTT Client: Connection lost: %v", err)
}
