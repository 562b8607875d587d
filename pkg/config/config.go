package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP
	HTTPListen string

	// Pipeline
	QueueCapacity       int
	IngestQueueCapacity int
	PresenceWindow      time.Duration
	SweepInterval       time.Duration
	StationWindow       time.Duration
	StatsInterval       time.Duration

	// Calibration
	CalibrationTargetName string

	// Persistence filter, nil disables it
	MinRSSI *int

	// Manufacturer id table
	MfgDB string

	// Storage
	StoreBackends        []string
	CSVEventLog          string
	CSVCalibrationLog    string
	SQLitePath           string
	ClickHouseAddr       string
	ClickHouseDB         string
	ClickHouseUser       string
	ClickHousePass       string
	PersistBatchSize     int
	PersistFlushInterval time.Duration

	// Session summary
	SessionOut       string
	SessionMaxEvents int

	// MQTT Configuration
	MQTTEnabled          bool
	MQTTBroker           string
	MQTTClientID         string
	MQTTUsername         string
	MQTTPassword         string
	MQTTTopicIngest      string
	MQTTTopicCommand     string
	MQTTTopicCalibration string
	MQTTTopicStatus      string

	// Station commands
	CommandTransport string
	CommandTimeout   time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		HTTPListen: getEnv("HTTP_LISTEN", ":8000"),

		QueueCapacity:       getEnvInt("QUEUE_CAPACITY", 10000),
		IngestQueueCapacity: getEnvInt("INGEST_QUEUE_CAPACITY", 1024),
		PresenceWindow:      getEnvDuration("PRESENCE_WINDOW", 5*time.Second),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", 300*time.Millisecond),
		StationWindow:       getEnvDuration("STATION_WINDOW", 30*time.Second),
		StatsInterval:       getEnvDuration("STATS_INTERVAL", 10*time.Second),

		CalibrationTargetName: getEnv("CALIBRATION_TARGET_NAME", "CALIB"),
		MinRSSI:               getEnvOptionalInt("MIN_RSSI"),
		MfgDB:                 getEnv("MFG_DB", "mfg_ids.csv"),

		StoreBackends:        getEnvList("STORE_BACKENDS", []string{"csv"}),
		CSVEventLog:          getEnv("CSV_EVENT_LOG", "ble_log.csv"),
		CSVCalibrationLog:    getEnv("CSV_CALIBRATION_LOG", "calibration_log.csv"),
		SQLitePath:           getEnv("SQLITE_PATH", "ble_data.db"),
		ClickHouseAddr:       getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:         getEnv("CLICKHOUSE_DB", "ble"),
		ClickHouseUser:       getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:       getEnv("CLICKHOUSE_PASS", ""),
		PersistBatchSize:     getEnvInt("PERSIST_BATCH_SIZE", 50),
		PersistFlushInterval: getEnvDuration("PERSIST_FLUSH_INTERVAL", time.Second),

		SessionOut:       getEnv("SESSION_OUT", ""),
		SessionMaxEvents: getEnvInt("SESSION_MAX_EVENTS", 100000),

		MQTTEnabled:          getEnvBool("MQTT_ENABLED", false),
		MQTTBroker:           getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:         getEnv("MQTT_CLIENT_ID", ""),
		MQTTUsername:         getEnv("MQTT_USERNAME", ""),
		MQTTPassword:         getEnv("MQTT_PASSWORD", ""),
		MQTTTopicIngest:      getEnv("MQTT_TOPIC_INGEST", "ble/+/adv"),
		MQTTTopicCommand:     getEnv("MQTT_TOPIC_COMMAND", "ble/{scanner_id}/cmd"),
		MQTTTopicCalibration: getEnv("MQTT_TOPIC_CALIBRATION", "ble/calibration/{scanner_id}"),
		MQTTTopicStatus:      getEnv("MQTT_TOPIC_STATUS", "ble/backend/status"),

		CommandTransport: strings.ToLower(getEnv("COMMAND_TRANSPORT", "http")),
		CommandTimeout:   getEnvDuration("COMMAND_TIMEOUT", 2*time.Second),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"QUEUE_CAPACITY":        c.QueueCapacity,
		"INGEST_QUEUE_CAPACITY": c.IngestQueueCapacity,
		"PERSIST_BATCH_SIZE":    c.PersistBatchSize,
		"SESSION_MAX_EVENTS":    c.SessionMaxEvents,
	}
	for key, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, v))
		}
	}
	durations := map[string]time.Duration{
		"PRESENCE_WINDOW":        c.PresenceWindow,
		"SWEEP_INTERVAL":         c.SweepInterval,
		"STATION_WINDOW":         c.StationWindow,
		"PERSIST_FLUSH_INTERVAL": c.PersistFlushInterval,
		"COMMAND_TIMEOUT":        c.CommandTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}

	for _, b := range c.StoreBackends {
		switch strings.ToLower(b) {
		case "csv", "sqlite", "clickhouse":
		default:
			errs = append(errs, fmt.Errorf("STORE_BACKENDS: unknown backend %q", b))
		}
	}

	switch c.CommandTransport {
	case "http":
	case "mqtt":
		if !c.MQTTEnabled {
			errs = append(errs, errors.New("COMMAND_TRANSPORT=mqtt requires MQTT_ENABLED=true"))
		}
	default:
		errs = append(errs, fmt.Errorf("COMMAND_TRANSPORT must be http or mqtt, got %q", c.CommandTransport))
	}

	if c.MQTTEnabled && c.MQTTBroker == "" {
		errs = append(errs, errors.New("MQTT_BROKER is required when MQTT_ENABLED=true"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

// getEnvOptionalInt returns nil when the key is unset or unparsable.
func getEnvOptionalInt(key string) *int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, ignoring: %v", key, err)
		return nil
	}
	return &intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}

// getEnvDuration accepts Go durations ("300ms") or plain seconds ("1.5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	seconds := getEnvFloat(key, -1)
	if seconds < 0 {
		return defaultValue
	}
	return time.Duration(seconds * float64(time.Second))
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
