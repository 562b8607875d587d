package models

import "time"

// DeviceState holds the current presence state of one advertising device
type DeviceState struct {
	Last          CanonicalEvent
	LastSeen      time.Time // Server monotonic reading of the last accepted event
	AdvIntervalMs *float64  // Nil until a plausible interval has been observed
}

// DeviceSnapshot is a display row for a device currently present
type DeviceSnapshot struct {
	MAC           string    `json:"mac"`
	Name          string    `json:"name"`
	RSSI          int       `json:"rssi"`
	Channel       int       `json:"channel"`
	TxPower       int       `json:"txpwr"`
	Manufacturer  string    `json:"mfg"`
	AdvLen        int       `json:"adv_len"`
	AdvIntervalMs *float64  `json:"adv_int_ms"`
	HasServices   bool      `json:"has_services"`
	NServices16   int       `json:"n_services_16"`
	NServices128  int       `json:"n_services_128"`
	MfgDataHex    string    `json:"mfg_data"`
	PacketHash    string    `json:"packet_hash"`
	Scanner       string    `json:"scanner"`
	LastSeen      time.Time `json:"last_seen"`
}

// SessionSummary is the end-of-session document listing every device seen
type SessionSummary struct {
	Meta        map[string]any `json:"meta"`
	Counts      SessionCounts  `json:"counts"`
	DevicesSeen []DeviceSeen   `json:"devices_seen"`
	Events      []EventRecord  `json:"events"`
}

// SessionCounts summarises a session
type SessionCounts struct {
	TotalEvents   int `json:"total_events"`
	StoredEvents  int `json:"stored_events"`
	UniqueDevices int `json:"unique_devices"`
}

// DeviceSeen records when a device was first and last observed in a session
type DeviceSeen struct {
	MAC       string    `json:"mac"`
	FirstSeen time.Time `json:"first_seen_local"`
	LastSeen  time.Time `json:"last_seen_local"`
}
