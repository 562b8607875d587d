package models

import "time"

// CanonicalEvent is one normalized advertisement observation from a scanning station
type CanonicalEvent struct {
	MAC          string    `json:"mac"`     // Uppercase, colon separated
	RSSI         int       `json:"rssi"`    // dBm
	Channel      int       `json:"channel"` // 37/38/39, 0 = unknown
	Scanner      string    `json:"scanner"` // Station identifier
	TsEpochUs    uint64    `json:"timestamp_epoch_us"`
	TsMonoUs     uint64    `json:"timestamp_mono_us"` // Station-local monotonic clock
	Name         string    `json:"name"`
	MfgID        uint16    `json:"mfg_id"`
	MfgDataHex   string    `json:"mfg_data"`
	TxPower      int       `json:"txpwr"`
	AdvLen       int       `json:"adv_len"`
	NServices16  int       `json:"n_services_16"`
	NServices128 int       `json:"n_services_128"`
	HasServices  bool      `json:"has_services"`
	PacketHash   string    `json:"packet_hash"` // 8 uppercase hex chars or empty
	ReceivedAt   time.Time `json:"received_at"` // Server receive time
}

// RawBatch is an ingestion request as it arrived from a station, before normalization
type RawBatch struct {
	ScannerID  string           `json:"scanner_id"`
	RemoteAddr string           `json:"remote_addr"` // Last-known network address of the station
	Source     string           `json:"source"`      // "http" or "mqtt"
	ReceivedAt time.Time        `json:"received_at"`
	Events     []map[string]any `json:"events"`
}

// EventRecord is an accepted event as written to the durable event log
type EventRecord struct {
	Event         CanonicalEvent `json:"event"`
	AdvIntervalMs *float64       `json:"adv_int_ms,omitempty"`
	Manufacturer  string         `json:"mfg"` // Resolved manufacturer name
}
