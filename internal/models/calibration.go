package models

import "time"

// Coords is a spatial sampling position in meters
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ChannelStats summarises the RSSI samples of one (scanner, channel) bucket
type ChannelStats struct {
	Count        int     `json:"count"`
	Mean         float64 `json:"mean"`    // dBm
	StdDev       float64 `json:"std_dev"` // dB
	Min          int     `json:"min"`
	Max          int     `json:"max"`
	MeanPowerDBm float64 `json:"mean_power_dbm"` // Mean in the linear power domain
}

// CalibrationRecord is the finalized result for one scanner at one coordinate
type CalibrationRecord struct {
	Timestamp time.Time            `json:"timestamp"`
	Coords    Coords               `json:"coords"`
	Scanner   string               `json:"scanner"`
	TargetMAC string               `json:"target_mac"`
	Channels  map[int]ChannelStats `json:"channels"`
}

// CalibrationStatus is a read-only view of the sampler
type CalibrationStatus struct {
	Active    bool                   `json:"active"`
	TargetMAC string                 `json:"target_mac,omitempty"`
	Coords    Coords                 `json:"coords"`
	Quota     int                    `json:"quota"`
	Progress  map[string]map[int]int `json:"progress"` // scanner -> channel -> samples
	StartedAt *time.Time             `json:"started_at,omitempty"`
	Last      []CalibrationRecord    `json:"last_result,omitempty"`
}
