package models

import "time"

// StationInfo is the directory entry for a scanning station
type StationInfo struct {
	ID       string    `json:"-"`
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
}

// StationCommand changes a station's scan state and/or channel mode
type StationCommand struct {
	State *int `json:"state,omitempty"` // 0 = idle, 1 = active
	Mode  *int `json:"mode,omitempty"`  // 0 = auto rotate, 37/38/39 = fixed channel
}

// CommandResult reports delivery of a command to one station
type CommandResult struct {
	Target  string `json:"target"`
	Address string `json:"address,omitempty"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}
