package database

import (
	"fmt"
	"strconv"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/aggregator"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// EventColumns is the event log header.
var EventColumns = []string{
	"timestamp_local", "mac", "name", "rssi", "channel", "txpwr",
	"mfg", "adv_len", "adv_int_ms",
	"has_services", "n_services_16", "n_services_128",
	"mfg_data", "packet_hash", "scanner", "timestamp_epoch_us",
}

// CalibrationColumns is the calibration log header: the coordinate and
// mean, standard deviation and sample count per advertising channel.
var CalibrationColumns = calibrationColumns()

func calibrationColumns() []string {
	cols := []string{"timestamp", "x", "y", "z", "scanner", "target_mac"}
	for _, ch := range aggregator.StandardChannels {
		cols = append(cols,
			fmt.Sprintf("avg_%d", ch),
			fmt.Sprintf("std_%d", ch),
			fmt.Sprintf("n_%d", ch))
	}
	return cols
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func eventRow(rec models.EventRecord) []string {
	ev := rec.Event
	interval := ""
	if rec.AdvIntervalMs != nil {
		interval = strconv.FormatFloat(*rec.AdvIntervalMs, 'f', 1, 64)
	}
	return []string{
		eventTime(ev.ReceivedAt).Local().Format(timeLayout),
		ev.MAC,
		ev.Name,
		strconv.Itoa(ev.RSSI),
		strconv.Itoa(ev.Channel),
		strconv.Itoa(ev.TxPower),
		rec.Manufacturer,
		strconv.Itoa(ev.AdvLen),
		interval,
		boolDigit(ev.HasServices),
		strconv.Itoa(ev.NServices16),
		strconv.Itoa(ev.NServices128),
		ev.MfgDataHex,
		ev.PacketHash,
		ev.Scanner,
		strconv.FormatUint(ev.TsEpochUs, 10),
	}
}

func calibrationRow(rec models.CalibrationRecord) []string {
	row := []string{
		rec.Timestamp.Local().Format(timeLayout),
		formatFloat(rec.Coords.X),
		formatFloat(rec.Coords.Y),
		formatFloat(rec.Coords.Z),
		rec.Scanner,
		rec.TargetMAC,
	}
	for _, ch := range aggregator.StandardChannels {
		st := rec.Channels[ch]
		row = append(row, formatFloat(st.Mean), formatFloat(st.StdDev), strconv.Itoa(st.Count))
	}
	return row
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// eventTime falls back to now for events built without a receive time.
func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
