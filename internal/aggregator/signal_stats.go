package aggregator

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// SummarizeRSSI computes the statistics of one calibration bucket.
// Mean and StdDev are taken over the dBm values; MeanPowerDBm averages in
// the linear (mW) domain and converts back.
func SummarizeRSSI(samples []int) models.ChannelStats {
	if len(samples) == 0 {
		return models.ChannelStats{}
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s)
	}

	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		std = 0
	}

	return models.ChannelStats{
		Count:        len(samples),
		Mean:         round2(mean),
		StdDev:       round2(std),
		Min:          int(floats.Min(values)),
		Max:          int(floats.Max(values)),
		MeanPowerDBm: round2(meanPowerDBm(values)),
	}
}

// meanPowerDBm averages received power in milliwatts.
func meanPowerDBm(dbm []float64) float64 {
	mw := make([]float64, len(dbm))
	for i, v := range dbm {
		mw[i] = dbmToMilliwatt(v)
	}
	return milliwattToDBm(stat.Mean(mw, nil))
}

// dbmToMilliwatt: P(mW) = 10^(dBm/10)
func dbmToMilliwatt(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

// milliwattToDBm clamps non-positive power to the receiver floor.
func milliwattToDBm(mw float64) float64 {
	if mw <= 0 {
		return RSSIFloorDBm
	}
	return 10 * math.Log10(mw)
}

// RSSIFloorDBm is the lowest RSSI a station reports.
const RSSIFloorDBm = -127.0

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
