package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/EldarSaltoun/BLE-Security-System/internal/aggregator"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(addr, database, username, password string) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", addr)

	db := &ClickHouseDB{conn: conn}
	if err := db.InitSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// InitSchema creates the tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	log.Println("ClickHouse schema initialized")
	return nil
}

// SaveEvents inserts a batch of accepted events
func (db *ClickHouseDB) SaveEvents(ctx context.Context, records []models.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO ble_events")
	if err != nil {
		return fmt.Errorf("failed to prepare event batch: %w", err)
	}
	for _, rec := range records {
		ev := rec.Event
		if err := batch.Append(
			eventTime(ev.ReceivedAt),
			ev.MAC,
			ev.Scanner,
			int16(ev.RSSI),
			uint8(ev.Channel),
			ev.Name,
			ev.MfgID,
			rec.Manufacturer,
			ev.MfgDataHex,
			int16(ev.TxPower),
			uint8(ev.AdvLen),
			rec.AdvIntervalMs,
			ev.HasServices,
			uint8(ev.NServices16),
			uint8(ev.NServices128),
			ev.PacketHash,
			ev.TsEpochUs,
			ev.TsMonoUs,
		); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append event %s: %w", ev.MAC, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert %d events: %w", len(records), err)
	}
	return nil
}

// SaveCalibration inserts one row per (scanner, channel)
func (db *ClickHouseDB) SaveCalibration(ctx context.Context, records []models.CalibrationRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO calibration_points")
	if err != nil {
		return fmt.Errorf("failed to prepare calibration batch: %w", err)
	}
	for _, rec := range records {
		for _, ch := range aggregator.StandardChannels {
			st := rec.Channels[ch]
			if err := batch.Append(
				rec.Timestamp,
				rec.Coords.X,
				rec.Coords.Y,
				rec.Coords.Z,
				rec.Scanner,
				rec.TargetMAC,
				uint8(ch),
				uint16(st.Count),
				st.Mean,
				st.StdDev,
				int16(st.Min),
				int16(st.Max),
				st.MeanPowerDBm,
			); err != nil {
				batch.Abort()
				return fmt.Errorf("failed to append calibration point: %w", err)
			}
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert calibration points: %w", err)
	}
	log.Printf("Saved %d calibration record(s) to ClickHouse", len(records))
	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		log.Println("ClickHouse connection closed")
	}
	return nil
}
