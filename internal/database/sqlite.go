package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/EldarSaltoun/BLE-Security-System/internal/aggregator"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// SQLiteDB is the embedded event and calibration store.
type SQLiteDB struct {
	*sql.DB
}

// NewSQLiteDB opens path and creates the tables if needed.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	// One writer; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	log.Printf("SQLite: opened %s", path)
	return &SQLiteDB{db}, nil
}

// SaveEvents implements Store. The batch is written in one transaction.
func (db *SQLiteDB) SaveEvents(ctx context.Context, records []models.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	return db.inTx(ctx, `
		INSERT INTO ble_events (received_at, mac, scanner, rssi, channel, name, mfg_id, mfg, mfg_data,
			txpwr, adv_len, adv_int_ms, has_services, n_services_16, n_services_128, packet_hash,
			timestamp_epoch_us, timestamp_mono_us)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, rec := range records {
				ev := rec.Event
				if _, err := stmt.ExecContext(ctx,
					eventTime(ev.ReceivedAt).UTC(), ev.MAC, ev.Scanner, ev.RSSI, ev.Channel, ev.Name,
					int(ev.MfgID), rec.Manufacturer, ev.MfgDataHex, ev.TxPower, ev.AdvLen, rec.AdvIntervalMs,
					ev.HasServices, ev.NServices16, ev.NServices128, ev.PacketHash,
					int64(ev.TsEpochUs), int64(ev.TsMonoUs),
				); err != nil {
					return fmt.Errorf("failed to insert event %s: %w", ev.MAC, err)
				}
			}
			return nil
		})
}

// SaveCalibration implements Store, one row per channel.
func (db *SQLiteDB) SaveCalibration(ctx context.Context, records []models.CalibrationRecord) error {
	if len(records) == 0 {
		return nil
	}
	return db.inTx(ctx, `
		INSERT INTO calibration_points (timestamp, x, y, z, scanner, target_mac, channel, count,
			mean, std_dev, min, max, mean_power_dbm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, rec := range records {
				for _, ch := range aggregator.StandardChannels {
					st := rec.Channels[ch]
					if _, err := stmt.ExecContext(ctx,
						rec.Timestamp.UTC(), rec.Coords.X, rec.Coords.Y, rec.Coords.Z, rec.Scanner, rec.TargetMAC,
						ch, st.Count, st.Mean, st.StdDev, st.Min, st.Max, st.MeanPowerDBm,
					); err != nil {
						return fmt.Errorf("failed to insert calibration point: %w", err)
					}
				}
			}
			return nil
		})
}

func (db *SQLiteDB) inTx(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// CountEvents returns the number of stored events, optionally for one MAC.
func (db *SQLiteDB) CountEvents(ctx context.Context, mac string) (int, error) {
	query := "SELECT COUNT(*) FROM ble_events"
	args := []any{}
	if mac != "" {
		query += " WHERE mac = ?"
		args = append(args, mac)
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
