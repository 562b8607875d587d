package database

// ClickHouse table schemas

const (
	// BLEEventsTableSQL creates the ble_events table
	BLEEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS ble_events (
			received_at DateTime64(3),
			mac String,
			scanner String,
			rssi Int16,
			channel UInt8,
			name String,
			mfg_id UInt16,
			mfg String,
			mfg_data String,
			txpwr Int16,
			adv_len UInt8,
			adv_int_ms Nullable(Float64),
			has_services Bool,
			n_services_16 UInt8,
			n_services_128 UInt8,
			packet_hash String,
			timestamp_epoch_us UInt64,
			timestamp_mono_us UInt64
		) ENGINE = MergeTree()
		ORDER BY (mac, received_at)
		PARTITION BY toYYYYMM(received_at)
	`

	// CalibrationPointsTableSQL creates the calibration_points table, one row
	// per (coordinate, scanner, channel)
	CalibrationPointsTableSQL = `
		CREATE TABLE IF NOT EXISTS calibration_points (
			timestamp DateTime64(3),
			x Float64,
			y Float64,
			z Float64,
			scanner String,
			target_mac String,
			channel UInt8,
			count UInt16,
			mean Float64,
			std_dev Float64,
			min Int16,
			max Int16,
			mean_power_dbm Float64
		) ENGINE = MergeTree()
		ORDER BY (scanner, timestamp)
	`
)

// AllTables returns all ClickHouse table creation statements
func AllTables() []string {
	return []string{
		BLEEventsTableSQL,
		CalibrationPointsTableSQL,
	}
}

// sqliteSchema mirrors the ClickHouse tables for the embedded store.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS ble_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at TIMESTAMP NOT NULL,
		mac TEXT NOT NULL,
		scanner TEXT,
		rssi INTEGER,
		channel INTEGER,
		name TEXT,
		mfg_id INTEGER,
		mfg TEXT,
		mfg_data TEXT,
		txpwr INTEGER,
		adv_len INTEGER,
		adv_int_ms REAL,
		has_services INTEGER,
		n_services_16 INTEGER,
		n_services_128 INTEGER,
		packet_hash TEXT,
		timestamp_epoch_us INTEGER,
		timestamp_mono_us INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_ble_events_mac ON ble_events (mac, received_at);
	CREATE INDEX IF NOT EXISTS idx_ble_events_hash ON ble_events (packet_hash);
	CREATE TABLE IF NOT EXISTS calibration_points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP NOT NULL,
		x REAL,
		y REAL,
		z REAL,
		scanner TEXT,
		target_mac TEXT,
		channel INTEGER,
		count INTEGER,
		mean REAL,
		std_dev REAL,
		min INTEGER,
		max INTEGER,
		mean_power_dbm REAL
	);
`
