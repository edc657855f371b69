package recorder

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    id         TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS state_intervals (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES runs (id),
    start_ns    INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    state       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transmissions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES runs (id),
    at_ns       INTEGER NOT NULL,
    size_bytes  INTEGER NOT NULL,
    mode        TEXT NOT NULL,
    preamble    TEXT NOT NULL,
    power_level INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS receptions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL REFERENCES runs (id),
    at_ns      INTEGER NOT NULL,
    outcome    TEXT NOT NULL,
    snr_db     REAL,
    rssi_dbm   REAL,
    size_bytes INTEGER NOT NULL
);
`

const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_state_intervals_run ON state_intervals (run_id, start_ns);
CREATE INDEX IF NOT EXISTS idx_transmissions_run ON transmissions (run_id, at_ns);
CREATE INDEX IF NOT EXISTS idx_receptions_run ON receptions (run_id, at_ns);
`

const (
	insertRunSQL = `
INSERT INTO runs (id)
VALUES (?)`

	insertStateIntervalSQL = `
INSERT INTO state_intervals (run_id,
                             start_ns,
                             duration_ns,
                             state)
VALUES (?, ?, ?, ?)`

	insertTransmissionSQL = `
INSERT INTO transmissions (run_id,
                           at_ns,
                           size_bytes,
                           mode,
                           preamble,
                           power_level)
VALUES (?, ?, ?, ?, ?, ?)`

	insertReceptionSQL = `
INSERT INTO receptions (run_id,
                        at_ns,
                        outcome,
                        snr_db,
                        rssi_dbm,
                        size_bytes)
VALUES (?, ?, ?, ?, ?, ?)`

	selectStateIntervalsSQL = `
SELECT
    start_ns,
    duration_ns,
    state
FROM state_intervals
WHERE
    run_id = ?
ORDER BY start_ns, id`

	selectReceptionsSQL = `
SELECT
    at_ns,
    outcome,
    snr_db,
    rssi_dbm,
    size_bytes
FROM receptions
WHERE
    run_id = ?
ORDER BY at_ns, id`

	selectTransmissionCountSQL = `
SELECT COUNT(*)
FROM transmissions
WHERE
    run_id = ?`
)
