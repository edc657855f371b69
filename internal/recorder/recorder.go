// Package recorder persists PHY activity traces to a SQLite database so a
// run can be inspected after the fact. The recorder subscribes to the
// tracker's trace sinks; rows are written synchronously as traces arrive.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/signalsfoundry/phytrack/internal/logging"
	"github.com/signalsfoundry/phytrack/model"
	"github.com/signalsfoundry/phytrack/phy"
	"github.com/signalsfoundry/phytrack/timectrl"
)

// StateInterval is one recorded state occupancy row.
type StateInterval struct {
	Start    time.Time
	Duration time.Duration
	State    string
}

// Reception is one recorded reception outcome row.
type Reception struct {
	At        time.Time
	Outcome   string
	SnrDb     float64
	SizeBytes int64
}

// SqliteRecorder handles database operations for a single run. Connections
// are opened lazily on first use.
type SqliteRecorder struct {
	dbPath string
	runID  string
	clock  timectrl.SimClock
	log    logging.Logger

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteRecorder creates a recorder writing to the SQLite database at
// dbPath. A fresh run ID is allocated; the run row itself is inserted when
// the write connection is first opened.
func NewSqliteRecorder(dbPath string, clock timectrl.SimClock, log logging.Logger) *SqliteRecorder {
	if log == nil {
		log = logging.Noop()
	}
	return &SqliteRecorder{
		dbPath: dbPath,
		runID:  uuid.NewString(),
		clock:  clock,
		log:    log,
	}
}

// RunID returns the identifier under which this recorder's rows are stored.
func (r *SqliteRecorder) RunID() string { return r.runID }

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (r *SqliteRecorder) getWriteDB() (*sql.DB, error) {
	r.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", r.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			r.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			r.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		if _, err = db.Exec(insertRunSQL, r.runID); err != nil {
			_ = db.Close()
			r.writeDBErr = fmt.Errorf("inserting run: %w", err)
			return
		}

		r.writeDB = db
	})

	return r.writeDB, r.writeDBErr
}

func (r *SqliteRecorder) getReadDB() (*sql.DB, error) {
	r.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", r.dbPath, "mode=ro"))
		if err != nil {
			r.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		r.readDB = db
	})

	return r.readDB, r.readDBErr
}

func (r *SqliteRecorder) exec(query string, args ...any) {
	db, err := r.getWriteDB()
	if err != nil {
		r.log.Error(context.Background(), "recorder: write connection unavailable", logging.Any("error", err))
		return
	}
	if _, err := db.Exec(query, args...); err != nil {
		r.log.Error(context.Background(), "recorder: insert failed", logging.Any("error", err))
	}
}

// StateTrace returns a sink persisting one row per state interval.
func (r *SqliteRecorder) StateTrace() phy.StateTraceFunc {
	return func(start time.Time, duration time.Duration, state phy.RadioState) {
		r.exec(insertStateIntervalSQL, r.runID, start.UnixNano(), duration.Nanoseconds(), state.String())
	}
}

// TxTrace returns a sink persisting one row per transmitted frame bundle.
func (r *SqliteRecorder) TxTrace() phy.TxTraceFunc {
	return func(bundle *model.FrameBundle, mode model.Mode, preamble model.Preamble, powerLevel uint8) {
		r.exec(insertTransmissionSQL, r.runID, r.clock.Now().UnixNano(),
			bundle.SizeBytes(), string(mode), preamble.String(), powerLevel)
	}
}

// RxOkTrace returns a sink persisting one row per successful reception.
func (r *SqliteRecorder) RxOkTrace() phy.RxOkTraceFunc {
	return func(bundle *model.FrameBundle, snrDb float64, _ model.Mode, _ model.Preamble) {
		r.exec(insertReceptionSQL, r.runID, r.clock.Now().UnixNano(),
			"ok", snrDb, nil, bundle.SizeBytes())
	}
}

// RxErrorTrace returns a sink persisting one row per failed reception.
func (r *SqliteRecorder) RxErrorTrace() phy.RxErrorTraceFunc {
	return func(bundle *model.FrameBundle, snrDb float64) {
		r.exec(insertReceptionSQL, r.runID, r.clock.Now().UnixNano(),
			"error", snrDb, nil, bundle.SizeBytes())
	}
}

// StateIntervals returns the recorded state intervals for a run in
// chronological order.
func (r *SqliteRecorder) StateIntervals(ctx context.Context, runID string) (intervals []StateInterval, err error) {
	db, err := r.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectStateIntervalsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying state intervals: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var startNs, durationNs int64
		var state string
		if err = rows.Scan(&startNs, &durationNs, &state); err != nil {
			return nil, fmt.Errorf("scanning state interval: %w", err)
		}
		intervals = append(intervals, StateInterval{
			Start:    time.Unix(0, startNs).UTC(),
			Duration: time.Duration(durationNs),
			State:    state,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state intervals: %w", err)
	}
	return intervals, nil
}

// Receptions returns the recorded reception outcomes for a run in
// chronological order.
func (r *SqliteRecorder) Receptions(ctx context.Context, runID string) (receptions []Reception, err error) {
	db, err := r.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectReceptionsSQL, runID)
	if err != nil {
		return nil, fmt.Errorf("querying receptions: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var atNs, sizeBytes int64
		var outcome string
		var snr, rssi sql.NullFloat64
		if err = rows.Scan(&atNs, &outcome, &snr, &rssi, &sizeBytes); err != nil {
			return nil, fmt.Errorf("scanning reception: %w", err)
		}
		receptions = append(receptions, Reception{
			At:        time.Unix(0, atNs).UTC(),
			Outcome:   outcome,
			SnrDb:     snr.Float64,
			SizeBytes: sizeBytes,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receptions: %w", err)
	}
	return receptions, nil
}

// TransmissionCount returns the number of transmitted frame bundles
// recorded for a run.
func (r *SqliteRecorder) TransmissionCount(ctx context.Context, runID string) (int64, error) {
	db, err := r.getReadDB()
	if err != nil {
		return 0, fmt.Errorf("getting read connection: %w", err)
	}

	var count int64
	if err := db.QueryRowContext(ctx, selectTransmissionCountSQL, runID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting transmissions: %w", err)
	}
	return count, nil
}

// Close flushes indexes and closes both connections. It is safe to call
// more than once.
func (r *SqliteRecorder) Close() error {
	r.closeOnce.Do(func() {
		var writeErr, readErr error

		if r.writeDB != nil {
			_ = runSQLCommand(r.writeDB, initIndexesSQL)

			writeErr = r.writeDB.Close()
			r.writeDB = nil
		}

		if r.readDB != nil {
			readErr = r.readDB.Close()
			r.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			r.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			r.closeErr = writeErr
		case readErr != nil:
			r.closeErr = readErr
		}
	})

	return r.closeErr
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
