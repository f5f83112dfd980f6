package telemetry

import (
	"database/sql"
	"fmt"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS frames (
		seq INTEGER PRIMARY KEY,
		time DOUBLE,
		phase INTEGER,
		state TEXT,
		altitude DOUBLE,
		velocity DOUBLE,
		acceleration DOUBLE,
		pressure DOUBLE,
		temperature DOUBLE,
		baro_altitude DOUBLE,
		imu_temperature INTEGER,
		accel_x DOUBLE,
		accel_y DOUBLE,
		accel_z DOUBLE,
		accel_vertical DOUBLE,
		gyro_x DOUBLE,
		gyro_y DOUBLE,
		gyro_z DOUBLE,
		quat_w DOUBLE,
		quat_x DOUBLE,
		quat_y DOUBLE,
		quat_z DOUBLE,
		lp_altitude DOUBLE
	);
`

const insertFrame = `INSERT INTO frames (
	seq, time, phase, state, altitude, velocity, acceleration,
	pressure, temperature, baro_altitude, imu_temperature,
	accel_x, accel_y, accel_z, accel_vertical, gyro_x, gyro_y, gyro_z,
	quat_w, quat_x, quat_y, quat_z, lp_altitude
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteExporter writes decoded frames into a frames table, one transaction per export.
type SQLiteExporter struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteExporter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("creating schema: %w", err), db.Close())
	}
	return &SQLiteExporter{db: db}, nil
}

// DB exposes the underlying handle for queries.
func (x *SQLiteExporter) DB() *sql.DB {
	return x.db
}

// Export inserts frames, numbering them from the current row count.
func (x *SQLiteExporter) Export(frames []Frame) (err error) {
	tx, err := x.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	var base int64
	if err = tx.QueryRow("SELECT COUNT(*) FROM frames").Scan(&base); err != nil {
		return err
	}
	stmt, err := tx.Prepare(insertFrame)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range frames {
		f := &frames[i]
		_, err = stmt.Exec(base+int64(i),
			f.Time, int(f.Phase), f.Phase.Label(),
			f.Altitude, f.Velocity, f.Acceleration,
			f.Pressure, f.Temperature, f.BaroAltitude, int(f.IMUTemperature),
			f.AccelX, f.AccelY, f.AccelZ, f.AccelVertical,
			f.GyroX, f.GyroY, f.GyroZ,
			f.QuatW, f.QuatX, f.QuatY, f.QuatZ,
			f.LaunchpadAltitude)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (x *SQLiteExporter) Close() error {
	return x.db.Close()
}
