/*
	Copyright (c) 2015-2016 Christopher Young
	Distributable under the terms of The "BSD New"" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	datalog.go: Log measurement reports to sqlite for offline analysis.
*/

package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/skyforge/icm20602/icm20602"
)

type datalogRow struct {
	kind string // "accel" or "gyro"
	ts   time.Time
	x    float64
	y    float64
	z    float64
	ix   float64
	iy   float64
	iz   float64
	dt   float64
	temp float64
	errs uint64
}

// dataLogger buffers reports on a channel and writes them to sqlite in
// batched transactions, one commit per second, so the pipeline never
// waits on fsync.
type dataLogger struct {
	db   *sql.DB
	rows chan datalogRow
}

func newDataLogger(file string) (*dataLogger, error) {
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, fmt.Errorf("sql.Open(): %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS imu_log (
		id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		kind TEXT, timestamp INTEGER,
		x REAL, y REAL, z REAL,
		ix REAL, iy REAL, iz REAL, dt REAL,
		temperature REAL, error_count INTEGER)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating imu_log: %w", err)
	}

	d := &dataLogger{
		db:   db,
		rows: make(chan datalogRow, 4096),
	}
	go d.writer()
	return d, nil
}

func (d *dataLogger) PublishAccel(r *icm20602.AccelReport) {
	d.put(datalogRow{
		kind: "accel", ts: r.Timestamp,
		x: r.X, y: r.Y, z: r.Z,
		ix: r.XIntegral, iy: r.YIntegral, iz: r.ZIntegral,
		dt: r.IntegralDT.Seconds(), temp: r.Temperature, errs: r.ErrorCount,
	})
}

func (d *dataLogger) PublishGyro(r *icm20602.GyroReport) {
	d.put(datalogRow{
		kind: "gyro", ts: r.Timestamp,
		x: r.X, y: r.Y, z: r.Z,
		ix: r.XIntegral, iy: r.YIntegral, iz: r.ZIntegral,
		dt: r.IntegralDT.Seconds(), temp: r.Temperature, errs: r.ErrorCount,
	})
}

func (d *dataLogger) put(row datalogRow) {
	select {
	case d.rows <- row:
	default:
		// disk can't keep up, drop the row
	}
}

func (d *dataLogger) writer() {
	commit := time.NewTicker(time.Second)
	pending := make([]datalogRow, 0, 1024)
	for {
		select {
		case row := <-d.rows:
			pending = append(pending, row)
		case <-commit.C:
			if len(pending) == 0 {
				continue
			}
			if err := d.flush(pending); err != nil {
				log.Errorf("datalog flush: %s", err)
			}
			pending = pending[:0]
		}
	}
}

func (d *dataLogger) flush(rows []datalogRow) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO imu_log
		(kind, timestamp, x, y, z, ix, iy, iz, dt, temperature, error_count)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.kind, r.ts.UnixNano(),
			r.x, r.y, r.z, r.ix, r.iy, r.iz, r.dt, r.temp, int64(r.errs)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (d *dataLogger) Close() error {
	return d.db.Close()
}
