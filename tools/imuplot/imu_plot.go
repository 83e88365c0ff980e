// imu_plot renders an imud sqlite datalog as a time-series plot, one
// panel per sensor half. Useful for eyeballing vibration and bias after
// a flight.
//
//	imu_plot -db /var/log/imud/imu.db -out imu.png
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func loadSeries(db *sql.DB, kind string) (x, y, z plotter.XYs, err error) {
	rows, err := db.Query(
		`SELECT timestamp, x, y, z FROM imu_log WHERE kind = ? ORDER BY timestamp`, kind)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	var t0 int64
	for rows.Next() {
		var ts int64
		var vx, vy, vz float64
		if err := rows.Scan(&ts, &vx, &vy, &vz); err != nil {
			return nil, nil, nil, err
		}
		if t0 == 0 {
			t0 = ts
		}
		secs := float64(ts-t0) / 1e9
		x = append(x, plotter.XY{X: secs, Y: vx})
		y = append(y, plotter.XY{X: secs, Y: vy})
		z = append(z, plotter.XY{X: secs, Y: vz})
	}
	return x, y, z, rows.Err()
}

func plotKind(db *sql.DB, kind, unit, out string) error {
	x, y, z, err := loadSeries(db, kind)
	if err != nil {
		return err
	}
	if len(x) == 0 {
		return fmt.Errorf("no %s rows in datalog", kind)
	}

	p := plot.New()
	p.Title.Text = kind
	p.X.Label.Text = "seconds"
	p.Y.Label.Text = unit

	if err := plotutil.AddLinePoints(p, "X", x, "Y", y, "Z", z); err != nil {
		return err
	}
	return p.Save(12*vg.Inch, 4*vg.Inch, out)
}

func main() {
	dbFile := flag.String("db", "imu.db", "imud sqlite datalog")
	outPrefix := flag.String("out", "imu", "output file prefix")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sql.Open(): %s\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := plotKind(db, "accel", "m/s2", *outPrefix+"_accel.png"); err != nil {
		fmt.Fprintf(os.Stderr, "accel: %s\n", err)
		os.Exit(1)
	}
	if err := plotKind(db, "gyro", "rad/s", *outPrefix+"_gyro.png"); err != nil {
		fmt.Fprintf(os.Stderr, "gyro: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s_accel.png, %s_gyro.png\n", *outPrefix, *outPrefix)
}
