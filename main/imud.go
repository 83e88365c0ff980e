/*
	imud.go: ICM-20602 acquisition daemon. Reads the sensor over SPI,
	publishes measurements over websocket and sqlite, and serves health
	and metrics over HTTP.
*/

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/takama/daemon"
	"golang.org/x/net/websocket"

	"github.com/skyforge/icm20602/clock"
	"github.com/skyforge/icm20602/icm20602"
)

const (
	imudVersion = "v1.2.0"

	svcName        = "imud"
	svcDescription = "ICM-20602 inertial measurement daemon"
)

var (
	cfgFile string
	cfg     Config

	// uptime clock, immune to NTP step changes on RTC-less boards
	mono = clock.NewMonotonic()

	startTime time.Time
)

// multiPublisher fans each report out to every attached publisher.
type multiPublisher []icm20602.Publisher

func (m multiPublisher) PublishAccel(r *icm20602.AccelReport) {
	for _, p := range m {
		p.PublishAccel(r)
	}
}

func (m multiPublisher) PublishGyro(r *icm20602.GyroReport) {
	for _, p := range m {
		p.PublishGyro(r)
	}
}

// openSensor opens the SPI transport and brings the sensor into the
// configured state.
func openSensor(pub icm20602.Publisher) (*icm20602.ICM20602, error) {
	rot, err := parseRotation(cfg.Rotation)
	if err != nil {
		return nil, err
	}
	tr, err := icm20602.NewSPITransport(byte(cfg.SPIChannel))
	if err != nil {
		return nil, err
	}
	d, err := icm20602.New(tr, clock.System{}, pub, rot, fmt.Sprintf("spi%d", cfg.SPIChannel))
	if err != nil {
		tr.Close()
		return nil, err
	}

	d.SetSampleRate(cfg.SampleRateHz)
	d.SetAccelRange(cfg.AccelRangeG)
	if err := d.SetAccelLowPass(cfg.AccelCutoffHz); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.Gyro().SetLowPass(cfg.GyroCutoffHz); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.SetAccelCalibration(cfg.AccelCalibration.toDriver()); err != nil {
		log.Warnf("accel calibration rejected, keeping identity: %s", err)
	}
	d.Gyro().SetCalibration(cfg.GyroCalibration.toDriver())
	return d, nil
}

type busStatus struct {
	SampleRate  int
	AccelRangeG int
	GyroRange   int
	Health      icm20602.HealthSnapshot
}

type statusReply struct {
	Version string
	Uptime  string
	Sensors map[string]busStatus
}

func handleStatusRequest(w http.ResponseWriter, r *http.Request) {
	reply := statusReply{
		Version: imudVersion,
		Uptime:  mono.HumanizeTime(startTime),
		Sensors: make(map[string]busStatus),
	}
	for bus, d := range registry.snapshot() {
		reply.Sensors[bus] = busStatus{
			SampleRate:  d.SampleRate(),
			AccelRangeG: d.AccelRange(),
			GyroRange:   d.Gyro().RangeDPS(),
			Health:      d.Health(),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	out, _ := json.MarshalIndent(reply, "", "  ")
	w.Write(out)
}

func runDaemon() error {
	if err := initLogging(cfg.LogDir); err != nil {
		return err
	}
	log.Infof("imud %s starting", imudVersion)
	startTime = mono.Now()

	bcast := newIMUBroadcaster()
	pubs := multiPublisher{bcast}
	if cfg.DatalogFile != "" {
		dl, err := newDataLogger(cfg.DatalogFile)
		if err != nil {
			return err
		}
		defer dl.Close()
		pubs = append(pubs, dl)
	}

	d, err := openSensor(pubs)
	if err != nil {
		return err
	}
	defer d.Close()
	bus := fmt.Sprintf("spi%d", cfg.SPIChannel)
	registry.add(bus, d)
	defer registry.remove(bus)

	http.HandleFunc("/imu", func(w http.ResponseWriter, r *http.Request) {
		s := websocket.Server{
			Handler: websocket.Handler(bcast.handleConnection)}
		s.ServeHTTP(w, r)
	})
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/getStatus", handleStatusRequest)
	go func() {
		if err := http.ListenAndServe(cfg.ListenAddr, nil); err != nil {
			log.Errorf("http: %s", err)
		}
	}()
	log.Infof("listening on %s", cfg.ListenAddr)

	tick := time.Duration(cfg.TickIntervalUs) * time.Microsecond
	quit := make(chan struct{})
	if cfg.InterruptPin > 0 {
		go runInterruptDriven(d, cfg.InterruptPin, tick, quit)
	} else {
		if err := d.Start(tick); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infof("received %s, shutting down", s)
	close(quit)
	d.Stop()
	return nil
}

// withSensor runs fn against a freshly opened sensor, for one-shot
// diagnostic verbs.
func withSensor(fn func(*icm20602.ICM20602) error) error {
	d, err := openSensor(nil)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "imud",
		Short:   "ICM-20602 inertial measurement daemon",
		Version: imudVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = loadConfig(cfgFile)
			return err
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default "+defaultConfigFile+")")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the acquisition daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:       "service [install|remove|start|stop|status]",
		Short:     "Manage the system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "remove", "start", "stop", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := daemon.New(svcName, svcDescription, daemon.SystemDaemon)
			if err != nil {
				return err
			}
			var status string
			switch args[0] {
			case "install":
				status, err = srv.Install("run")
			case "remove":
				status, err = srv.Remove()
			case "start":
				status, err = srv.Start()
			case "stop":
				status, err = srv.Stop()
			case "status":
				status, err = srv.Status()
			}
			if status != "" {
				fmt.Println(status)
			}
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "test [seconds]",
		Short: "Sample the sensor for a few seconds and print measurements",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secs := 2
			if len(args) == 1 {
				fmt.Sscanf(args[0], "%d", &secs)
			}
			return withSensor(func(d *icm20602.ICM20602) error {
				deadline := time.Now().Add(time.Duration(secs) * time.Second)
				tick := time.NewTicker(time.Duration(cfg.TickIntervalUs) * time.Microsecond)
				defer tick.Stop()
				for time.Now().Before(deadline) {
					<-tick.C
					a, g, err := d.Measure()
					if err != nil {
						log.Warnf("measure: %s", err)
						continue
					}
					d.CheckRegisters()
					if a != nil {
						fmt.Printf("accel % 8.3f % 8.3f % 8.3f m/s2  temp %5.1fC\n", a.X, a.Y, a.Z, a.Temperature)
					}
					if g != nil {
						fmt.Printf("gyro  % 8.4f % 8.4f % 8.4f rad/s\n", g.X, g.Y, g.Z)
					}
				}
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Print sensor configuration and health counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSensor(func(d *icm20602.ICM20602) error {
				if _, _, err := d.Measure(); err != nil {
					log.Warnf("measure: %s", err)
				}
				h := d.Health()
				fmt.Printf("sample rate:    %d Hz\n", d.SampleRate())
				fmt.Printf("accel range:    %d g\n", d.AccelRange())
				fmt.Printf("gyro range:     %d dps\n", d.Gyro().RangeDPS())
				fmt.Printf("accel cutoff:   %.0f Hz\n", d.AccelLowPass())
				fmt.Printf("gyro cutoff:    %.0f Hz\n", d.Gyro().LowPass())
				fmt.Printf("samples:        %d\n", h.SampleCount)
				fmt.Printf("good transfers: %d\n", h.GoodTransfers)
				fmt.Printf("bad transfers:  %d\n", h.BadTransfers)
				fmt.Printf("bad registers:  %d\n", h.BadRegisters)
				fmt.Printf("duplicates:     %d\n", h.Duplicates)
				fmt.Printf("reset retries:  %d\n", h.ResetRetries)
				fmt.Printf("temperature:    %.1f C\n", h.LastTemperature)
				for _, m := range h.Mismatches {
					fmt.Printf("MISMATCH reg %02x: %02x want %02x\n", m.Register, m.Value, m.Expected)
				}
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset the sensor and reprogram its configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSensor(func(d *icm20602.ICM20602) error {
				if err := d.Reset(); err != nil {
					return err
				}
				fmt.Println("sensor reset ok")
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "regdump",
		Short: "Dump the sensor register file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSensor(func(d *icm20602.ICM20602) error {
				dump := d.DumpRegisters()
				for reg, v := range dump {
					if reg%8 == 0 {
						fmt.Printf("\n%02x:", reg)
					}
					fmt.Printf(" %02x", v)
				}
				fmt.Println()
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "selftest",
		Short: "Check that the installed calibration is plausible",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSensor(func(d *icm20602.ICM20602) error {
				if _, _, err := d.Measure(); err != nil {
					return err
				}
				if err := d.AccelSelfTest(); err != nil {
					fmt.Printf("accel: FAIL (%s)\n", err)
				} else {
					fmt.Println("accel: ok")
				}
				if err := d.Gyro().SelfTest(); err != nil {
					fmt.Printf("gyro:  FAIL (%s)\n", err)
					return err
				}
				fmt.Println("gyro:  ok")
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "testerror",
		Short: "Inject a malformed bus transaction and report sensor health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSensor(func(d *icm20602.ICM20602) error {
				d.TriggerError()
				d.CheckRegisters()
				h := d.Health()
				fmt.Printf("error triggered: bad transfers %d, bad registers %d, register_wait %d\n",
					h.BadTransfers, h.BadRegisters, h.RegisterWait)
				for _, m := range h.Mismatches {
					fmt.Printf("MISMATCH reg %02x: %02x want %02x\n", m.Register, m.Value, m.Expected)
				}
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "defaultconfig",
		Short: "Print the default configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := renderDefaultConfig()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	})

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
