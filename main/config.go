package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/skyforge/icm20602/icm20602"
)

const defaultConfigFile = "/etc/imud.yaml"

// AxisCalibrationConfig mirrors icm20602.AxisCalibration for the config
// file.
type AxisCalibrationConfig struct {
	XOffset float64 `yaml:"x_offset" mapstructure:"x_offset"`
	XScale  float64 `yaml:"x_scale" mapstructure:"x_scale"`
	YOffset float64 `yaml:"y_offset" mapstructure:"y_offset"`
	YScale  float64 `yaml:"y_scale" mapstructure:"y_scale"`
	ZOffset float64 `yaml:"z_offset" mapstructure:"z_offset"`
	ZScale  float64 `yaml:"z_scale" mapstructure:"z_scale"`
}

func (c AxisCalibrationConfig) toDriver() icm20602.AxisCalibration {
	return icm20602.AxisCalibration{
		XOffset: c.XOffset, XScale: c.XScale,
		YOffset: c.YOffset, YScale: c.YScale,
		ZOffset: c.ZOffset, ZScale: c.ZScale,
	}
}

// Config is the daemon configuration, loaded from YAML with viper.
type Config struct {
	SPIChannel     int     `yaml:"spi_channel" mapstructure:"spi_channel"`
	SampleRateHz   int     `yaml:"sample_rate_hz" mapstructure:"sample_rate_hz"`
	AccelRangeG    int     `yaml:"accel_range_g" mapstructure:"accel_range_g"`
	TickIntervalUs int     `yaml:"tick_interval_us" mapstructure:"tick_interval_us"`
	AccelCutoffHz  float64 `yaml:"accel_cutoff_hz" mapstructure:"accel_cutoff_hz"`
	GyroCutoffHz   float64 `yaml:"gyro_cutoff_hz" mapstructure:"gyro_cutoff_hz"`
	Rotation       string  `yaml:"rotation" mapstructure:"rotation"`

	// InterruptPin is the BCM GPIO wired to the sensor's data-ready
	// line. Zero means no interrupt line; the driver free-runs on its
	// internal tick instead.
	InterruptPin int `yaml:"interrupt_pin" mapstructure:"interrupt_pin"`

	ListenAddr  string `yaml:"listen_addr" mapstructure:"listen_addr"`
	DatalogFile string `yaml:"datalog_file" mapstructure:"datalog_file"`
	LogDir      string `yaml:"log_dir" mapstructure:"log_dir"`

	AccelCalibration AxisCalibrationConfig `yaml:"accel_calibration" mapstructure:"accel_calibration"`
	GyroCalibration  AxisCalibrationConfig `yaml:"gyro_calibration" mapstructure:"gyro_calibration"`
}

func defaultConfig() Config {
	return Config{
		SPIChannel:     0,
		SampleRateHz:   icm20602.DefaultSampleRate,
		AccelRangeG:    icm20602.DefaultAccelRange,
		TickIntervalUs: 1000,
		AccelCutoffHz:  icm20602.DefaultFilterFreq,
		GyroCutoffHz:   icm20602.DefaultFilterFreq,
		Rotation:       "none",
		InterruptPin:   0,
		ListenAddr:     ":9111",
		DatalogFile:    "",
		LogDir:         "/var/log/imud",
		AccelCalibration: AxisCalibrationConfig{
			XScale: 1, YScale: 1, ZScale: 1,
		},
		GyroCalibration: AxisCalibrationConfig{
			XScale: 1, YScale: 1, ZScale: 1,
		},
	}
}

// loadConfig reads path (or the default location) over the built-in
// defaults. A missing file is not an error; the defaults apply.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile(defaultConfigFile)
	}
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Infof("no config file at %s, using defaults", v.ConfigFileUsed())
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	log.Infof("loaded config from %s", v.ConfigFileUsed())
	return cfg, nil
}

// renderDefaultConfig returns the default configuration as YAML, for
// the defaultconfig verb.
func renderDefaultConfig() (string, error) {
	out, err := yaml.Marshal(defaultConfig())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func parseRotation(s string) (icm20602.Rotation, error) {
	for r := icm20602.RotationNone; r <= icm20602.RotationRoll180Yaw270; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return icm20602.RotationNone, fmt.Errorf("unknown rotation %q", s)
}
