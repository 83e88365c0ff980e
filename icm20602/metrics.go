package icm20602

import "github.com/prometheus/client_golang/prometheus"

// Prometheus mirrors of the driver's fault counters, labeled by SPI
// channel so multiple sensors can share one process. The driver keeps
// its own uint64 counters as the source of truth for reports and
// HealthSnapshot; these exist for scraping.
var (
	metricSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icm20602_samples_total",
			Help: "Frames fetched and processed.",
		},
		[]string{"bus"},
	)

	metricGoodTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icm20602_good_transfers_total",
			Help: "Raw frames that passed validity checks.",
		},
		[]string{"bus"},
	)

	metricBadTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icm20602_bad_transfers_total",
			Help: "Raw frames rejected as bus faults (all-zero data).",
		},
		[]string{"bus"},
	)

	metricBadRegisters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icm20602_bad_registers_total",
			Help: "Checked configuration registers found corrupted.",
		},
		[]string{"bus"},
	)

	metricDuplicates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icm20602_duplicates_total",
			Help: "Frames dropped as duplicate accelerometer data.",
		},
		[]string{"bus"},
	)

	metricResetRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icm20602_reset_retries_total",
			Help: "Reset attempts that needed a retry.",
		},
		[]string{"bus"},
	)

	metricTemperature = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "icm20602_temperature_celsius",
			Help: "Last die temperature reading.",
		},
		[]string{"bus"},
	)
)

func init() {
	prometheus.MustRegister(metricSamples)
	prometheus.MustRegister(metricGoodTransfers)
	prometheus.MustRegister(metricBadTransfers)
	prometheus.MustRegister(metricBadRegisters)
	prometheus.MustRegister(metricDuplicates)
	prometheus.MustRegister(metricResetRetries)
	prometheus.MustRegister(metricTemperature)
}
