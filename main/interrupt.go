package main

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/skyforge/icm20602/icm20602"
)

// runInterruptDriven ticks the pipeline off the sensor's data-ready
// line instead of the free-running internal timer, eliminating the
// sampling beat the duplicate detector otherwise has to absorb. Falls
// back to the internal tick if the GPIO can't be opened.
func runInterruptDriven(d *icm20602.ICM20602, bcmPin int, tick time.Duration, quit chan struct{}) {
	if err := rpio.Open(); err != nil {
		log.Warnf("rpio.Open: %s, falling back to internal tick", err)
		if err := d.Start(tick); err != nil {
			log.Errorf("start: %s", err)
		}
		<-quit
		d.Stop()
		return
	}
	defer rpio.Close()

	pin := rpio.Pin(bcmPin)
	pin.Input()
	pin.PullDown()
	pin.Detect(rpio.RiseEdge)
	defer pin.Detect(rpio.NoEdge)

	// Edge polling at 4x the sample rate; the interrupt status register
	// is configured to clear on any read so a missed edge costs one
	// sample, not a lockup.
	poll := time.NewTicker(tick / 4)
	defer poll.Stop()

	monitor := time.NewTicker(tick)
	defer monitor.Stop()

	for {
		select {
		case <-poll.C:
			if !pin.EdgeDetected() {
				continue
			}
			if _, _, err := d.Measure(); err != nil {
				log.Debugf("measure: %s", err)
			}
		case <-monitor.C:
			d.CheckRegisters()
		case <-quit:
			return
		}
	}
}
