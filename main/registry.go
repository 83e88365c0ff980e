package main

import (
	"sync"

	"github.com/skyforge/icm20602/icm20602"
)

// sensorRegistry tracks the running drivers by bus label. The daemon
// normally runs one sensor, but nothing below here assumes that, and
// the status endpoint reports whatever is registered.
type sensorRegistry struct {
	mu      sync.Mutex
	sensors map[string]*icm20602.ICM20602
}

var registry = &sensorRegistry{sensors: make(map[string]*icm20602.ICM20602)}

func (r *sensorRegistry) add(bus string, d *icm20602.ICM20602) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors[bus] = d
}

func (r *sensorRegistry) remove(bus string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sensors, bus)
}

func (r *sensorRegistry) snapshot() map[string]*icm20602.ICM20602 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*icm20602.ICM20602, len(r.sensors))
	for k, v := range r.sensors {
		out[k] = v
	}
	return out
}
