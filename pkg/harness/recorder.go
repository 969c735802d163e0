package harness

import (
	"sync"

	"github.com/mdtb/wifitest/pkg/results"
	"github.com/mdtb/wifitest/pkg/stats"
)

// Recorder accumulates the measurements of one scenario run. It is safe for
// use from the per-device goroutines scenarios spawn.
type Recorder struct {
	mu           sync.Mutex
	measurements []results.Measurement
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Samples summarizes and records raw samples in one step.
func (r *Recorder) Samples(name, unit string, samples []float64, failed int) {
	r.Add(results.Measurement{
		Name:             name,
		Unit:             unit,
		Summary:          stats.Summarize(samples, true),
		FailedIterations: failed,
	})
}

// Add records a fully built measurement.
func (r *Recorder) Add(m results.Measurement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.measurements = append(r.measurements, m)
}

// Measurements returns everything recorded so far.
func (r *Recorder) Measurements() []results.Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]results.Measurement, len(r.measurements))
	copy(out, r.measurements)
	return out
}
