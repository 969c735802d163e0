// Package results defines the archival record of a scenario run. The structs
// are serialized as JSON to disk and must stay BigQuery-friendly: no maps,
// no interface fields.
package results

import (
	"time"

	"github.com/mdtb/wifitest/pkg/stats"
)

// Outcome is the terminal state of a scenario run.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
	OutcomeSkip Outcome = "skip"
)

// ScenarioResult is the struct that is serialized as JSON to disk as the
// archival record of one scenario run.
type ScenarioResult struct {
	// GitShortCommit is the Git commit (short form) of the running harness
	// code.
	GitShortCommit string
	// Version is the symbolic version (if any) of the running harness code.
	Version string

	// RunID identifies all scenarios executed by one runner invocation.
	RunID string
	// Testbed is the name of the test bed the run executed on.
	Testbed string
	// Suite is the scenario's suite (aware, softap, direct, usd,
	// connection).
	Suite string
	// Scenario is the registered scenario name.
	Scenario string

	// Devices lists the serials that took part, in testbed order.
	Devices []DeviceInfo

	// StartTime is the time when the scenario started. It does not include
	// snippet setup time.
	StartTime time.Time
	// EndTime is the time when the scenario ended.
	EndTime time.Time

	// Outcome records pass, fail or skip.
	Outcome Outcome
	// FailureMessage carries the error text for failed runs and the skip
	// reason for skipped ones.
	FailureMessage string `json:",omitempty"`

	// Measurements holds the aggregated samples the scenario recorded.
	Measurements []Measurement `json:",omitempty"`
}

// DeviceInfo identifies one device in the archival record.
type DeviceInfo struct {
	Serial string
	// BuildID is the ro.build.id property at run time.
	BuildID string `json:",omitempty"`
	// Model is the ro.product.model property at run time.
	Model string `json:",omitempty"`
}

// Measurement is one named sample set recorded by a scenario, e.g. the
// discovery latency of a single power-setting configuration.
type Measurement struct {
	// Name identifies the measurement, e.g.
	// "discovery_latency_dw24_1_dw5_1".
	Name string
	// Unit is the sample unit ("ms", "mbps", "count").
	Unit string `json:",omitempty"`
	// Summary aggregates the samples.
	Summary stats.Summary
	// FailedIterations counts loop iterations that produced no sample.
	FailedIterations int `json:",omitempty"`
	// Extra carries scenario-specific scalar facts (channel MHz, interface
	// name).
	Extra []KV `json:",omitempty"`
}

// KV is a string key-value pair. Archival records use it instead of a map so
// bigquery.InferSchema can type the column.
type KV struct {
	Key   string
	Value string
}
