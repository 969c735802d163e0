// Package harness registers and runs multidevice Wi-Fi scenarios. Suites
// declare scenarios at init time; the runner executes the registry against
// the devices of a test bed and archives one result per scenario.
package harness

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Scenario is one registered multidevice test.
type Scenario struct {
	// Name uniquely identifies the scenario, e.g.
	// "aware.discovery_latency".
	Name string
	// Suite groups scenarios for filtering and for the archive datatype.
	Suite string
	// Description says what the scenario measures or verifies.
	Description string
	// MinDevices is how many testbed devices the scenario needs.
	MinDevices int
	// RequiresRoot marks scenarios that drive privileged adb commands
	// (firmware parameter overrides).
	RequiresRoot bool
	// Timeout bounds the run. Zero means DefaultTimeout.
	Timeout time.Duration
	// Run executes the scenario.
	Run func(ctx context.Context, env *Env) error
}

// DefaultTimeout applies to scenarios that do not declare one.
const DefaultTimeout = 10 * time.Minute

var (
	registryMu sync.Mutex
	registry   = map[string]Scenario{}
)

// Register adds a scenario to the global registry. It panics on duplicate or
// malformed registrations, which surface at program start.
func Register(s Scenario) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if s.Name == "" || s.Suite == "" || s.Run == nil {
		panic(fmt.Sprintf("scenario registration missing name, suite or run func: %+v", s))
	}
	if s.MinDevices < 1 {
		panic(fmt.Sprintf("scenario %s: MinDevices must be at least 1", s.Name))
	}
	if _, dup := registry[s.Name]; dup {
		panic(fmt.Sprintf("scenario %s registered twice", s.Name))
	}
	registry[s.Name] = s
}

// Scenarios returns the registered scenarios sorted by name.
func Scenarios() []Scenario {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]Scenario, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SkipError marks a scenario as not applicable instead of failed.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "scenario skipped: " + e.Reason
}

// Skipf builds a SkipError.
func Skipf(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}
