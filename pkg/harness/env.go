package harness

import (
	"github.com/charmbracelet/log"

	"github.com/mdtb/wifitest/pkg/device"
	"github.com/mdtb/wifitest/pkg/testbed"
)

// Env is what a scenario's Run receives: the devices it may use, the testbed
// parameters, a scenario-scoped logger, the measurement recorder, and a
// directory for auxiliary output (CSV exports, screenshots).
type Env struct {
	Devices []*device.AndroidDevice
	Testbed *testbed.Config
	Log     *log.Logger
	Record  *Recorder
	OutDir  string
}

// Device returns the i-th testbed device.
func (e *Env) Device(i int) *device.AndroidDevice {
	return e.Devices[i]
}

// Param returns a testbed parameter with a default.
func (e *Env) Param(key, def string) string {
	return e.Testbed.Param(key, def)
}

// ParamInt returns a testbed parameter parsed as an integer.
func (e *Env) ParamInt(key string, def int) int {
	return e.Testbed.ParamInt(key, def)
}
