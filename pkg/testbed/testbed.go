// Package testbed loads the JSON description of the physical test bed: which
// devices take part in a run and the free-form parameters scenarios read.
package testbed

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// DeviceConfig identifies one attached Android device.
type DeviceConfig struct {
	// Serial is the adb serial number.
	Serial string `json:"serial"`
	// Role is an optional hint ("dut", "reference") scenarios may use to
	// pick devices deterministically.
	Role string `json:"role,omitempty"`
}

// Config is a parsed testbed file.
type Config struct {
	// Name identifies the bed in logs and archived results.
	Name string `json:"name"`
	// Devices lists the attached devices in order. Scenarios index into this
	// slice, so order matters.
	Devices []DeviceConfig `json:"devices"`
	// Params holds free-form string parameters (country code, iteration
	// counts, SSID overrides).
	Params map[string]string `json:"params,omitempty"`
}

// Load reads and validates a testbed config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading testbed config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing testbed config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("testbed config %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks structural invariants: a name, at least one device, and no
// duplicate serials.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("missing testbed name")
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("no devices configured")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Serial == "" {
			return fmt.Errorf("device %d has no serial", i)
		}
		if seen[d.Serial] {
			return fmt.Errorf("duplicate device serial %q", d.Serial)
		}
		seen[d.Serial] = true
	}
	return nil
}

// Param returns the named parameter or def when absent.
func (c *Config) Param(key, def string) string {
	if v, ok := c.Params[key]; ok {
		return v
	}
	return def
}

// ParamInt returns the named parameter parsed as an integer, or def when
// absent or malformed.
func (c *Config) ParamInt(key string, def int) int {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ParamDuration returns the named parameter parsed with time.ParseDuration,
// or def when absent or malformed.
func (c *Config) ParamDuration(key string, def time.Duration) time.Duration {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
