package testbed

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testbed.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"name": "bench-1",
		"devices": [
			{"serial": "ABC123", "role": "dut"},
			{"serial": "DEF456"}
		],
		"params": {
			"country_code": "US",
			"iterations": "50",
			"discovery_timeout": "20s"
		}
	}`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name != "bench-1" {
		t.Errorf("Name = %q", c.Name)
	}
	if len(c.Devices) != 2 || c.Devices[0].Serial != "ABC123" || c.Devices[0].Role != "dut" {
		t.Errorf("Devices = %+v", c.Devices)
	}
	if got := c.Param("country_code", "GB"); got != "US" {
		t.Errorf("Param = %q", got)
	}
	if got := c.Param("missing", "fallback"); got != "fallback" {
		t.Errorf("Param default = %q", got)
	}
	if got := c.ParamInt("iterations", 10); got != 50 {
		t.Errorf("ParamInt = %d", got)
	}
	if got := c.ParamInt("country_code", 10); got != 10 {
		t.Errorf("ParamInt on non-number = %d", got)
	}
	if got := c.ParamDuration("discovery_timeout", time.Second); got != 20*time.Second {
		t.Errorf("ParamDuration = %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{`},
		{"no name", `{"devices": [{"serial": "A"}]}`},
		{"no devices", `{"name": "x", "devices": []}`},
		{"blank serial", `{"name": "x", "devices": [{"serial": ""}]}`},
		{"duplicate serial", `{"name": "x", "devices": [{"serial": "A"}, {"serial": "A"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Load succeeded on missing file")
	}
}
