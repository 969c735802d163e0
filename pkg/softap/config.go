package softap

import (
	"strings"

	"github.com/google/uuid"
)

// Config describes one SoftAP configuration.
type Config struct {
	SSID     string
	Password string
	Band     Band
	Hidden   bool
	Security Security
}

func (c Config) toMap() map[string]any {
	m := map[string]any{keySSID: c.SSID}
	if c.Password != "" {
		m[keyPassword] = c.Password
	}
	if c.Band != BandUnset {
		m[keyAPBand] = int(c.Band)
	}
	if c.Hidden {
		m[keyHidden] = true
	}
	if c.Security != "" {
		m[keySecurity] = string(c.Security)
	}
	return m
}

// RandomConfig builds an AP config with a random SSID and password, so
// repeated runs never collide with stale saved networks.
func RandomConfig(band Band) Config {
	return Config{
		SSID:     "softap_" + randToken(),
		Password: randToken(),
		Band:     band,
	}
}

func randToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
