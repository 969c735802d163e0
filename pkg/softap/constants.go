// Package softap drives SoftAP tethering over the wifi snippet: AP
// configuration, start/stop, client tracking, and the station-side scan and
// connect helpers the hotspot scenarios share.
package softap

import "time"

// SnippetPackage is the instrumentation apk exposing the wifi RPC surface.
const SnippetPackage = "com.google.snippet.wifi"

// Band configures which bands the AP may use.
type Band int

const (
	Band2G    Band = 1
	Band5G    Band = 2
	Band2G5G  Band = 3
	Band6G    Band = 4
	Band2G6G  Band = 5
	Band5G6G  Band = 6
	BandAny   Band = 7
	BandUnset Band = 0
)

// Security selects the SoftAP security type.
type Security string

const (
	SecurityOpen              Security = "NONE"
	SecurityWPA2              Security = "WPA2_PSK"
	SecurityWPA3SAETransition Security = "WPA3_SAE_TRANSITION"
	SecurityWPA3SAE           Security = "WPA3_SAE"
)

// WifiStandard11AX is ScanResult.WIFI_STANDARD_11AX.
const WifiStandard11AX = 6

// Wire keys shared by AP configs, station configs and connect events.
const (
	keySSID     = "SSID"
	keyPassword = "password"
	keyAPBand   = "apBand"
	keyHidden   = "hiddenSSID"
	keySecurity = "security"
)

const (
	// CallbackTimeout bounds waits for tethering and connection callbacks.
	CallbackTimeout = 10 * time.Second

	// defaultScanTries is how many scans look for an SSID before giving up.
	defaultScanTries = 3
)

// scanInterval separates consecutive connectivity scans.
var scanInterval = 5 * time.Second

// freqToChannel maps Wi-Fi frequencies (MHz) to channel numbers.
var freqToChannel = map[int]int{
	2412: 1, 2417: 2, 2422: 3, 2427: 4, 2432: 5, 2437: 6, 2442: 7,
	2447: 8, 2452: 9, 2457: 10, 2462: 11, 2467: 12, 2472: 13, 2484: 14,
	5035: 7, 5040: 8, 5045: 9, 5055: 11, 5060: 12, 5080: 16,
	5170: 34, 5180: 36, 5190: 38, 5200: 40, 5210: 42, 5220: 44,
	5230: 46, 5240: 48, 5260: 52, 5280: 56, 5300: 60, 5320: 64,
	5500: 100, 5520: 104, 5540: 108, 5560: 112, 5580: 116, 5600: 120,
	5620: 124, 5640: 128, 5660: 132, 5680: 136, 5700: 140,
	5745: 149, 5765: 153, 5785: 157, 5795: 159, 5805: 161, 5825: 165,
}

// ChannelForFrequency returns the channel number for a frequency in MHz.
func ChannelForFrequency(mhz int) (int, bool) {
	ch, ok := freqToChannel[mhz]
	return ch, ok
}

// Is2GHz reports whether a frequency belongs to the 2.4GHz band.
func Is2GHz(mhz int) bool {
	return mhz >= 2412 && mhz <= 2484
}

// Is5GHz reports whether a frequency belongs to the 5GHz band.
func Is5GHz(mhz int) bool {
	return mhz >= 5035 && mhz <= 5885
}
