// Package aware drives Wi-Fi Aware (NAN) operations over the aware snippet:
// attach, publish/subscribe discovery, NAN data paths, and the latency and
// throughput measurements built on them.
package aware

import "time"

// SnippetPackage is the instrumentation apk exposing the aware RPC surface.
const SnippetPackage = "com.google.snippet.wifi.aware"

// RuntimePermissions must be granted to the snippet before any aware call.
var RuntimePermissions = []string{
	"android.permission.ACCESS_FINE_LOCATION",
	"android.permission.ACCESS_COARSE_LOCATION",
	"android.permission.NEARBY_WIFI_DEVICES",
}

// Attach session event names.
const (
	eventAttached        = "onAttached"
	eventAttachFailed    = "onAttachFailed"
	eventIdentityChanged = "onIdentityChanged"
)

// Discovery session event names. The snippet posts one discoverResult event
// whose callbackName field carries the platform callback; service discovery
// is posted under its own name.
const (
	eventDiscoverResult    = "discoverResult"
	eventServiceDiscovered = "onServiceDiscovered"

	callbackPublishStarted   = "onPublishStarted"
	callbackSubscribeStarted = "onSubscribeStarted"
)

// eventAwareAvailable is the broadcast event posted by
// wifiAwareMonitorStateChange when NAN becomes usable.
const eventAwareAvailable = "WifiAwareStateAvailable"

// Network callback event plumbing shared with the connection package.
const (
	eventNetworkCallback = "NetworkCallback"

	callbackCapabilitiesChanged   = "onCapabilitiesChanged"
	callbackLinkPropertiesChanged = "onLinkPropertiesChanged"
)

// Keys in network callback event payloads.
const (
	keyTimestampMs      = "timestampMs"
	keyAwareIPv6        = "aware_ipv6"
	keyChannelMHz       = "channelInMhz"
	keyInterfaceName    = "interfaceName"
	keyNetworkSpecifier = "network_specifier"
	keyMac              = "mac"
)

// PublishType selects how a publisher advertises.
type PublishType int

const (
	PublishUnsolicited PublishType = 0
	PublishSolicited   PublishType = 1
)

// SubscribeType selects how a subscriber listens.
type SubscribeType int

const (
	SubscribePassive SubscribeType = 0
	SubscribeActive  SubscribeType = 1
)

// Data path roles.
const (
	RoleInitiator = 0
	RoleResponder = 1
)

// transportWifiAware is NetworkCapabilities.TRANSPORT_WIFI_AWARE.
const transportWifiAware = 5

// PowerSettings is a discovery window (DW) configuration: how many beacon
// intervals apart the device wakes on each band.
type PowerSettings struct {
	DW24GHz int
	DW5GHz  int
}

var (
	// PowerInteractive is the platform profile while the screen is on.
	PowerInteractive = PowerSettings{DW24GHz: 1, DW5GHz: 1}
	// PowerNonInteractive is the platform profile while the screen is off.
	PowerNonInteractive = PowerSettings{DW24GHz: 4, DW5GHz: 0}
)

const (
	// DefaultTimeout bounds individual attach and discovery waits.
	DefaultTimeout = 30 * time.Second

	// requestNetworkTimeout bounds each network callback wait during data
	// path setup.
	requestNetworkTimeout = 15 * time.Second

	// ClusterSettleTime gives two freshly attached devices time to form a
	// NAN cluster before out-of-band discovery proceeds.
	ClusterSettleTime = 5 * time.Second

	// publishSettleTime lets a long-lived publisher reach steady state
	// before discovery latency sampling starts.
	publishSettleTime = 10 * time.Second
)
