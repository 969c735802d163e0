// Package connection drives station-mode Wi-Fi connections on a snippet
// device, either through a network request (WifiNetworkSpecifier) or a
// network suggestion (WifiNetworkSuggestion). Both paths need one user
// approval step in the system UI, handled by the UI helper in this package.
package connection

import "time"

// SnippetPackage is the instrumentation package exposing the WifiManager and
// ConnectivityManager snippet RPCs, along with the uiautomator surface.
const SnippetPackage = "com.google.snippet.wifi"

// BSSIDMask matches any BSSID in the same /40 prefix when used in a
// BssidPattern.
const BSSIDMask = "ff:ff:ff:ff:ff:00"

const (
	// WifiScanTimeout bounds a scan-until-discovered loop.
	WifiScanTimeout = 30 * time.Second
	// RequestNetworkTimeout bounds a network request: it includes a human-scale
	// UI approval step, so it is much longer than the other waits.
	RequestNetworkTimeout = 3 * time.Minute
	// WifiLostTimeout bounds the wait for the lost callback after a
	// disconnect is triggered.
	WifiLostTimeout = 30 * time.Second
	// ContinuousCheckTimeout is the window during which a callback must NOT
	// arrive for a stability check to pass.
	ContinuousCheckTimeout = 40 * time.Second
	// PostConnectBroadcastTimeout bounds the wait for the post-connection
	// broadcast of an app-interaction suggestion.
	PostConnectBroadcastTimeout = 30 * time.Second
	// CapabilitiesMeteredTimeout bounds the full metered-capability
	// verification loop; capabilitiesChangedTimeout bounds each iteration.
	CapabilitiesMeteredTimeout = 80 * time.Second
	capabilitiesChangedTimeout = 15 * time.Second
	// CallbackTimeout bounds generic UI and listener waits.
	CallbackTimeout = 40 * time.Second
)

var scanPollInterval = time.Second

// Event names posted by the connectivity snippet. Lost events arrive under a
// dedicated event name; everything else is multiplexed on NetworkCallback
// with the callback name in the payload.
const (
	eventNetworkCallback = "NetworkCallback"
	eventCallbackLost    = "CallbackLost"

	CallbackAvailable           = "onAvailable"
	CallbackUnavailable         = "onUnavailable"
	CallbackLost                = "Lost"
	CallbackCapabilitiesChanged = "onCapabilitiesChanged"

	eventUserApprovalStatusChange = "onUserApprovalStatusChange"
	eventConnectionStatus         = "onConnectionStatus"
	eventPostConnection           = "android.net.wifi.action.WIFI_NETWORK_SUGGESTION_POST_CONNECTION"

	keyUserApprovalStatus = "UserApprovalStatus"
	keyConnectionStatus   = "ConnectionStatus"
	keySSID               = "SSID"
	keyBSSID              = "BSSID"
)

// Capability is a NetworkCapabilities constant.
type Capability int

const (
	CapabilityNotMetered            Capability = 11
	CapabilityInternet              Capability = 12
	CapabilityTrusted               Capability = 14
	CapabilityValidated             Capability = 16
	CapabilityTemporarilyNotMetered Capability = 25
)

// Transport is a NetworkCapabilities transport constant.
type Transport int

const (
	TransportCellular  Transport = 0
	TransportWifi      Transport = 1
	TransportWifiAware Transport = 5
)

// Suggestion add/remove status codes from WifiManager.
const (
	SuggestionStatusSuccess       = 0
	SuggestionStatusInternalError = 1
	SuggestionStatusAddDuplicate  = 3
	SuggestionStatusRemoveInvalid = 5
)

// Suggestion user approval statuses from WifiManager.
const (
	ApprovalUnknown        = 0
	ApprovalPending        = 1
	ApprovalApprovedByUser = 2
	ApprovalRejectedByUser = 3
)

// Suggestion connection failure statuses from WifiManager.
const (
	ConnectionFailureAssociation    = 1
	ConnectionFailureAuthentication = 2
	ConnectionFailureIPProvisioning = 3
	ConnectionFailureUnknown        = 4
)
