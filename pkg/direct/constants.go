// Package direct drives Wi-Fi Direct (p2p) groups and service discovery on a
// snippet device: peer discovery, group negotiation and join, UPnP and
// Bonjour local services with query matching.
package direct

import "time"

// SnippetPackage is the instrumentation package exposing the p2p RPCs.
const SnippetPackage = "com.google.snippet.wifi.direct"

// WpsMethod selects the WPS setup of a p2p connect.
type WpsMethod int

const (
	WpsPBC     WpsMethod = 0
	WpsDisplay WpsMethod = 1
	WpsKeypad  WpsMethod = 2
)

// ServiceType is a WifiP2pServiceInfo service type.
type ServiceType int

const (
	ServiceTypeAll     ServiceType = 0
	ServiceTypeBonjour ServiceType = 1
	ServiceTypeUpnp    ServiceType = 2
)

// Fixed group credentials used when a group is created up front instead of
// negotiated.
const (
	DefaultNetworkName = "DIRECT-xy-Hello"
	DefaultPassphrase  = "P2pWorld1234"
	DefaultGroupBand   = 2
)

const (
	// DefaultTimeout bounds individual p2p callback waits.
	DefaultTimeout = 30 * time.Second
	// FunctionSwitchTime separates consecutive p2p role changes; switching
	// faster makes the supplicant flaky.
	FunctionSwitchTime = 10 * time.Second
	// GroupClientLostTime is how long the framework takes to declare a silent
	// client gone.
	GroupClientLostTime = 60 * time.Second
)

var disconnectPollInterval = time.Second

// Events posted by the p2p snippet.
const (
	eventPeersChanged   = "onPeersChanged"
	eventConnectionInfo = "onConnectionInfoAvailable"
	eventUpnpServices   = "onUpnpServiceAvailable"
	eventDnsSdService   = "onDnsSdServiceAvailable"
	eventDnsSdTxtRecord = "onDnsSdTxtRecordAvailable"

	keyPeers              = "peers"
	keyDeviceName         = "deviceName"
	keyDeviceAddress      = "deviceAddress"
	keyGroupFormed        = "groupFormed"
	keyIsGroupOwner       = "isGroupOwner"
	keyGroupOwnerAddress  = "groupOwnerAddress"
	keyUniqueServiceNames = "uniqueServiceNames"
	keyInstanceName       = "instanceName"
	keyRegistrationType   = "registrationType"
	keyTxtRecords         = "txtRecords"
)
