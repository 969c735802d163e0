package direct

import (
	"context"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/adb"
	"github.com/mdtb/wifitest/internal/snippet"
)

// Peer is one entry of the device's p2p peer list.
type Peer struct {
	Name    string
	Address string
}

// ConnectionInfo is the p2p link state after a connect or group creation.
type ConnectionInfo struct {
	GroupFormed       bool
	IsGroupOwner      bool
	GroupOwnerAddress string
}

// Setup initializes the p2p channel on the device. The device must have
// Wi-Fi enabled and no group active.
func Setup(ctx context.Context, c snippet.Caller) error {
	if _, err := c.Call(ctx, "p2pInitialize"); err != nil {
		return fmt.Errorf("initializing p2p: %w", err)
	}
	return nil
}

// Teardown cancels any in-flight connect, removes the active group and closes
// the channel. Errors from the cleanup RPCs are ignored because the
// corresponding state usually does not exist.
func Teardown(ctx context.Context, c snippet.Caller) {
	_, _ = c.Call(ctx, "p2pCancelConnect")
	_, _ = c.Call(ctx, "p2pRemoveGroup")
	_, _ = c.Call(ctx, "p2pStopPeerDiscovery")
	_, _ = c.Call(ctx, "p2pClose")
}

// DiscoverPeer runs peer discovery until a peer with the wanted address shows
// up in the peer list, or wantAddress is empty and any peer appears.
func DiscoverPeer(ctx context.Context, c snippet.Caller, wantAddress string, timeout time.Duration) (*Peer, error) {
	h, err := c.CallAsync(ctx, "p2pDiscoverPeers")
	if err != nil {
		return nil, fmt.Errorf("starting peer discovery: %w", err)
	}
	var found *Peer
	_, err = h.WaitForEvent(ctx, eventPeersChanged, func(e *snippet.Event) bool {
		for _, p := range decodePeers(e) {
			if wantAddress == "" || p.Address == wantAddress {
				found = &p
				return true
			}
		}
		return false
	}, timeout)
	if err != nil {
		return nil, fmt.Errorf("discovering p2p peer: %w", err)
	}
	return found, nil
}

func decodePeers(e *snippet.Event) []Peer {
	raw, ok := e.Data[keyPeers].([]any)
	if !ok {
		return nil
	}
	peers := make([]Peer, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m[keyDeviceName].(string)
		addr, _ := m[keyDeviceAddress].(string)
		peers = append(peers, Peer{Name: name, Address: addr})
	}
	return peers
}

// DeviceAddress returns the device's own p2p MAC address.
func DeviceAddress(ctx context.Context, c snippet.Caller) (string, error) {
	raw, err := c.Call(ctx, "p2pGetDeviceAddress")
	if err != nil {
		return "", fmt.Errorf("querying p2p device address: %w", err)
	}
	addr, ok := raw.(string)
	if !ok || addr == "" {
		return "", fmt.Errorf("p2pGetDeviceAddress returned %v", raw)
	}
	return addr, nil
}

// Connect negotiates or joins a group with the peer and returns the resulting
// connection info.
func Connect(ctx context.Context, c snippet.Caller, peerAddress string, wps WpsMethod) (*ConnectionInfo, error) {
	config := map[string]any{
		"device_address": peerAddress,
		"wps_setup":      int(wps),
	}
	h, err := c.CallAsync(ctx, "p2pConnect", config)
	if err != nil {
		return nil, fmt.Errorf("p2p connect to %s: %w", peerAddress, err)
	}
	return waitConnectionInfo(ctx, h)
}

// GroupConfig describes a group created up front instead of negotiated.
type GroupConfig struct {
	NetworkName string
	Passphrase  string
	Band        int
}

// DefaultGroupConfig returns the fixed credentials used by the join
// scenarios.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		NetworkName: DefaultNetworkName,
		Passphrase:  DefaultPassphrase,
		Band:        DefaultGroupBand,
	}
}

// CreateGroup brings the device up as group owner with the given credentials.
func CreateGroup(ctx context.Context, c snippet.Caller, cfg GroupConfig) (*ConnectionInfo, error) {
	config := map[string]any{
		"network_name": cfg.NetworkName,
		"passphrase":   cfg.Passphrase,
		"group_band":   cfg.Band,
	}
	h, err := c.CallAsync(ctx, "p2pCreateGroup", config)
	if err != nil {
		return nil, fmt.Errorf("creating p2p group: %w", err)
	}
	info, err := waitConnectionInfo(ctx, h)
	if err != nil {
		return nil, err
	}
	if !info.IsGroupOwner {
		return nil, fmt.Errorf("created a group but device is not its owner")
	}
	return info, nil
}

func waitConnectionInfo(ctx context.Context, h *snippet.CallbackHandler) (*ConnectionInfo, error) {
	e, err := h.WaitAndGet(ctx, eventConnectionInfo, DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for connection info: %w", err)
	}
	formed, _ := e.Bool(keyGroupFormed)
	if !formed {
		return nil, fmt.Errorf("p2p group not formed: %v", e.Data)
	}
	owner, _ := e.Bool(keyIsGroupOwner)
	return &ConnectionInfo{
		GroupFormed:       formed,
		IsGroupOwner:      owner,
		GroupOwnerAddress: e.String(keyGroupOwnerAddress),
	}, nil
}

// ConnectionInfoNow queries the current p2p connection state without waiting
// for a callback.
func ConnectionInfoNow(ctx context.Context, c snippet.Caller) (*ConnectionInfo, error) {
	raw, err := c.Call(ctx, "p2pRequestConnectionInfo")
	if err != nil {
		return nil, fmt.Errorf("requesting connection info: %w", err)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("p2pRequestConnectionInfo returned %T", raw)
	}
	formed, _ := m[keyGroupFormed].(bool)
	owner, _ := m[keyIsGroupOwner].(bool)
	addr, _ := m[keyGroupOwnerAddress].(string)
	return &ConnectionInfo{GroupFormed: formed, IsGroupOwner: owner, GroupOwnerAddress: addr}, nil
}

// RemoveGroup tears the active group down and waits until the device reports
// no group formed.
func RemoveGroup(ctx context.Context, c snippet.Caller, timeout time.Duration) error {
	if _, err := c.Call(ctx, "p2pRemoveGroup"); err != nil {
		return fmt.Errorf("removing p2p group: %w", err)
	}
	deadline := time.Now().Add(timeout)
	for {
		info, err := ConnectionInfoNow(ctx, c)
		if err != nil {
			return err
		}
		if !info.GroupFormed {
			return nil
		}
		if !time.Now().Add(disconnectPollInterval).Before(deadline) {
			return fmt.Errorf("p2p group still formed after %v", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(disconnectPollInterval):
		}
	}
}

// PingGroupOwner verifies reachability of the group owner from the client
// side over the p2p interface.
func PingGroupOwner(ctx context.Context, d *adb.Device, ownerAddress string) error {
	out, err := d.Ping(ctx, 3, ownerAddress)
	if err != nil {
		return fmt.Errorf("pinging group owner %s: %w (%s)", ownerAddress, err, out)
	}
	return nil
}
