package softap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/snippet"
)

// Tethering and connect event names.
const (
	eventTetherStateChanged = "TetherStateChangedReceiver"
	eventNetworkConnected   = "WifiNetworkConnected"
	eventStateChanged       = "WifiStateChanged"

	eventConnectedClientsChanged = "onConnectedClientsChanged"

	keyConnectedClientsCount = "connectedClientsCount"
	keyEnabled               = "enabled"
	keyNetworkID             = "networkId"
)

// StartTethering configures the SoftAP and brings tethering up, waiting for
// the tether state broadcast.
func StartTethering(ctx context.Context, c snippet.Caller, cfg Config) error {
	ok, err := c.Call(ctx, "wifiSetWifiApConfiguration", cfg.toMap())
	if err != nil {
		return fmt.Errorf("setting ap configuration: %w", err)
	}
	if accepted, _ := ok.(bool); !accepted {
		return errors.New("ap configuration rejected")
	}
	state, err := c.CallAsync(ctx, "tetheringStartTrackingTetherStateChange")
	if err != nil {
		return fmt.Errorf("tracking tether state: %w", err)
	}
	defer c.Call(ctx, "tetheringStopTrackingTetherStateChange")
	if _, err := c.CallAsync(ctx, "tetheringStartTetheringWithProvisioning", 0, false); err != nil {
		return fmt.Errorf("starting tethering: %w", err)
	}
	if _, err := state.WaitAndGet(ctx, eventTetherStateChanged, CallbackTimeout); err != nil {
		return fmt.Errorf("waiting for tether state change: %w", err)
	}
	return nil
}

// StopTethering tears the SoftAP down if it is up.
func StopTethering(ctx context.Context, c snippet.Caller) error {
	up, err := IsApEnabled(ctx, c)
	if err != nil {
		return err
	}
	if !up {
		return nil
	}
	if _, err := c.Call(ctx, "tetheringStopTethering"); err != nil {
		return fmt.Errorf("stopping tethering: %w", err)
	}
	disabled, err := c.Call(ctx, "wifiWaitForTetheringDisabled")
	if err != nil {
		return err
	}
	if done, _ := disabled.(bool); !done {
		return errors.New("tethering still enabled after stop")
	}
	return nil
}

// IsApEnabled reports whether the SoftAP is up.
func IsApEnabled(ctx context.Context, c snippet.Caller) (bool, error) {
	raw, err := c.Call(ctx, "wifiIsApEnabled")
	if err != nil {
		return false, err
	}
	up, _ := raw.(bool)
	return up, nil
}

// TrackConnectedClients registers a SoftAP callback for client tracking. The
// returned handler delivers onConnectedClientsChanged events; close with
// StopTrackingConnectedClients.
func TrackConnectedClients(ctx context.Context, c snippet.Caller) (*snippet.CallbackHandler, error) {
	h, err := c.CallAsync(ctx, "wifiRegisterSoftApCallback")
	if err != nil {
		return nil, fmt.Errorf("registering softap callback: %w", err)
	}
	return h, nil
}

// StopTrackingConnectedClients unregisters a SoftAP callback.
func StopTrackingConnectedClients(ctx context.Context, c snippet.Caller, h *snippet.CallbackHandler) error {
	_, err := c.Call(ctx, "wifiUnregisterSoftApCallback", h.ID())
	return err
}

// WaitConnectedClients blocks until the AP reports the wanted client count.
func WaitConnectedClients(ctx context.Context, h *snippet.CallbackHandler, want int, timeout time.Duration) error {
	_, err := h.WaitForEvent(ctx, eventConnectedClientsChanged, func(e *snippet.Event) bool {
		n, ok := e.Int(keyConnectedClientsCount)
		return ok && int(n) == want
	}, timeout)
	if err != nil {
		return fmt.Errorf("waiting for %d connected clients: %w", want, err)
	}
	return nil
}

// ConnectedClientsCount polls the AP-side client count.
func ConnectedClientsCount(ctx context.Context, c snippet.Caller) (int, error) {
	raw, err := c.Call(ctx, "wifiGetSoftApConnectedClientsCount")
	if err != nil {
		return 0, err
	}
	n, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("client count is %T, not a number", raw)
	}
	return int(n), nil
}

// Connect joins the station to a network and verifies the connected SSID and
// the resulting Wi-Fi state.
func Connect(ctx context.Context, c snippet.Caller, cfg Config) error {
	state, err := c.CallAsync(ctx, "wifiStartTrackForStateChange")
	if err != nil {
		return fmt.Errorf("tracking wifi state: %w", err)
	}
	defer c.Call(ctx, "wifiStopTrackForStateChange")

	if _, err := c.Call(ctx, "wifiConnecting", cfg.toMap()); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.SSID, err)
	}
	connected, err := state.WaitAndGet(ctx, eventNetworkConnected, CallbackTimeout)
	if err != nil {
		return fmt.Errorf("waiting for connection to %s: %w", cfg.SSID, err)
	}
	if got := connected.String(keySSID); got != cfg.SSID {
		return fmt.Errorf("connected to %q, want %q", got, cfg.SSID)
	}
	stateEvent, err := state.WaitAndGet(ctx, eventStateChanged, CallbackTimeout)
	if err != nil {
		return fmt.Errorf("waiting for wifi state: %w", err)
	}
	if enabled, _ := stateEvent.Bool(keyEnabled); !enabled {
		return errors.New("wifi reported disabled after connect")
	}
	return nil
}

// ResetWifi forgets every configured network on the device.
func ResetWifi(ctx context.Context, c snippet.Caller) error {
	networks, err := configuredNetworks(ctx, c)
	if err != nil {
		return err
	}
	removed := map[int64]bool{}
	for _, id := range networks {
		if removed[id] {
			continue
		}
		if _, err := c.Call(ctx, "wifiForgetNetwork", id); err != nil {
			return fmt.Errorf("forgetting network %d: %w", id, err)
		}
		removed[id] = true
	}
	remaining, err := configuredNetworks(ctx, c)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return fmt.Errorf("%d networks survived the reset", len(remaining))
	}
	return nil
}

func configuredNetworks(ctx context.Context, c snippet.Caller) ([]int64, error) {
	raw, err := c.Call(ctx, "wifiGetConfiguredNetworks")
	if err != nil {
		return nil, fmt.Errorf("listing configured networks: %w", err)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, nil
	}
	var ids []int64
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := m[keyNetworkID].(float64); ok {
			ids = append(ids, int64(id))
		}
	}
	return ids, nil
}

// ConnectionStandard returns the station's current connection standard, e.g.
// WifiStandard11AX.
func ConnectionStandard(ctx context.Context, c snippet.Caller) (int, error) {
	raw, err := c.Call(ctx, "wifiGetConnectionStandard")
	if err != nil {
		return 0, err
	}
	std, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("connection standard is %T, not a number", raw)
	}
	return int(std), nil
}

// IPv4Addresses lists the IPv4 addresses of an interface on the device.
func IPv4Addresses(ctx context.Context, c snippet.Caller, iface string) ([]string, error) {
	raw, err := c.Call(ctx, "connectivityGetIPv4Addresses", iface)
	if err != nil {
		return nil, fmt.Errorf("listing ipv4 addresses of %s: %w", iface, err)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("address list is %T", raw)
	}
	var addrs []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			addrs = append(addrs, s)
		}
	}
	return addrs, nil
}
