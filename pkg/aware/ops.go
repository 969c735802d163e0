package aware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mdtb/wifitest/internal/adb"
	"github.com/mdtb/wifitest/internal/snippet"
)

// WaitAvailable returns once NAN is usable on the device, registering a state
// change monitor when it is not yet.
func WaitAvailable(ctx context.Context, c snippet.Caller, timeout time.Duration) error {
	raw, err := c.Call(ctx, "wifiAwareIsAvailable")
	if err != nil {
		return fmt.Errorf("querying aware availability: %w", err)
	}
	if ok, _ := raw.(bool); ok {
		return nil
	}
	h, err := c.CallAsync(ctx, "wifiAwareMonitorStateChange")
	if err != nil {
		return fmt.Errorf("monitoring aware state: %w", err)
	}
	if _, err := h.WaitAndGet(ctx, eventAwareAvailable, timeout); err != nil {
		return fmt.Errorf("waiting for aware to become available: %w", err)
	}
	return nil
}

// Attach creates a NAN attach session and returns its session reference.
func Attach(ctx context.Context, c snippet.Caller) (string, error) {
	h, err := c.CallAsync(ctx, "wifiAwareAttach")
	if err != nil {
		return "", fmt.Errorf("aware attach: %w", err)
	}
	if _, err := h.WaitAndGet(ctx, eventAttached, DefaultTimeout); err != nil {
		return "", fmt.Errorf("waiting for attach confirmation: %w", err)
	}
	attached, err := c.Call(ctx, "wifiAwareIsSessionAttached", h.ID())
	if err != nil {
		return "", fmt.Errorf("verifying attach session: %w", err)
	}
	if ok, _ := attached.(bool); !ok {
		return "", fmt.Errorf("attach reported success but session %s is not attached", h.ID())
	}
	return h.ID(), nil
}

// AttachWithIdentity attaches with an identity listener and returns the
// session reference plus the device's NAN discovery MAC address, needed for
// out-of-band data path setup.
func AttachWithIdentity(ctx context.Context, c snippet.Caller) (session, mac string, err error) {
	h, err := c.CallAsync(ctx, "wifiAwareAttached", true)
	if err != nil {
		return "", "", fmt.Errorf("aware attach with identity: %w", err)
	}
	if _, err := h.WaitAndGet(ctx, eventAttached, DefaultTimeout); err != nil {
		return "", "", fmt.Errorf("waiting for attach confirmation: %w", err)
	}
	identity, err := h.WaitAndGet(ctx, eventIdentityChanged, DefaultTimeout)
	if err != nil {
		return "", "", fmt.Errorf("waiting for identity change: %w", err)
	}
	mac = identity.String(keyMac)
	if mac == "" {
		return "", "", fmt.Errorf("identity change event carries no mac: %v", identity.Data)
	}
	return h.ID(), mac, nil
}

// Detach releases an attach session.
func Detach(ctx context.Context, c snippet.Caller, session string) error {
	_, err := c.Call(ctx, "wifiAwareDetach", session)
	return err
}

// DiscoverySession is one publish or subscribe session. Started carries the
// session's start confirmation event; discovery latency reads its device-side
// timestamp.
type DiscoverySession struct {
	caller  snippet.Caller
	handler *snippet.CallbackHandler

	// Started is the discoverResult event confirming session start.
	Started *snippet.Event
}

// ID returns the session reference used by close and network specifier RPCs.
func (s *DiscoverySession) ID() string {
	return s.handler.ID()
}

// WaitServiceDiscovered blocks until the subscriber sees the publisher.
func (s *DiscoverySession) WaitServiceDiscovered(ctx context.Context, timeout time.Duration) (*snippet.Event, error) {
	return s.handler.WaitAndGet(ctx, eventServiceDiscovered, timeout)
}

// Close terminates the discovery session.
func (s *DiscoverySession) Close(ctx context.Context) error {
	_, err := s.caller.Call(ctx, "wifiAwareCloseDiscoverSession", s.ID())
	return err
}

// Publish starts a publish discovery session within an attach session.
func Publish(ctx context.Context, c snippet.Caller, session string, cfg PublishConfig) (*DiscoverySession, error) {
	return startDiscovery(ctx, c, "wifiAwarePublish", session, cfg.toMap(), callbackPublishStarted)
}

// Subscribe starts a subscribe discovery session within an attach session.
func Subscribe(ctx context.Context, c snippet.Caller, session string, cfg SubscribeConfig) (*DiscoverySession, error) {
	return startDiscovery(ctx, c, "wifiAwareSubscribe", session, cfg.toMap(), callbackSubscribeStarted)
}

func startDiscovery(ctx context.Context, c snippet.Caller, method, session string, cfg map[string]any, wantCallback string) (*DiscoverySession, error) {
	h, err := c.CallAsync(ctx, method, session, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	started, err := h.WaitAndGet(ctx, eventDiscoverResult, DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: waiting for session start: %w", method, err)
	}
	if got := started.CallbackName(); got != wantCallback {
		return nil, fmt.Errorf("%s: session start reported %q, want %q", method, got, wantCallback)
	}
	return &DiscoverySession{caller: c, handler: h, Started: started}, nil
}

// CloseAllSessions tears down every aware session and test socket on the
// device. Teardown path, so errors are returned but callers usually log them.
func CloseAllSessions(ctx context.Context, c snippet.Caller) error {
	if _, err := c.Call(ctx, "wifiAwareCloseAllWifiAwareSession"); err != nil {
		return err
	}
	_, err := c.Call(ctx, "connectivityReleaseAllSockets")
	return err
}

// SetPowerSettings overrides the firmware discovery window defaults. Needs a
// rooted device.
func SetPowerSettings(ctx context.Context, d *adb.Device, ps PowerSettings) error {
	if !d.IsRoot(ctx) {
		return fmt.Errorf("device %s must be rooted to override discovery windows", d.Serial)
	}
	if _, err := d.Shell(ctx, "cmd", "wifi", "aware", "native-api", "set",
		"dw_default_24ghz", strconv.Itoa(ps.DW24GHz)); err != nil {
		return fmt.Errorf("setting 2.4GHz discovery window: %w", err)
	}
	if _, err := d.Shell(ctx, "cmd", "wifi", "aware", "native-api", "set",
		"dw_default_5ghz", strconv.Itoa(ps.DW5GHz)); err != nil {
		return fmt.Errorf("setting 5GHz discovery window: %w", err)
	}
	return nil
}

// ResetPowerSettings reverts discovery window overrides.
func ResetPowerSettings(ctx context.Context, d *adb.Device) error {
	_, err := d.Shell(ctx, "cmd", "wifi", "aware", "reset")
	return err
}
