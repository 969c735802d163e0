// Package usd drives unsynchronized service discovery (USD) sessions on a
// snippet device. USD is one-shot: the subscriber discovers the publisher and
// sends a message in a single blocking RPC, with no callback events to poll.
package usd

import (
	"context"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/snippet"
)

// SnippetPackage is the instrumentation package exposing the USD RPCs.
const SnippetPackage = "com.google.snippet.wifi.usd"

// RuntimePermissions must be granted to SnippetPackage before use.
var RuntimePermissions = []string{
	"android.permission.ACCESS_FINE_LOCATION",
	"android.permission.NEARBY_WIFI_DEVICES",
}

// PublishSettleTime is how long a fresh publish session needs before a
// subscriber can reliably discover it.
const PublishSettleTime = 2 * time.Second

// Defaults used by the discovery scenarios.
const (
	DefaultServiceName = "_test"
	DefaultSSI         = "6677"
	DefaultMessage     = "test message!"
)

// Config names the advertised service and its service specific info blob.
type Config struct {
	ServiceName string
	SSI         string
}

// DefaultConfig returns the service configuration the scenarios use.
func DefaultConfig() Config {
	return Config{ServiceName: DefaultServiceName, SSI: DefaultSSI}
}

// StartPublish starts advertising the service. The RPC blocks until the
// session is live on the device.
func StartPublish(ctx context.Context, c snippet.Caller, cfg Config) error {
	if _, err := c.Call(ctx, "startUsdPublishSession", cfg.ServiceName, cfg.SSI); err != nil {
		return fmt.Errorf("starting usd publish session: %w", err)
	}
	return nil
}

// StopPublish tears down the publish session. Safe to call when none is
// active.
func StopPublish(ctx context.Context, c snippet.Caller) error {
	_, err := c.Call(ctx, "stopUsdPublishSession")
	return err
}

// SubscribeDiscoverAndSend subscribes to the service, waits for discovery and
// sends msg to the discovered peer, all in one device-side call. An error
// means any of the three steps failed.
func SubscribeDiscoverAndSend(ctx context.Context, c snippet.Caller, cfg Config, msg string) error {
	if _, err := c.Call(ctx, "subscribeDiscoverAndSendMessage", cfg.ServiceName, cfg.SSI, msg); err != nil {
		return fmt.Errorf("usd subscribe and send: %w", err)
	}
	return nil
}

// StopSubscribe tears down the subscribe session. Safe to call when none is
// active.
func StopSubscribe(ctx context.Context, c snippet.Caller) error {
	_, err := c.Call(ctx, "stopUsdSubscribeSession")
	return err
}
