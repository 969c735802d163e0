package suites

import (
	"context"
	"time"

	"github.com/mdtb/wifitest/pkg/harness"
	"github.com/mdtb/wifitest/pkg/usd"
)

const usdSnippet = "usd"

func init() {
	harness.Register(harness.Scenario{
		Name:        "usd.discovery_message",
		Suite:       "usd",
		Description: "USD publish, subscriber discovery and one-shot message send",
		MinDevices:  2,
		Run:         runUsdDiscoveryMessage,
	})
}

func runUsdDiscoveryMessage(ctx context.Context, env *harness.Env) error {
	if err := ensureSnippet(ctx, env, usdSnippet, usd.SnippetPackage, usd.RuntimePermissions); err != nil {
		return err
	}
	publisher, subscriber := env.Device(0), env.Device(1)
	pubC, subC := publisher.Snippet(usdSnippet), subscriber.Snippet(usdSnippet)

	cfg := usd.Config{
		ServiceName: env.Param("usd_service_name", usd.DefaultServiceName),
		SSI:         env.Param("usd_ssi", usd.DefaultSSI),
	}
	if err := usd.StartPublish(ctx, pubC, cfg); err != nil {
		return err
	}
	defer func() {
		_ = usd.StopPublish(ctx, pubC)
		_ = usd.StopSubscribe(ctx, subC)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(usd.PublishSettleTime):
	}

	msg := env.Param("usd_message", usd.DefaultMessage)
	if err := usd.SubscribeDiscoverAndSend(ctx, subC, cfg, msg); err != nil {
		return err
	}
	env.Log.Info("usd discovery and message send complete", "service", cfg.ServiceName)
	return nil
}
