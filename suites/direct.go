package suites

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mdtb/wifitest/pkg/device"
	"github.com/mdtb/wifitest/pkg/direct"
	"github.com/mdtb/wifitest/pkg/harness"
)

const directSnippet = "direct"

func init() {
	harness.Register(harness.Scenario{
		Name:        "direct.upnp_service",
		Suite:       "direct",
		Description: "p2p UPnP local service discovery with narrowing search targets",
		MinDevices:  2,
		Run:         runDirectUpnpService,
	})
	harness.Register(harness.Scenario{
		Name:        "direct.bonjour_service",
		Suite:       "direct",
		Description: "p2p DNS-SD local service discovery filtered by type and instance",
		MinDevices:  2,
		Run:         runDirectBonjourService,
	})
	harness.Register(harness.Scenario{
		Name:        "direct.autonomous_group",
		Suite:       "direct",
		Description: "autonomous p2p group bring-up and teardown",
		MinDevices:  1,
		Run:         runDirectAutonomousGroup,
	})
	harness.Register(harness.Scenario{
		Name:        "direct.country_connect",
		Suite:       "direct",
		Description: "p2p negotiation, ping and disconnect under different country codes",
		MinDevices:  2,
		Timeout:     30 * time.Minute,
		Run:         runDirectCountryConnect,
	})
}

func directSetup(ctx context.Context, env *harness.Env) (owner, client *device.AndroidDevice, err error) {
	if err := ensureSnippet(ctx, env, directSnippet, direct.SnippetPackage, nil); err != nil {
		return nil, nil, err
	}
	for _, d := range env.Devices[:2] {
		if err := direct.Setup(ctx, d.Snippet(directSnippet)); err != nil {
			return nil, nil, fmt.Errorf("p2p setup on %s: %w", d.Serial, err)
		}
	}
	return env.Device(0), env.Device(1), nil
}

func directTeardown(ctx context.Context, env *harness.Env) {
	for _, d := range env.Devices[:2] {
		direct.Teardown(ctx, d.Snippet(directSnippet))
	}
}

func functionSwitchPause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(direct.FunctionSwitchTime):
		return nil
	}
}

func runDirectUpnpService(ctx context.Context, env *harness.Env) error {
	owner, client, err := directSetup(ctx, env)
	if err != nil {
		return err
	}
	defer directTeardown(ctx, env)
	ownerC, clientC := owner.Snippet(directSnippet), client.Snippet(directSnippet)

	if err := direct.AddUpnpLocalService(ctx, ownerC, direct.UpnpRenderer); err != nil {
		return err
	}
	defer func() { _ = direct.ClearLocalServices(ctx, ownerC) }()

	rootName := "uuid:" + direct.UpnpRenderer.UUID + "::upnp:rootdevice"
	queries := []struct {
		query string
		want  string
	}{
		{"", rootName},
		{"ssdp:all", rootName},
		{"upnp:rootdevice", rootName},
	}
	for i, q := range queries {
		if i > 0 {
			if err := functionSwitchPause(ctx); err != nil {
				return err
			}
		}
		names, err := direct.UpnpQuery(ctx, clientC, q.query, direct.DefaultTimeout)
		if err != nil {
			return err
		}
		if !containsName(names, q.want) {
			return fmt.Errorf("upnp query %q returned %v, missing %s", q.query, names, q.want)
		}
		env.Log.Info("upnp query answered", "query", q.query, "services", len(names))
	}
	return nil
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

func runDirectBonjourService(ctx context.Context, env *harness.Env) error {
	owner, client, err := directSetup(ctx, env)
	if err != nil {
		return err
	}
	defer directTeardown(ctx, env)
	ownerC, clientC := owner.Snippet(directSnippet), client.Snippet(directSnippet)

	for _, s := range []direct.BonjourService{direct.BonjourIppPrinter, direct.BonjourAfpServer} {
		if err := direct.AddBonjourLocalService(ctx, ownerC, s); err != nil {
			return err
		}
	}
	defer func() { _ = direct.ClearLocalServices(ctx, ownerC) }()

	queries := []struct {
		serviceType string
		instance    string
		want        string
	}{
		{"", "", direct.BonjourIppPrinter.InstanceName},
		{"_ipp._tcp", "", direct.BonjourIppPrinter.InstanceName},
		{"_ipp._tcp", "MyPrinter", direct.BonjourIppPrinter.InstanceName},
		{"_afpovertcp._tcp", "Example", direct.BonjourAfpServer.InstanceName},
	}
	for i, q := range queries {
		if i > 0 {
			if err := functionSwitchPause(ctx); err != nil {
				return err
			}
		}
		responses, err := direct.BonjourQuery(ctx, clientC, q.serviceType, q.instance, direct.DefaultTimeout)
		if err != nil {
			return err
		}
		if !containsInstance(responses, q.want) {
			return fmt.Errorf("bonjour query (%q, %q) returned %d responses, missing %s",
				q.serviceType, q.instance, len(responses), q.want)
		}
		env.Log.Info("bonjour query answered",
			"type", q.serviceType, "instance", q.instance, "responses", len(responses))
	}
	return nil
}

func containsInstance(responses []direct.DnsSdResponse, want string) bool {
	for _, r := range responses {
		if r.InstanceName == want {
			return true
		}
	}
	return false
}

func runDirectAutonomousGroup(ctx context.Context, env *harness.Env) error {
	if err := ensureSnippet(ctx, env, directSnippet, direct.SnippetPackage, nil); err != nil {
		return err
	}
	owner := env.Device(0)
	c := owner.Snippet(directSnippet)
	if err := direct.Setup(ctx, c); err != nil {
		return err
	}
	defer direct.Teardown(ctx, c)

	info, err := direct.CreateGroup(ctx, c, direct.DefaultGroupConfig())
	if err != nil {
		return err
	}
	env.Log.Info("group formed", "owner_address", info.GroupOwnerAddress)

	now, err := direct.ConnectionInfoNow(ctx, c)
	if err != nil {
		return err
	}
	if !now.GroupFormed || !now.IsGroupOwner {
		return fmt.Errorf("group state inconsistent after formation: %+v", now)
	}
	return direct.RemoveGroup(ctx, c, direct.DefaultTimeout)
}

func runDirectCountryConnect(ctx context.Context, env *harness.Env) error {
	countries := strings.Split(env.Param("p2p_country_codes", "US,JP,DE"), ",")
	if err := ensureSnippet(ctx, env, directSnippet, direct.SnippetPackage, nil); err != nil {
		return err
	}
	owner, client := env.Device(0), env.Device(1)
	defer func() {
		_ = owner.Adb.ClearCountryCode(ctx)
		_ = client.Adb.ClearCountryCode(ctx)
	}()

	for i, country := range countries {
		country = strings.TrimSpace(country)
		if i > 0 {
			if err := functionSwitchPause(ctx); err != nil {
				return err
			}
		}
		env.Log.Info("p2p connect round", "country", country)
		if err := connectPingDisconnect(ctx, env, owner, client, country); err != nil {
			return fmt.Errorf("country %s: %w", country, err)
		}
	}
	return nil
}

func connectPingDisconnect(ctx context.Context, env *harness.Env, owner, client *device.AndroidDevice, country string) error {
	for _, d := range []*device.AndroidDevice{owner, client} {
		if err := d.Adb.SetCountryCode(ctx, country); err != nil {
			return err
		}
		if err := direct.Setup(ctx, d.Snippet(directSnippet)); err != nil {
			return err
		}
	}
	defer directTeardown(ctx, env)

	ownerC, clientC := owner.Snippet(directSnippet), client.Snippet(directSnippet)
	ownerAddr, err := direct.DeviceAddress(ctx, ownerC)
	if err != nil {
		return err
	}
	if _, err := direct.DiscoverPeer(ctx, clientC, ownerAddr, direct.DefaultTimeout); err != nil {
		return err
	}
	info, err := direct.Connect(ctx, clientC, ownerAddr, direct.WpsPBC)
	if err != nil {
		return err
	}

	// Negotiation decides ownership, so ping from whichever side is not the
	// group owner.
	pingSide := client
	if info.IsGroupOwner {
		pingSide = owner
	}
	if err := direct.PingGroupOwner(ctx, pingSide.Adb, info.GroupOwnerAddress); err != nil {
		return err
	}
	return direct.RemoveGroup(ctx, clientC, direct.DefaultTimeout)
}
