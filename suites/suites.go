// Package suites holds the scenario catalog. Each file registers the
// scenarios of one snippet surface at init time; importing the package for
// side effects populates the harness registry.
package suites

import (
	"context"

	"github.com/mdtb/wifitest/pkg/device"
	"github.com/mdtb/wifitest/pkg/harness"
)

// ensureSnippet loads a snippet on every device of the scenario, granting the
// runtime permissions it needs first. Devices that already carry the snippet
// from an earlier scenario are left alone.
func ensureSnippet(ctx context.Context, env *harness.Env, name, pkg string, permissions []string) error {
	return device.ConcurrentExec(ctx, env.Devices, func(ctx context.Context, d *device.AndroidDevice) error {
		if d.HasSnippet(name) {
			return nil
		}
		for _, p := range permissions {
			if err := d.Adb.GrantPermission(ctx, pkg, p); err != nil {
				return err
			}
		}
		return d.LoadSnippet(ctx, name, pkg)
	})
}
