package device

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ConcurrentExec runs fn once per device in parallel and waits for all of
// them. The first error cancels the shared context and is returned.
func ConcurrentExec(ctx context.Context, devices []*AndroidDevice, fn func(ctx context.Context, d *AndroidDevice) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range devices {
		d := d
		g.Go(func() error {
			return fn(gctx, d)
		})
	}
	return g.Wait()
}
