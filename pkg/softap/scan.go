package softap

import (
	"context"
	"fmt"
	"time"

	"github.com/mdtb/wifitest/internal/snippet"
)

// ScanForSSID runs up to maxTries connectivity scans and reports whether the
// SSID shows up. Zero maxTries means the default.
func ScanForSSID(ctx context.Context, c snippet.Caller, ssid string, maxTries int) (bool, error) {
	if maxTries <= 0 {
		maxTries = defaultScanTries
	}
	for i := 0; i < maxTries; i++ {
		ssids, err := scanSSIDs(ctx, c)
		if err != nil {
			return false, err
		}
		for _, s := range ssids {
			if s == ssid {
				return true, nil
			}
		}
		if i+1 == maxTries {
			break
		}
		select {
		case <-time.After(scanInterval):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, nil
}

func scanSSIDs(ctx context.Context, c snippet.Caller) ([]string, error) {
	raw, err := c.Call(ctx, "wifiScanAndGetResults")
	if err != nil {
		return nil, fmt.Errorf("scanning: %w", err)
	}
	// Throttling would starve the repeated scans some scenarios run.
	if _, err := c.Call(ctx, "wifiSetScanThrottleDisable"); err != nil {
		return nil, fmt.Errorf("disabling scan throttle: %w", err)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("scan results are %T, not a list", raw)
	}
	var ssids []string
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := m[keySSID].(string); ok {
			ssids = append(ssids, s)
		}
	}
	return ssids, nil
}
