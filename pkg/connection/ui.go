package connection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mdtb/wifitest/internal/adb"
	"github.com/mdtb/wifitest/internal/snippet"
)

const (
	uiOperationTimeout = 10 * time.Second
	uiResponseDelay    = 3 * time.Second
)

// UI drives the uiautomator surface of the snippet to click through the
// system dialogs the connection flows raise. On a failed wait it captures a
// screenshot and the window hierarchy into OutDir before returning the error.
type UI struct {
	caller snippet.Caller
	adb    *adb.Device
	OutDir string
	log    *log.Logger
}

// NewUI wraps a snippet caller and adb endpoint for UI interaction. Snapshots
// of failed waits land in outDir.
func NewUI(c snippet.Caller, d *adb.Device, outDir string, logger *log.Logger) *UI {
	if logger == nil {
		logger = log.Default()
	}
	return &UI{caller: c, adb: d, OutDir: outDir, log: logger}
}

func (u *UI) waitForText(ctx context.Context, text string, timeout time.Duration) (bool, error) {
	raw, err := u.caller.Call(ctx, "uiWaitForTextExists", text, timeout.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("waiting for ui text %q: %w", text, err)
	}
	found, _ := raw.(bool)
	return found, nil
}

func (u *UI) clickText(ctx context.Context, text string) error {
	if _, err := u.caller.Call(ctx, "uiClickText", text); err != nil {
		return fmt.Errorf("clicking ui text %q: %w", text, err)
	}
	return nil
}

// ClickConnectInDialog confirms the network request connection dialog once
// the target SSID shows up in it.
func (u *UI) ClickConnectInDialog(ctx context.Context, ssid string) error {
	found, err := u.waitForText(ctx, ssid, uiOperationTimeout)
	if err != nil {
		return err
	}
	if !found {
		u.Snapshot(ctx, "connection_dialog_missing")
		return fmt.Errorf("connection dialog for %q did not appear within %v", ssid, uiOperationTimeout)
	}
	return u.clickText(ctx, "Connect")
}

// ClickNetworkInDialog selects a network entry in the connection dialog, used
// when the request carries a pattern specifier and the dialog lists matches.
func (u *UI) ClickNetworkInDialog(ctx context.Context, ssid string) error {
	found, err := u.waitForText(ctx, ssid, uiOperationTimeout)
	if err != nil {
		return err
	}
	if !found {
		u.Snapshot(ctx, "connection_dialog_missing")
		return fmt.Errorf("network %q not listed in connection dialog within %v", ssid, uiOperationTimeout)
	}
	return u.clickText(ctx, ssid)
}

// AllowSuggestion confirms the network suggestion approval prompt. Some
// platform versions raise it as a notification rather than a dialog, so a
// missed wait retries once with the notification bar expanded.
func (u *UI) AllowSuggestion(ctx context.Context) error {
	found, err := u.waitForText(ctx, "Allow", CallbackTimeout)
	if err != nil {
		return err
	}
	if !found && u.adb != nil {
		if err := u.adb.OpenNotificationBar(ctx); err != nil {
			return err
		}
		if found, err = u.waitForText(ctx, "Allow", uiOperationTimeout); err != nil {
			return err
		}
	}
	if !found {
		u.Snapshot(ctx, "suggestion_approval_missing")
		return fmt.Errorf("suggestion approval prompt did not appear within %v", CallbackTimeout)
	}
	return u.clickText(ctx, "Allow")
}

// DismissStaleDialogs cancels leftover failure dialogs from earlier runs so
// they do not block the current one.
func (u *UI) DismissStaleDialogs(ctx context.Context) error {
	for _, text := range []string{"No devices found.", "Something came up."} {
		found, err := u.waitForText(ctx, text, uiResponseDelay)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		u.Snapshot(ctx, "stale_dialog")
		if err := u.clickText(ctx, "Cancel"); err != nil {
			return err
		}
	}
	return nil
}

// ReturnHome exits whatever window is open and waits out the animation.
func (u *UI) ReturnHome(ctx context.Context) error {
	if err := u.adb.PressHome(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(uiResponseDelay):
	}
	return nil
}

// Snapshot captures a screenshot and the window hierarchy under OutDir.
// Capture failures are logged, not returned: the snapshot is diagnostics for
// an error already on its way out.
func (u *UI) Snapshot(ctx context.Context, prefix string) {
	if u.OutDir == "" {
		return
	}
	if err := os.MkdirAll(u.OutDir, 0o755); err != nil {
		u.log.Warn("cannot create snapshot dir", "dir", u.OutDir, "error", err)
		return
	}
	stamp := time.Now().Format("20060102-150405")
	base := filepath.Join(u.OutDir, fmt.Sprintf("%s_%s", prefix, stamp))
	if err := u.adb.Screenshot(ctx, base+".png"); err != nil {
		u.log.Warn("screenshot failed", "error", err)
	}
	raw, err := u.caller.Call(ctx, "uiDumpWindowHierarchy")
	if err != nil {
		u.log.Warn("hierarchy dump failed", "error", err)
		return
	}
	hierarchy, _ := raw.(string)
	if err := os.WriteFile(base+".xml", []byte(hierarchy), 0o644); err != nil {
		u.log.Warn("cannot write hierarchy dump", "error", err)
	}
}
