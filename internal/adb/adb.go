// Package adb wraps the host adb binary for a single device. All device
// configuration that does not go through the snippet RPC surface (permissions,
// country code, airplane mode, screen state) is done here.
package adb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// How long to keep scanning instrumentation output for the serving banner.
const instrumentTimeout = 30 * time.Second

// servingRe matches the banner printed by the device-side snippet runner once
// its TCP server is listening.
var servingRe = regexp.MustCompile(`SNIPPET SERVING, PORT (\d+)`)

var errNoServingBanner = errors.New("instrumentation ended without a serving banner")

// Commander runs adb with the given arguments. It exists so tests can fake
// command execution.
type Commander interface {
	// Run executes adb with args and returns its combined output.
	Run(ctx context.Context, args ...string) ([]byte, error)
	// Start executes adb with args and returns a reader over its stdout.
	// The process is reaped when the reader is closed or the context ends.
	Start(ctx context.Context, args ...string) (io.ReadCloser, error)
}

type execCommander struct{}

func (execCommander) Run(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "adb", args...).CombinedOutput()
}

func (execCommander) Start(ctx context.Context, args ...string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "adb", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go cmd.Wait()
	return stdout, nil
}

// Device is an adb endpoint for one attached device.
type Device struct {
	Serial string

	cmd Commander
	log *log.Logger
}

// New returns a Device that shells out to the adb binary on the host.
func New(serial string, logger *log.Logger) *Device {
	return NewWithCommander(serial, logger, execCommander{})
}

// NewWithCommander returns a Device using a custom Commander.
func NewWithCommander(serial string, logger *log.Logger, cmd Commander) *Device {
	if logger == nil {
		logger = log.Default()
	}
	return &Device{
		Serial: serial,
		cmd:    cmd,
		log:    logger.With("serial", serial),
	}
}

func (d *Device) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-s", d.Serial}, args...)
	out, err := d.cmd.Run(ctx, full...)
	if err != nil {
		return "", fmt.Errorf("adb %s: %w (output: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// Shell runs a shell command on the device and returns its trimmed output.
func (d *Device) Shell(ctx context.Context, args ...string) (string, error) {
	return d.run(ctx, append([]string{"shell"}, args...)...)
}

// Getprop reads a system property.
func (d *Device) Getprop(ctx context.Context, name string) (string, error) {
	return d.Shell(ctx, "getprop", name)
}

// IsRoot reports whether adbd runs as root on the device.
func (d *Device) IsRoot(ctx context.Context) bool {
	out, err := d.Shell(ctx, "id")
	if err != nil {
		return false
	}
	return strings.Contains(out, "uid=0(root)")
}

// Forward sets up a host-to-device TCP forward and returns the host port
// chosen by the adb server.
func (d *Device) Forward(ctx context.Context, devicePort int) (int, error) {
	out, err := d.run(ctx, "forward", "tcp:0", fmt.Sprintf("tcp:%d", devicePort))
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected adb forward output %q: %w", out, err)
	}
	return port, nil
}

// RemoveForward removes a previously created host forward.
func (d *Device) RemoveForward(ctx context.Context, hostPort int) error {
	_, err := d.run(ctx, "forward", "--remove", fmt.Sprintf("tcp:%d", hostPort))
	return err
}

// Instrument starts the snippet runner inside pkg and blocks until the
// runner prints its serving banner, returning the device-side TCP port.
// The instrumentation process keeps running in the background for the
// lifetime of the snippet connection.
func (d *Device) Instrument(ctx context.Context, pkg, runner string) (int, error) {
	stdout, err := d.cmd.Start(ctx, "-s", d.Serial, "shell", "am", "instrument",
		"--user", "0", "-w", "-e", "action", "start", pkg+"/"+runner)
	if err != nil {
		return 0, fmt.Errorf("starting instrumentation for %s: %w", pkg, err)
	}

	type banner struct {
		port int
		err  error
	}
	ch := make(chan banner, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			d.log.Debug("instrumentation output", "line", line)
			if m := servingRe.FindStringSubmatch(line); m != nil {
				port, _ := strconv.Atoi(m[1])
				ch <- banner{port: port}
				return
			}
		}
		ch <- banner{err: errNoServingBanner}
	}()

	select {
	case b := <-ch:
		return b.port, b.err
	case <-time.After(instrumentTimeout):
		stdout.Close()
		return 0, fmt.Errorf("timed out waiting for snippet server in %s", pkg)
	case <-ctx.Done():
		stdout.Close()
		return 0, ctx.Err()
	}
}

// GrantPermission grants a runtime permission to pkg.
func (d *Device) GrantPermission(ctx context.Context, pkg, permission string) error {
	_, err := d.Shell(ctx, "pm", "grant", pkg, permission)
	return err
}

// Ping runs a ping from the device shell. A failed run is retried once after
// a short pause, since transient adb errors are common right after interface
// changes.
func (d *Device) Ping(ctx context.Context, count int, dest string) (string, error) {
	out, err := d.Shell(ctx, "ping", "-c", strconv.Itoa(count), dest)
	if err == nil {
		return out, nil
	}
	d.log.Info("ping failed, retrying once", "dest", dest, "error", err)
	time.Sleep(time.Second)
	return d.Shell(ctx, "ping", "-c", strconv.Itoa(count), dest)
}

// Ping6 runs an IPv6 ping from the device shell, with the same single retry
// as Ping.
func (d *Device) Ping6(ctx context.Context, count int, dest string) (string, error) {
	out, err := d.Shell(ctx, "ping6", "-c", strconv.Itoa(count), dest)
	if err == nil {
		return out, nil
	}
	d.log.Info("ping6 failed, retrying once", "dest", dest, "error", err)
	time.Sleep(time.Second)
	return d.Shell(ctx, "ping6", "-c", strconv.Itoa(count), dest)
}

// SetCountryCode forces the Wi-Fi country code.
func (d *Device) SetCountryCode(ctx context.Context, code string) error {
	_, err := d.Shell(ctx, "cmd", "wifi", "force-country-code", "enabled", code)
	return err
}

// ClearCountryCode removes a forced Wi-Fi country code.
func (d *Device) ClearCountryCode(ctx context.Context) error {
	_, err := d.Shell(ctx, "cmd", "wifi", "force-country-code", "disabled")
	return err
}

// SetAirplaneMode toggles airplane mode through settings plus the broadcast
// the platform requires to apply it.
func (d *Device) SetAirplaneMode(ctx context.Context, enabled bool) error {
	val := "0"
	state := "false"
	if enabled {
		val = "1"
		state = "true"
	}
	if _, err := d.Shell(ctx, "settings", "put", "global", "airplane_mode_on", val); err != nil {
		return err
	}
	_, err := d.Shell(ctx, "am", "broadcast", "-a", "android.intent.action.AIRPLANE_MODE",
		"--ez", "state", state)
	return err
}

// WakeAndUnlock turns the screen on, dismisses the keyguard and keeps the
// screen on while plugged in.
func (d *Device) WakeAndUnlock(ctx context.Context) error {
	steps := [][]string{
		{"input", "keyevent", "KEYCODE_WAKEUP"},
		{"wm", "dismiss-keyguard"},
		{"svc", "power", "stayon", "true"},
	}
	for _, s := range steps {
		if _, err := d.Shell(ctx, s...); err != nil {
			return err
		}
	}
	return nil
}

// EnableWifiVerboseLogging turns on the Wi-Fi verbose logging developer
// option.
func (d *Device) EnableWifiVerboseLogging(ctx context.Context) error {
	_, err := d.Shell(ctx, "cmd", "wifi", "set-verbose-logging", "enabled")
	return err
}

// SetLocationHighAccuracy sets the secure location mode to high accuracy and
// verifies the setting took.
func (d *Device) SetLocationHighAccuracy(ctx context.Context) error {
	if _, err := d.Shell(ctx, "settings", "put", "secure", "location_mode", "3"); err != nil {
		return err
	}
	out, err := d.Shell(ctx, "settings", "get", "secure", "location_mode")
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) != "3" {
		return fmt.Errorf("location mode is %q after enabling high accuracy", out)
	}
	return nil
}

// OpenNotificationBar expands the status bar.
func (d *Device) OpenNotificationBar(ctx context.Context) error {
	_, err := d.Shell(ctx, "service", "call", "statusbar", "1")
	return err
}

// PressHome sends the home key.
func (d *Device) PressHome(ctx context.Context) error {
	_, err := d.Shell(ctx, "input", "keyevent", "3")
	return err
}

// Bugreport writes a bugreport archive to hostPath.
func (d *Device) Bugreport(ctx context.Context, hostPath string) error {
	_, err := d.run(ctx, "bugreport", hostPath)
	return err
}

// Screenshot captures the device screen into hostPath as PNG.
func (d *Device) Screenshot(ctx context.Context, hostPath string) error {
	if _, err := d.Shell(ctx, "screencap", "-p", "/data/local/tmp/wifitest-screen.png"); err != nil {
		return err
	}
	_, err := d.run(ctx, "pull", "/data/local/tmp/wifitest-screen.png", hostPath)
	return err
}
