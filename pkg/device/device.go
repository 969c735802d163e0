// Package device binds one attached Android device to its adb surface and to
// the snippet RPC sessions loaded on it.
package device

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"

	"github.com/mdtb/wifitest/internal/adb"
	"github.com/mdtb/wifitest/internal/snippet"
	"github.com/mdtb/wifitest/pkg/results"
)

const (
	// SnippetRunner is the instrumentation runner every Mobly snippet apk
	// registers.
	SnippetRunner = "com.google.android.mobly.snippet.SnippetRunner"

	// propTTL bounds how long getprop values are cached. Build properties
	// never change mid-run; this keeps the window small for dynamic ones.
	propTTL = time.Minute
)

// AndroidDevice is one attached device: its adb handle, its per-device
// logger, and the snippet sessions loaded on it, keyed by the name given at
// load time.
type AndroidDevice struct {
	Serial string
	Adb    *adb.Device

	log *log.Logger

	mu       sync.Mutex
	snippets map[string]loadedSnippet
	props    *ttlcache.Cache[string, string]
}

type loadedSnippet struct {
	caller   snippet.Caller
	conn     *snippet.Conn // nil for fakes registered by tests
	hostPort int
}

// New builds an AndroidDevice for serial.
func New(serial string, logger *log.Logger) *AndroidDevice {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.With("device", serial)
	return &AndroidDevice{
		Serial:   serial,
		Adb:      adb.New(serial, logger),
		log:      logger,
		snippets: map[string]loadedSnippet{},
		props: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](propTTL),
		),
	}
}

// LoadSnippet starts the snippet apk's instrumentation, forwards its serving
// port and opens an RPC session, registered under name. The apk must already
// be installed.
func (d *AndroidDevice) LoadSnippet(ctx context.Context, name, pkg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.snippets[name]; ok {
		return fmt.Errorf("snippet %q already loaded on %s", name, d.Serial)
	}
	devicePort, err := d.Adb.Instrument(ctx, pkg, SnippetRunner)
	if err != nil {
		return fmt.Errorf("starting snippet %s on %s: %w", pkg, d.Serial, err)
	}
	hostPort, err := d.Adb.Forward(ctx, devicePort)
	if err != nil {
		return fmt.Errorf("forwarding snippet port for %s: %w", pkg, err)
	}
	conn, err := snippet.Dial(ctx, "127.0.0.1:"+strconv.Itoa(hostPort), name, d.log)
	if err != nil {
		d.Adb.RemoveForward(ctx, hostPort)
		return fmt.Errorf("connecting to snippet %s: %w", pkg, err)
	}
	d.snippets[name] = loadedSnippet{caller: conn, conn: conn, hostPort: hostPort}
	d.log.Info("snippet loaded", "name", name, "package", pkg, "port", hostPort)
	return nil
}

// RegisterSnippet registers a pre-built RPC session under name. Tests use it
// to substitute fakes for LoadSnippet.
func (d *AndroidDevice) RegisterSnippet(name string, c snippet.Caller) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snippets[name] = loadedSnippet{caller: c}
}

// HasSnippet reports whether a snippet is registered under name.
func (d *AndroidDevice) HasSnippet(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.snippets[name]
	return ok
}

// Snippet returns the RPC surface registered under name. A missing snippet
// returns a surface whose calls fail, so scenarios can chain without nil
// checks.
func (d *AndroidDevice) Snippet(name string) snippet.Caller {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.snippets[name]; ok && s.caller != nil {
		return s.caller
	}
	return errCaller{device: d.Serial, name: name}
}

// Prop returns a system property, caching values briefly.
func (d *AndroidDevice) Prop(ctx context.Context, name string) (string, error) {
	if item := d.props.Get(name); item != nil {
		return item.Value(), nil
	}
	v, err := d.Adb.Getprop(ctx, name)
	if err != nil {
		return "", err
	}
	d.props.Set(name, v, ttlcache.DefaultTTL)
	return v, nil
}

// Info collects the identification fields recorded in archived results.
func (d *AndroidDevice) Info(ctx context.Context) results.DeviceInfo {
	info := results.DeviceInfo{Serial: d.Serial}
	if v, err := d.Prop(ctx, "ro.build.id"); err == nil {
		info.BuildID = v
	}
	if v, err := d.Prop(ctx, "ro.product.model"); err == nil {
		info.Model = v
	}
	return info
}

// SdkLevel returns ro.build.version.sdk as an integer.
func (d *AndroidDevice) SdkLevel(ctx context.Context) (int, error) {
	v, err := d.Prop(ctx, "ro.build.version.sdk")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing sdk level %q: %w", v, err)
	}
	return n, nil
}

// Log returns the per-device logger.
func (d *AndroidDevice) Log() *log.Logger {
	return d.log
}

// Close tears down every snippet session and its port forward.
func (d *AndroidDevice) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for name, s := range d.snippets {
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && first == nil {
				first = err
			}
		}
		if s.hostPort != 0 {
			if err := d.Adb.RemoveForward(ctx, s.hostPort); err != nil && first == nil {
				first = err
			}
		}
		delete(d.snippets, name)
	}
	d.props.DeleteAll()
	return first
}

// errCaller is the RPC surface returned for snippets that were never loaded.
type errCaller struct {
	device string
	name   string
}

func (e errCaller) Call(context.Context, string, ...any) (any, error) {
	return nil, fmt.Errorf("snippet %q not loaded on %s", e.name, e.device)
}

func (e errCaller) CallAsync(context.Context, string, ...any) (*snippet.CallbackHandler, error) {
	return nil, fmt.Errorf("snippet %q not loaded on %s", e.name, e.device)
}
