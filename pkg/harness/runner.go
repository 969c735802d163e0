package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-lab/go/prometheusx"

	"github.com/mdtb/wifitest/internal/persistence"
	"github.com/mdtb/wifitest/pkg/device"
	"github.com/mdtb/wifitest/pkg/results"
	"github.com/mdtb/wifitest/pkg/stats"
	"github.com/mdtb/wifitest/pkg/testbed"
	"github.com/mdtb/wifitest/pkg/version"
)

// bugreportTimeout bounds the post-failure diagnostics collection so a hung
// device cannot stall the whole run.
const bugreportTimeout = 5 * time.Minute

// Runner executes scenarios sequentially against the devices of one test
// bed and archives a result per scenario.
type Runner struct {
	Testbed *testbed.Config
	Devices []*device.AndroidDevice

	// DataDir is the root of the gzip JSON archive tree.
	DataDir string
	// OutDir receives per-scenario auxiliary output.
	OutDir string
	// RunID ties all results of this invocation together.
	RunID string
	// SkipBugreports disables diagnostics collection on failure.
	SkipBugreports bool

	Log *log.Logger
}

// NewRunner builds a Runner with a fresh RunID.
func NewRunner(tb *testbed.Config, devices []*device.AndroidDevice, datadir, outdir string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Testbed: tb,
		Devices: devices,
		DataDir: datadir,
		OutDir:  outdir,
		RunID:   uuid.NewString(),
		Log:     logger,
	}
}

// Run executes the scenarios in order and returns the number of failures.
// A skipped scenario is not a failure. Run stops early only when ctx is
// canceled.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) int {
	failed := 0
	for _, s := range scenarios {
		if ctx.Err() != nil {
			r.Log.Warn("run canceled", "remaining", s.Name)
			break
		}
		res := r.runOne(ctx, s)
		if res.Outcome == results.OutcomeFail {
			failed++
		}
		r.archive(s, res)
	}
	return failed
}

func (r *Runner) runOne(ctx context.Context, s Scenario) results.ScenarioResult {
	logger := r.Log.With("scenario", s.Name)
	res := results.ScenarioResult{
		GitShortCommit: prometheusx.GitShortCommit,
		Version:        version.Version,
		RunID:          r.RunID,
		Testbed:        r.Testbed.Name,
		Suite:          s.Suite,
		Scenario:       s.Name,
		StartTime:      time.Now().UTC(),
	}
	defer func() {
		res.EndTime = time.Now().UTC()
		scenariosTotal.WithLabelValues(s.Suite, string(res.Outcome)).Inc()
		scenarioDuration.WithLabelValues(s.Suite).Observe(res.EndTime.Sub(res.StartTime).Seconds())
	}()

	if len(r.Devices) < s.MinDevices {
		res.Outcome = results.OutcomeSkip
		res.FailureMessage = fmt.Sprintf("needs %d devices, testbed has %d", s.MinDevices, len(r.Devices))
		logger.Warn("skipping", "reason", res.FailureMessage)
		return res
	}
	devices := r.Devices[:s.MinDevices]
	for _, d := range devices {
		res.Devices = append(res.Devices, d.Info(ctx))
	}
	if s.RequiresRoot {
		for _, d := range devices {
			if !d.Adb.IsRoot(ctx) {
				res.Outcome = results.OutcomeSkip
				res.FailureMessage = fmt.Sprintf("device %s is not rooted", d.Serial)
				logger.Warn("skipping", "reason", res.FailureMessage)
				return res
			}
		}
	}

	timeout := s.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := &Env{
		Devices: devices,
		Testbed: r.Testbed,
		Log:     logger,
		Record:  NewRecorder(),
		OutDir:  filepath.Join(r.OutDir, s.Name),
	}
	if err := os.MkdirAll(env.OutDir, 0755); err != nil {
		res.Outcome = results.OutcomeFail
		res.FailureMessage = fmt.Sprintf("creating output dir: %v", err)
		return res
	}

	logger.Info("scenario starting", "suite", s.Suite, "devices", len(devices))
	err := runProtected(sctx, s, env)
	res.Measurements = env.Record.Measurements()
	if len(res.Measurements) > 0 {
		if csverr := writeMeasurementsCSV(env.OutDir, res.Measurements); csverr != nil {
			logger.Warn("cannot write measurement csv", "error", csverr)
		}
	}

	var skip *SkipError
	switch {
	case err == nil:
		res.Outcome = results.OutcomePass
		logger.Info("scenario passed", "measurements", len(res.Measurements))
	case errors.As(err, &skip):
		res.Outcome = results.OutcomeSkip
		res.FailureMessage = skip.Reason
		logger.Warn("scenario skipped", "reason", skip.Reason)
	default:
		res.Outcome = results.OutcomeFail
		res.FailureMessage = err.Error()
		logger.Error("scenario failed", "error", err)
		if !r.SkipBugreports {
			r.collectDiagnostics(devices, env.OutDir)
		}
	}
	return res
}

// runProtected invokes the scenario and converts a panic into a failure, so
// one broken scenario cannot take down the rest of the run.
func runProtected(ctx context.Context, s Scenario, env *Env) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("scenario panicked: %v", rec)
		}
	}()
	return s.Run(ctx, env)
}

// collectDiagnostics pulls a bug report from every device in parallel. The
// parent context may already be expired, so it uses a fresh one.
func (r *Runner) collectDiagnostics(devices []*device.AndroidDevice, outdir string) {
	ctx, cancel := context.WithTimeout(context.Background(), bugreportTimeout)
	defer cancel()
	err := device.ConcurrentExec(ctx, devices, func(ctx context.Context, d *device.AndroidDevice) error {
		path := filepath.Join(outdir, "bugreport-"+d.Serial+".zip")
		return d.Adb.Bugreport(ctx, path)
	})
	if err != nil {
		r.Log.Warn("bug report collection incomplete", "error", err)
	}
}

// writeMeasurementsCSV drops a flat summary table next to the scenario's
// other output, for quick inspection without unpacking the archive.
func writeMeasurementsCSV(outdir string, measurements []results.Measurement) error {
	summaries := make(map[string]stats.Summary, len(measurements))
	for _, m := range measurements {
		summaries[m.Name] = m.Summary
	}
	f, err := os.Create(filepath.Join(outdir, "measurements.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	return stats.WriteCSV(f, summaries)
}

func (r *Runner) archive(s Scenario, res results.ScenarioResult) {
	path, err := persistence.WriteResult(r.DataDir, s.Suite, s.Name, res)
	if err != nil {
		r.Log.Error("archiving result", "scenario", s.Name, "error", err)
		return
	}
	r.Log.Info("result archived", "scenario", s.Name, "path", path)
}
