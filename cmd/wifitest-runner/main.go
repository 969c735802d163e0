// The wifitest-runner command executes the registered Wi-Fi scenarios
// against the devices of a test bed and archives one gzip JSON result per
// scenario under -datadir.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/mdtb/wifitest/pkg/device"
	"github.com/mdtb/wifitest/pkg/harness"
	"github.com/mdtb/wifitest/pkg/testbed"

	// Importing the suites populates the scenario registry.
	_ "github.com/mdtb/wifitest/suites"
)

var (
	flagTestbed        = flag.String("testbed", "testbed.json", "Path to the testbed config file")
	flagDataDir        = flag.String("datadir", "./data", "Directory to archive scenario results in")
	flagOutDir         = flag.String("outdir", "./out", "Directory for per-scenario auxiliary output (screenshots, bug reports)")
	flagSkipBugreports = flag.Bool("skip-bugreports", false, "Do not pull bug reports from devices after a failure")
	flagVerbose        = flag.Bool("verbose", false, "Enable debug logging")
	flagList           = flag.Bool("list", false, "List the registered scenarios and exit")
	flagSuites         = flagx.StringArray{}
	flagScenarios      = flagx.StringArray{}
	flagParams         = flagx.StringArray{}
)

func init() {
	flag.Var(&flagSuites, "suite", "Run only scenarios of this suite. May be repeated.")
	flag.Var(&flagScenarios, "scenario", "Run only this scenario. May be repeated.")
	flag.Var(&flagParams, "param", "key=value testbed parameter override. May be repeated.")
}

// selected filters the registry down to the -suite and -scenario flags. With
// no filter flags every registered scenario runs.
func selected(all []harness.Scenario) []harness.Scenario {
	if len(flagSuites) == 0 && len(flagScenarios) == 0 {
		return all
	}
	want := func(s harness.Scenario) bool {
		for _, suite := range flagSuites {
			if s.Suite == suite {
				return true
			}
		}
		for _, name := range flagScenarios {
			if s.Name == name {
				return true
			}
		}
		return false
	}
	var out []harness.Scenario
	for _, s := range all {
		if want(s) {
			out = append(out, s)
		}
	}
	return out
}

// run executes the filtered scenarios and returns the process exit code. It
// is separate from main so the deferred device cleanup runs before os.Exit.
func run(ctx context.Context, scenarios []harness.Scenario) int {
	tb, err := testbed.Load(*flagTestbed)
	rtx.Must(err, "failed to load testbed config")
	if tb.Params == nil {
		tb.Params = map[string]string{}
	}
	for _, kv := range flagParams {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			log.Fatal("malformed -param, want key=value", "got", kv)
		}
		tb.Params[key] = value
	}

	devices := make([]*device.AndroidDevice, 0, len(tb.Devices))
	for _, dc := range tb.Devices {
		d := device.New(dc.Serial, log.Default())
		devices = append(devices, d)
		defer d.Close(context.Background())
	}

	runner := harness.NewRunner(tb, devices, *flagDataDir, *flagOutDir, log.Default())
	runner.SkipBugreports = *flagSkipBugreports

	log.Info("run starting",
		"testbed", tb.Name, "devices", len(devices),
		"scenarios", len(scenarios), "run_id", runner.RunID)

	failed := runner.Run(ctx, scenarios)
	if failed > 0 {
		log.Error("run finished with failures", "failed", failed)
		return 1
	}
	log.Info("run finished", "scenarios", len(scenarios))
	return 0
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "failed to parse flags from environment")

	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	if *flagVerbose {
		log.SetLevel(log.DebugLevel)
	}

	scenarios := selected(harness.Scenarios())
	if *flagList {
		for _, s := range scenarios {
			log.Info(s.Name, "suite", s.Suite, "devices", s.MinDevices, "description", s.Description)
		}
		return
	}
	if len(scenarios) == 0 {
		log.Fatal("no scenarios match the given filters",
			"suites", strings.Join(flagSuites, ","),
			"scenarios", strings.Join(flagScenarios, ","))
	}

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, scenarios))
}
