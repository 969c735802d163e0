package aware

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mdtb/wifitest/internal/adb"
)

// ThroughputResult is one iperf3 run parsed into link rates.
type ThroughputResult struct {
	// TxMbps is the sender-side goodput.
	TxMbps float64
	// RxMbps is the receiver-side goodput.
	RxMbps float64
}

// StartIperfServer daemonizes iperf3 on the device.
func StartIperfServer(ctx context.Context, d *adb.Device) error {
	if _, err := d.Shell(ctx, "iperf3", "-s", "-D"); err != nil {
		return fmt.Errorf("starting iperf3 server on %s: %w", d.Serial, err)
	}
	return nil
}

// StopIperfServer kills any running iperf3 on the device.
func StopIperfServer(ctx context.Context, d *adb.Device) error {
	_, err := d.Shell(ctx, "pkill", "iperf3")
	return err
}

// RunIperfClient runs an IPv6 iperf3 client on the device against serverAddr
// and parses the JSON report.
func RunIperfClient(ctx context.Context, d *adb.Device, serverAddr string) (ThroughputResult, error) {
	out, err := d.Shell(ctx, "iperf3", "-c", serverAddr, "-6", "-J")
	if err != nil {
		return ThroughputResult{}, fmt.Errorf("running iperf3 client on %s: %w", d.Serial, err)
	}
	return parseIperfReport([]byte(out))
}

// iperfReport is the slice of the iperf3 JSON output we read.
type iperfReport struct {
	End struct {
		SumSent struct {
			BitsPerSecond float64 `json:"bits_per_second"`
		} `json:"sum_sent"`
		SumReceived struct {
			BitsPerSecond float64 `json:"bits_per_second"`
		} `json:"sum_received"`
	} `json:"end"`
	Error string `json:"error"`
}

func parseIperfReport(data []byte) (ThroughputResult, error) {
	var report iperfReport
	if err := json.Unmarshal(data, &report); err != nil {
		return ThroughputResult{}, fmt.Errorf("parsing iperf3 report: %w", err)
	}
	if report.Error != "" {
		return ThroughputResult{}, fmt.Errorf("iperf3 failed: %s", report.Error)
	}
	res := ThroughputResult{
		TxMbps: report.End.SumSent.BitsPerSecond / 1e6,
		RxMbps: report.End.SumReceived.BitsPerSecond / 1e6,
	}
	if res.TxMbps == 0 && res.RxMbps == 0 {
		return ThroughputResult{}, fmt.Errorf("iperf3 report carries no rates")
	}
	return res, nil
}
