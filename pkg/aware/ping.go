package aware

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/mdtb/wifitest/internal/adb"
)

// PingStats is a parsed ping rtt summary.
type PingStats struct {
	MinMs  float64
	AvgMs  float64
	MaxMs  float64
	MdevMs float64
	// Transmitted and Received are the packet counts.
	Transmitted int
	Received    int
}

var (
	pingRttRe     = regexp.MustCompile(`rtt min/avg/max/mdev = ([\d.]+)/([\d.]+)/([\d.]+)/([\d.]+)`)
	pingPacketsRe = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received`)
)

// ParsePing extracts the rtt summary from ping output.
func ParsePing(output string) (PingStats, error) {
	var stats PingStats
	m := pingPacketsRe.FindStringSubmatch(output)
	if m == nil {
		return stats, fmt.Errorf("ping output has no packet summary: %q", output)
	}
	stats.Transmitted, _ = strconv.Atoi(m[1])
	stats.Received, _ = strconv.Atoi(m[2])

	m = pingRttRe.FindStringSubmatch(output)
	if m == nil {
		if stats.Received == 0 {
			return stats, fmt.Errorf("all %d ping packets lost", stats.Transmitted)
		}
		return stats, fmt.Errorf("ping output has no rtt line: %q", output)
	}
	stats.MinMs, _ = strconv.ParseFloat(m[1], 64)
	stats.AvgMs, _ = strconv.ParseFloat(m[2], 64)
	stats.MaxMs, _ = strconv.ParseFloat(m[3], 64)
	stats.MdevMs, _ = strconv.ParseFloat(m[4], 64)
	return stats, nil
}

// Ping6 pings an IPv6 peer over the data path from the device and parses the
// rtt summary. dest may carry a zone suffix (addr%aware_data0).
func Ping6(ctx context.Context, d *adb.Device, count int, dest string) (PingStats, error) {
	out, err := d.Ping6(ctx, count, dest)
	if err != nil {
		return PingStats{}, fmt.Errorf("ping6 %s from %s: %w", dest, d.Serial, err)
	}
	return ParsePing(out)
}
