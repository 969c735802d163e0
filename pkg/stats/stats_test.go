package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func close(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarize(t *testing.T) {
	samples := []float64{5, 1, 3, 2, 4}
	s := Summarize(samples, false)

	if s.Count != 5 {
		t.Errorf("Count = %d", s.Count)
	}
	if !close(s.Min, 1) || !close(s.Max, 5) {
		t.Errorf("Min/Max = %v/%v", s.Min, s.Max)
	}
	if !close(s.Mean, 3) {
		t.Errorf("Mean = %v", s.Mean)
	}
	if !close(s.Median, 3) {
		t.Errorf("Median = %v", s.Median)
	}
	if !close(s.StdDev, math.Sqrt(2)) {
		t.Errorf("StdDev = %v", s.StdDev)
	}
	if !close(s.P25, 2) || !close(s.P75, 4) {
		t.Errorf("P25/P75 = %v/%v", s.P25, s.P75)
	}
	// p5 over [1..5]: rank 0.2 between 1 and 2.
	if !close(s.P5, 1.2) {
		t.Errorf("P5 = %v", s.P5)
	}
	if !close(s.P95, 4.8) {
		t.Errorf("P95 = %v", s.P95)
	}
	if s.Raw != nil {
		t.Errorf("Raw = %v, want nil", s.Raw)
	}
	// Input order untouched.
	if samples[0] != 5 {
		t.Errorf("input mutated: %v", samples)
	}
}

func TestSummarizeKeepRaw(t *testing.T) {
	samples := []float64{9, 7}
	s := Summarize(samples, true)
	if len(s.Raw) != 2 || s.Raw[0] != 9 || s.Raw[1] != 7 {
		t.Errorf("Raw = %v", s.Raw)
	}
}

func TestSummarizeEdgeCases(t *testing.T) {
	empty := Summarize(nil, false)
	if empty.Count != 0 || empty.Mean != 0 {
		t.Errorf("empty summary = %+v", empty)
	}

	one := Summarize([]float64{42}, false)
	if one.Min != 42 || one.Max != 42 || one.Median != 42 || one.P95 != 42 {
		t.Errorf("single-sample summary = %+v", one)
	}
	if one.StdDev != 0 {
		t.Errorf("single-sample stddev = %v", one.StdDev)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, map[string]Summary{
		"rtt_ms":   Summarize([]float64{10, 20}, false),
		"mbps_p2p": Summarize([]float64{800}, false),
	})
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "measurement,count,min,max") {
		t.Errorf("header = %q", lines[0])
	}
	// Rows sorted by name.
	if !strings.HasPrefix(lines[1], "mbps_p2p,1,800.000") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "rtt_ms,2,10.000,20.000,15.000") {
		t.Errorf("row 2 = %q", lines[2])
	}
}
