// Package stats summarizes measurement samples collected by scenario loops.
package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
)

// Summary condenses a sample slice into the aggregates archived per
// measurement.
type Summary struct {
	Count  int     `json:"count" bigquery:"count"`
	Min    float64 `json:"min" bigquery:"min"`
	Max    float64 `json:"max" bigquery:"max"`
	Mean   float64 `json:"mean" bigquery:"mean"`
	Median float64 `json:"median" bigquery:"median"`
	StdDev float64 `json:"stddev" bigquery:"stddev"`
	P5     float64 `json:"p5" bigquery:"p5"`
	P25    float64 `json:"p25" bigquery:"p25"`
	P75    float64 `json:"p75" bigquery:"p75"`
	P95    float64 `json:"p95" bigquery:"p95"`

	// Raw keeps the individual samples for offline reprocessing.
	Raw []float64 `json:"raw,omitempty" bigquery:"raw"`
}

// Summarize computes a Summary over samples. The input slice is not
// modified. keepRaw attaches the samples to the summary.
func Summarize(samples []float64, keepRaw bool) Summary {
	s := Summary{Count: len(samples)}
	if len(samples) == 0 {
		return s
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	s.Mean = sum / float64(len(sorted))

	var sq float64
	for _, v := range sorted {
		d := v - s.Mean
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(len(sorted)))

	s.Median = percentile(sorted, 50)
	s.P5 = percentile(sorted, 5)
	s.P25 = percentile(sorted, 25)
	s.P75 = percentile(sorted, 75)
	s.P95 = percentile(sorted, 95)

	if keepRaw {
		s.Raw = append([]float64(nil), samples...)
	}
	return s
}

// percentile interpolates linearly between the closest ranks of a sorted
// slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// WriteCSV emits summaries as one CSV row per measurement name, sorted by
// name for stable output.
func WriteCSV(w io.Writer, summaries map[string]Summary) error {
	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)

	cw := csv.NewWriter(w)
	header := []string{"measurement", "count", "min", "max", "mean", "median", "stddev", "p5", "p25", "p75", "p95"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, name := range names {
		s := summaries[name]
		row := []string{
			name,
			fmt.Sprintf("%d", s.Count),
			formatSample(s.Min),
			formatSample(s.Max),
			formatSample(s.Mean),
			formatSample(s.Median),
			formatSample(s.StdDev),
			formatSample(s.P5),
			formatSample(s.P25),
			formatSample(s.P75),
			formatSample(s.P95),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatSample(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
