package analyze

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"sheetpulse/pkg/tags"
)

// durStats aggregates a sample of durations in hours.
type durStats struct {
	count  int
	mean   float64
	median float64
	stddev float64
	min    float64
	max    float64
}

func computeStats(hours []float64) durStats {
	n := len(hours)
	if n == 0 {
		return durStats{}
	}
	sorted := append([]float64(nil), hours...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, h := range sorted {
		sum += h
	}
	mean := sum / float64(n)

	var variance float64
	for _, h := range sorted {
		variance += (h - mean) * (h - mean)
	}
	variance /= float64(n)

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return durStats{
		count:  n,
		mean:   mean,
		median: median,
		stddev: math.Sqrt(variance),
		min:    sorted[0],
		max:    sorted[n-1],
	}
}

// fmtHours renders a duration stat with one decimal.
func fmtHours(h float64) string {
	return strconv.FormatFloat(h, 'f', 1, 64)
}

// fmtDays renders the same stat in days.
func fmtDays(h float64) string {
	return strconv.FormatFloat(h/24, 'f', 1, 64)
}

// bucketStart truncates a time to the start of its bucket in UTC.
func bucketStart(t time.Time, iv tags.Interval) time.Time {
	t = t.UTC()
	switch iv {
	case tags.IntervalDays:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case tags.IntervalWeeks:
		// Back up to Monday of the ISO week.
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case tags.IntervalMonths:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case tags.IntervalYears:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// nextBucket advances one interval.
func nextBucket(t time.Time, iv tags.Interval) time.Time {
	switch iv {
	case tags.IntervalDays:
		return t.AddDate(0, 0, 1)
	case tags.IntervalWeeks:
		return t.AddDate(0, 0, 7)
	case tags.IntervalMonths:
		return t.AddDate(0, 1, 0)
	case tags.IntervalYears:
		return t.AddDate(1, 0, 0)
	}
	return t
}

// bucketLabel names a bucket: 2025-10-03, 2025-W40, 2025-10 or 2025.
func bucketLabel(t time.Time, iv tags.Interval) string {
	t = t.UTC()
	switch iv {
	case tags.IntervalDays:
		return t.Format("2006-01-02")
	case tags.IntervalWeeks:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case tags.IntervalMonths:
		return t.Format("2006-01")
	case tags.IntervalYears:
		return t.Format("2006")
	}
	return t.Format("2006-01-02")
}

// bucketLabels enumerates the inclusive consecutive bucket labels
// spanning the earliest to the latest observed time.
func bucketLabels(earliest, latest time.Time, iv tags.Interval) []string {
	if earliest.After(latest) {
		earliest, latest = latest, earliest
	}
	var labels []string
	last := bucketLabel(latest, iv)
	for t := bucketStart(earliest, iv); ; t = nextBucket(t, iv) {
		label := bucketLabel(t, iv)
		labels = append(labels, label)
		if label == last {
			return labels
		}
	}
}
