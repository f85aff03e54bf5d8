package detect

import (
	"fmt"
	"math"
	"time"

	"github.com/sentinela-br/sentinela/internal/models"
)

const (
	temporalMinBuckets     = 8
	temporalDominanceRatio = 0.55
	temporalJumpFactor     = 3.0
)

// TemporalPatternDetector runs frequency-domain analysis over the
// month-bucketed spend series. Two signals are treated as suspicious:
// unnaturally regular periodicity (one frequency dominating the spectrum,
// which genuine procurement activity rarely shows) and abrupt regime
// changes (a month jumping far above the trailing level).
type TemporalPatternDetector struct{}

func NewTemporalPatternDetector() *TemporalPatternDetector { return &TemporalPatternDetector{} }

func (d *TemporalPatternDetector) Name() string { return "temporal_pattern" }

func (d *TemporalPatternDetector) Detect(records []models.Record, _ *models.EntityGraph) ([]models.Anomaly, error) {
	series, recordsByBucket := bucketByMonth(records)
	if len(series) < temporalMinBuckets {
		return nil, nil
	}

	var anomalies []models.Anomaly

	if ratio, period := dominantFrequency(seriesValues(series)); ratio > temporalDominanceRatio {
		anomalies = append(anomalies, models.NewAnomaly(
			models.AnomalyTemporalPattern,
			d.Name(),
			models.SeverityMedium,
			clamp01(ratio),
			allRecordIDs(recordsByBucket),
			fmt.Sprintf("spend series shows unnaturally regular periodicity: a %d-month cycle carries %.0f%% of the spectral power", period, ratio*100),
		))
	}

	for i, bucket := range series {
		if i < 3 {
			continue
		}
		trailing := 0.0
		for _, prev := range series[:i] {
			trailing += prev.total
		}
		trailing /= float64(i)
		if trailing > 0 && bucket.total > temporalJumpFactor*trailing {
			anomalies = append(anomalies, models.NewAnomaly(
				models.AnomalyTemporalPattern,
				d.Name(),
				models.SeverityHigh,
				clamp01(bucket.total/(temporalJumpFactor*trailing*2)+0.5),
				recordsByBucket[bucket.month],
				fmt.Sprintf("spend in %s (%.2f) is %.1fx the trailing monthly average (%.2f)", bucket.month, bucket.total, bucket.total/trailing, trailing),
			))
		}
	}
	return anomalies, nil
}

type monthBucket struct {
	month string
	total float64
}

// bucketByMonth sums values per calendar month and returns a contiguous
// series from the first to the last observed month, zero-filled.
func bucketByMonth(records []models.Record) ([]monthBucket, map[string][]string) {
	totals := make(map[string]float64)
	ids := make(map[string][]string)
	var first, last time.Time

	for _, rec := range records {
		if rec.Date.IsZero() || rec.Value <= 0 {
			continue
		}
		key := rec.Date.Format("2006-01")
		totals[key] += rec.Value
		ids[key] = append(ids[key], rec.SourceID)
		if first.IsZero() || rec.Date.Before(first) {
			first = rec.Date
		}
		if rec.Date.After(last) {
			last = rec.Date
		}
	}
	if len(totals) == 0 {
		return nil, ids
	}

	var series []monthBucket
	cursor := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(end) {
		key := cursor.Format("2006-01")
		series = append(series, monthBucket{month: key, total: totals[key]})
		cursor = cursor.AddDate(0, 1, 0)
	}
	return series, ids
}

func seriesValues(series []monthBucket) []float64 {
	vs := make([]float64, len(series))
	for i, b := range series {
		vs[i] = b.total
	}
	return vs
}

// dominantFrequency runs a naive DFT over the mean-subtracted series and
// returns the share of spectral power carried by the strongest frequency
// bin, plus the period in months it corresponds to. O(n^2) is fine: the
// series is months, not samples.
func dominantFrequency(vs []float64) (ratio float64, periodMonths int) {
	n := len(vs)
	mean, _ := meanStd(vs)
	centered := make([]float64, n)
	for i, v := range vs {
		centered[i] = v - mean
	}

	totalPower := 0.0
	maxPower := 0.0
	maxBin := 0
	for k := 1; k <= n/2; k++ {
		var re, im float64
		for t, v := range centered {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			re += v * math.Cos(angle)
			im += v * math.Sin(angle)
		}
		power := re*re + im*im
		totalPower += power
		if power > maxPower {
			maxPower = power
			maxBin = k
		}
	}
	if totalPower == 0 {
		return 0, 0
	}
	return maxPower / totalPower, n / maxBin
}

func allRecordIDs(byBucket map[string][]string) []string {
	var ids []string
	for _, bucketIDs := range byBucket {
		ids = append(ids, bucketIDs...)
	}
	return ids
}
