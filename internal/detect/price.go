package detect

import (
	"fmt"
	"math"

	"github.com/sentinela-br/sentinela/internal/models"
)

const (
	priceZScoreThreshold = 2.5
	priceMinGroupSize    = 5
	baselineMinSamples   = 20
)

// BaselineProvider supplies historical per-category price statistics and
// accumulates fresh observations. Implemented by the redis baseline cache;
// nil disables the baseline path.
type BaselineProvider interface {
	CategoryBaseline(category string) (mean, std float64, samples int, ok bool)
	UpdateCategory(category string, mean, std float64, samples int)
}

// PriceDeviationDetector flags contract values far from their category's
// mean. Categories with fewer than priceMinGroupSize records are scored
// against the historical baseline when one exists, and skipped otherwise
// because the standard deviation is meaningless there.
type PriceDeviationDetector struct {
	baselines BaselineProvider
}

func NewPriceDeviationDetector() *PriceDeviationDetector { return &PriceDeviationDetector{} }

// NewPriceDeviationDetectorWithBaselines enables the historical-baseline
// path for sparse categories.
func NewPriceDeviationDetectorWithBaselines(baselines BaselineProvider) *PriceDeviationDetector {
	return &PriceDeviationDetector{baselines: baselines}
}

func (d *PriceDeviationDetector) Name() string { return "price_deviation" }

func (d *PriceDeviationDetector) Detect(records []models.Record, _ *models.EntityGraph) ([]models.Anomaly, error) {
	byCategory := make(map[string][]models.Record)
	for _, rec := range records {
		if rec.Category == "" || rec.Value <= 0 {
			continue
		}
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}

	var anomalies []models.Anomaly
	for category, group := range byCategory {
		mean, std := meanStd(values(group))
		reference := "category mean"

		if len(group) >= priceMinGroupSize {
			if d.baselines != nil {
				d.baselines.UpdateCategory(category, mean, std, len(group))
			}
		} else {
			// Sparse category: fall back to the historical baseline
			if d.baselines == nil {
				continue
			}
			bMean, bStd, samples, ok := d.baselines.CategoryBaseline(category)
			if !ok || samples < baselineMinSamples {
				continue
			}
			mean, std = bMean, bStd
			reference = "historical baseline"
		}
		if std == 0 {
			continue
		}

		for _, rec := range group {
			z := (rec.Value - mean) / std
			if math.Abs(z) <= priceZScoreThreshold {
				continue
			}
			sev := models.SeverityMedium
			if math.Abs(z) > 4 {
				sev = models.SeverityHigh
			}
			anomalies = append(anomalies, models.NewAnomaly(
				models.AnomalyPriceDeviation,
				d.Name(),
				sev,
				clamp01(math.Abs(z)/5),
				[]string{rec.SourceID},
				fmt.Sprintf("value %.2f deviates %.1f standard deviations from the %s %s %.2f", rec.Value, z, category, reference, mean),
			))
		}
	}
	return anomalies, nil
}

func values(records []models.Record) []float64 {
	vs := make([]float64, len(records))
	for i, r := range records {
		vs[i] = r.Value
	}
	return vs
}

func meanStd(vs []float64) (mean, std float64) {
	if len(vs) == 0 {
		return 0, 0
	}
	for _, v := range vs {
		mean += v
	}
	mean /= float64(len(vs))
	for _, v := range vs {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(vs)))
	return mean, std
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}
