package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinela-br/sentinela/internal/logging"
)

// CategoryBaseline holds per-category price statistics accumulated across
// investigations. Detectors use it when the current federation yields too
// few records for a category to compute a meaningful deviation.
type CategoryBaseline struct {
	Category    string    `json:"category"`
	Mean        float64   `json:"mean"`
	Std         float64   `json:"std"`
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const baselineTTL = 30 * 24 * time.Hour

// Baselines reads and writes category baselines in redis. Calls are
// bounded by a short internal timeout so a slow redis cannot stall a
// CPU-bound detector.
type Baselines struct {
	client *Client
	logger *slog.Logger
}

// NewBaselines creates a baseline store over an existing redis client
func NewBaselines(client *Client) *Baselines {
	return &Baselines{
		client: client,
		logger: logging.Component("baselines"),
	}
}

// CategoryBaseline returns the stored statistics for a category
func (b *Baselines) CategoryBaseline(category string) (mean, std float64, samples int, ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var baseline CategoryBaseline
	hit, err := b.client.Get(ctx, BaselineKey(category), &baseline)
	if err != nil || !hit {
		return 0, 0, 0, false
	}
	return baseline.Mean, baseline.Std, baseline.SampleCount, true
}

// UpdateCategory merges freshly observed statistics into the stored
// baseline, weighted by sample count.
func (b *Baselines) UpdateCategory(category string, mean, std float64, samples int) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	merged := CategoryBaseline{
		Category:    category,
		Mean:        mean,
		Std:         std,
		SampleCount: samples,
		UpdatedAt:   time.Now().UTC(),
	}

	var prev CategoryBaseline
	if hit, err := b.client.Get(ctx, BaselineKey(category), &prev); err == nil && hit && prev.SampleCount > 0 {
		total := float64(prev.SampleCount + samples)
		wPrev := float64(prev.SampleCount) / total
		wNew := float64(samples) / total
		merged.Mean = prev.Mean*wPrev + mean*wNew
		merged.Std = prev.Std*wPrev + std*wNew
		merged.SampleCount = prev.SampleCount + samples
	}

	if err := b.client.SetWithTTL(ctx, BaselineKey(category), merged, baselineTTL); err != nil {
		b.logger.Debug("baseline write failed", "category", category, "error", err)
	}
}
