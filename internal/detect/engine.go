// Package detect runs the anomaly detector battery over merged records
// and the entity graph. Detectors are independent: each produces its own
// flags with its own confidence, and the engine concatenates them without
// merging or deduplicating across detectors. That keeps every flag
// auditable against exactly one detector.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sentinela-br/sentinela/internal/logging"
	"github.com/sentinela-br/sentinela/internal/models"
)

// Detector is one member of the battery
type Detector interface {
	Name() string
	Detect(records []models.Record, graph *models.EntityGraph) ([]models.Anomaly, error)
}

// Engine runs detectors and joins their outputs
type Engine struct {
	detectors []Detector
	logger    *slog.Logger
}

// NewEngine creates an engine over an explicit battery
func NewEngine(detectors ...Detector) *Engine {
	return &Engine{
		detectors: detectors,
		logger:    logging.Component("detect"),
	}
}

// DefaultDetectors returns the standard battery
func DefaultDetectors() []Detector {
	return []Detector{
		NewPriceDeviationDetector(),
		NewVendorConcentrationDetector(),
		NewTemporalPatternDetector(),
		NewNearDuplicateDetector(),
		NewEnsembleDetector(),
	}
}

// Detect runs every detector and returns the union of their anomalies,
// sorted by severity then confidence, plus a per-detector status map for
// the investigation's metadata. A detector that errors or panics
// contributes nothing; the others still run.
func (e *Engine) Detect(ctx context.Context, records []models.Record, graph *models.EntityGraph) ([]models.Anomaly, map[string]string) {
	anomalies := []models.Anomaly{}
	status := make(map[string]string, len(e.detectors))

	for _, d := range e.detectors {
		if err := ctx.Err(); err != nil {
			status[d.Name()] = "skipped: " + err.Error()
			continue
		}
		found, err := e.runIsolated(d, records, graph)
		if err != nil {
			e.logger.Warn("detector failed", "detector", d.Name(), "error", err)
			status[d.Name()] = "error: " + err.Error()
			continue
		}
		status[d.Name()] = fmt.Sprintf("ok: %d anomalies", len(found))
		anomalies = append(anomalies, found...)
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		ri, rj := models.SeverityRank(anomalies[i].Severity), models.SeverityRank(anomalies[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return anomalies[i].Confidence > anomalies[j].Confidence
	})
	return anomalies, status
}

// runIsolated converts a detector panic into an error so one broken
// detector cannot take down the battery.
func (e *Engine) runIsolated(d Detector, records []models.Record, graph *models.EntityGraph) (found []models.Anomaly, err error) {
	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return d.Detect(records, graph)
}
