package detect

import (
	"fmt"
	"strings"

	"github.com/sentinela-br/sentinela/internal/extractor"
	"github.com/sentinela-br/sentinela/internal/models"
)

const duplicateJaccardThreshold = 0.85

// NearDuplicateDetector flags pairs of contracts whose descriptions are
// near-identical, a common signature of contract splitting to stay under
// procurement thresholds. Similarity is token-set Jaccard over folded,
// lowercased description tokens.
type NearDuplicateDetector struct{}

func NewNearDuplicateDetector() *NearDuplicateDetector { return &NearDuplicateDetector{} }

func (d *NearDuplicateDetector) Name() string { return "near_duplicate" }

func (d *NearDuplicateDetector) Detect(records []models.Record, _ *models.EntityGraph) ([]models.Anomaly, error) {
	type candidate struct {
		rec    models.Record
		tokens map[string]bool
	}
	var candidates []candidate
	for _, rec := range records {
		tokens := descriptionTokens(rec.Description)
		if len(tokens) < 3 {
			continue
		}
		candidates = append(candidates, candidate{rec: rec, tokens: tokens})
	}

	var anomalies []models.Anomaly
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if a.rec.Source == b.rec.Source && a.rec.SourceID == b.rec.SourceID {
				continue
			}
			sim := jaccard(a.tokens, b.tokens)
			if sim < duplicateJaccardThreshold {
				continue
			}
			sev := models.SeverityMedium
			if a.rec.VendorID != "" && a.rec.VendorID == b.rec.VendorID {
				sev = models.SeverityHigh
			}
			anomalies = append(anomalies, models.NewAnomaly(
				models.AnomalyNearDuplicate,
				d.Name(),
				sev,
				clamp01(sim),
				[]string{a.rec.SourceID, b.rec.SourceID},
				fmt.Sprintf("contract descriptions are %.0f%% similar; possible split or duplicate contract", sim*100),
			))
		}
	}
	return anomalies, nil
}

func descriptionTokens(description string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.Fields(extractor.Fold(description)) {
		field = strings.Trim(field, ".,;:()[]\"'")
		if len(field) < 3 {
			continue
		}
		tokens[field] = true
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
