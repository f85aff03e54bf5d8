package detect

import (
	"fmt"

	"github.com/sentinela-br/sentinela/internal/models"
)

const (
	concentrationShareThreshold = 0.70
	concentrationMinGroupSize   = 3
)

// VendorConcentrationDetector flags agency/category groups where a single
// vendor takes more than 70% of the total contracted value. Groups with
// fewer than three contracts are skipped; a vendor trivially dominates a
// group of one.
type VendorConcentrationDetector struct{}

func NewVendorConcentrationDetector() *VendorConcentrationDetector {
	return &VendorConcentrationDetector{}
}

func (d *VendorConcentrationDetector) Name() string { return "vendor_concentration" }

type concentrationGroup struct {
	total     float64
	byVendor  map[string]float64
	recordIDs map[string][]string
	names     map[string]string
}

func (d *VendorConcentrationDetector) Detect(records []models.Record, _ *models.EntityGraph) ([]models.Anomaly, error) {
	groups := make(map[string]*concentrationGroup)
	counts := make(map[string]int)

	for _, rec := range records {
		if rec.AgencyID == "" || rec.VendorID == "" || rec.Value <= 0 {
			continue
		}
		key := rec.AgencyID + "/" + rec.Category
		g, ok := groups[key]
		if !ok {
			g = &concentrationGroup{
				byVendor:  make(map[string]float64),
				recordIDs: make(map[string][]string),
				names:     make(map[string]string),
			}
			groups[key] = g
		}
		g.total += rec.Value
		g.byVendor[rec.VendorID] += rec.Value
		g.recordIDs[rec.VendorID] = append(g.recordIDs[rec.VendorID], rec.SourceID)
		if g.names[rec.VendorID] == "" {
			g.names[rec.VendorID] = rec.VendorName
		}
		counts[key]++
	}

	var anomalies []models.Anomaly
	for key, g := range groups {
		if counts[key] < concentrationMinGroupSize || g.total <= 0 {
			continue
		}
		for vendorID, vendorTotal := range g.byVendor {
			share := vendorTotal / g.total
			if share <= concentrationShareThreshold {
				continue
			}
			sev := models.SeverityMedium
			if share > 0.90 {
				sev = models.SeverityHigh
			}
			anomalies = append(anomalies, models.NewAnomaly(
				models.AnomalyVendorConcentration,
				d.Name(),
				sev,
				clamp01(share),
				g.recordIDs[vendorID],
				fmt.Sprintf("vendor %s holds %.0f%% of the contracted value in group %s", vendorName(g.names[vendorID], vendorID), share*100, key),
			))
		}
	}
	return anomalies, nil
}

func vendorName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
