package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinela-br/sentinela/internal/graph"
	"github.com/sentinela-br/sentinela/internal/models"
)

func contract(id string, value float64, category, vendorID, agencyID string, month time.Month) models.Record {
	return models.Record{
		SourceID:    id,
		Source:      "portal_transparencia",
		VendorID:    vendorID,
		VendorName:  "Vendor " + vendorID,
		AgencyID:    agencyID,
		Category:    category,
		Value:       value,
		Date:        time.Date(2024, month, 10, 0, 0, 0, 0, time.UTC),
		Description: fmt.Sprintf("aquisicao de material %s lote %s", category, id),
	}
}

func healthBaseline(n int) []models.Record {
	records := make([]models.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, contract(
			fmt.Sprintf("base-%d", i),
			100_000+float64(i)*1_000,
			"health",
			fmt.Sprintf("%02d111222000133", i%7),
			fmt.Sprintf("260%02d", i%4),
			time.Month(i%12+1),
		))
	}
	return records
}

func TestPriceDeviation_FlagsOutlier(t *testing.T) {
	records := healthBaseline(10)
	records = append(records, contract("overpriced", 5_000_000, "health", "99111222000133", "26000", time.March))

	anomalies, err := NewPriceDeviationDetector().Detect(records, nil)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyPriceDeviation, anomalies[0].Type)
	assert.Equal(t, []string{"overpriced"}, anomalies[0].RecordIDs)
	assert.Greater(t, anomalies[0].Confidence, 0.0)
	assert.Contains(t, anomalies[0].Evidence, "health")
}

type fakeBaselines struct {
	mean, std float64
	samples   int
	updates   map[string]int
}

func (f *fakeBaselines) CategoryBaseline(string) (float64, float64, int, bool) {
	return f.mean, f.std, f.samples, f.samples > 0
}

func (f *fakeBaselines) UpdateCategory(category string, _, _ float64, samples int) {
	if f.updates == nil {
		f.updates = map[string]int{}
	}
	f.updates[category] += samples
}

func TestPriceDeviation_SparseCategoryUsesBaseline(t *testing.T) {
	baselines := &fakeBaselines{mean: 100_000, std: 10_000, samples: 50}
	records := []models.Record{
		contract("sparse-1", 105_000, "security", "v1", "ag1", time.January),
		contract("sparse-2", 900_000, "security", "v2", "ag1", time.February),
	}

	anomalies, err := NewPriceDeviationDetectorWithBaselines(baselines).Detect(records, nil)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, []string{"sparse-2"}, anomalies[0].RecordIDs)
	assert.Contains(t, anomalies[0].Evidence, "historical baseline")
}

func TestPriceDeviation_LargeGroupsFeedBaseline(t *testing.T) {
	baselines := &fakeBaselines{}
	_, err := NewPriceDeviationDetectorWithBaselines(baselines).Detect(healthBaseline(10), nil)
	require.NoError(t, err)
	assert.Equal(t, 10, baselines.updates["health"])
}

func TestPriceDeviation_SmallGroupsSkipped(t *testing.T) {
	records := []models.Record{
		contract("a", 100, "security", "v1", "ag1", time.January),
		contract("b", 9_000_000, "security", "v2", "ag1", time.February),
	}
	anomalies, err := NewPriceDeviationDetector().Detect(records, nil)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestVendorConcentration_FlagsDominantVendor(t *testing.T) {
	records := []models.Record{
		contract("c1", 800_000, "health", "dominant", "26000", time.January),
		contract("c2", 100_000, "health", "other-a", "26000", time.February),
		contract("c3", 100_000, "health", "other-b", "26000", time.March),
	}

	anomalies, err := NewVendorConcentrationDetector().Detect(records, nil)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyVendorConcentration, anomalies[0].Type)
	assert.ElementsMatch(t, []string{"c1"}, anomalies[0].RecordIDs)
	assert.InDelta(t, 0.80, anomalies[0].Confidence, 0.01)
}

func TestVendorConcentration_BalancedGroupNotFlagged(t *testing.T) {
	records := []models.Record{
		contract("c1", 300_000, "health", "v1", "26000", time.January),
		contract("c2", 300_000, "health", "v2", "26000", time.February),
		contract("c3", 400_000, "health", "v3", "26000", time.March),
	}
	anomalies, err := NewVendorConcentrationDetector().Detect(records, nil)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestTemporalPattern_FlagsRegimeChange(t *testing.T) {
	var records []models.Record
	for m := time.January; m <= time.September; m++ {
		records = append(records, contract(fmt.Sprintf("m%d", m), 100_000, "health", "v1", "26000", m))
	}
	records = append(records, contract("spike", 2_000_000, "health", "v1", "26000", time.October))

	anomalies, err := NewTemporalPatternDetector().Detect(records, nil)
	require.NoError(t, err)

	var found bool
	for _, a := range anomalies {
		if a.Severity == models.SeverityHigh {
			found = true
			assert.Contains(t, a.RecordIDs, "spike")
		}
	}
	assert.True(t, found, "the spike month must be flagged as a regime change")
}

func TestTemporalPattern_ShortSeriesSkipped(t *testing.T) {
	records := []models.Record{
		contract("a", 100, "health", "v1", "ag1", time.January),
		contract("b", 100, "health", "v1", "ag1", time.February),
	}
	anomalies, err := NewTemporalPatternDetector().Detect(records, nil)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestNearDuplicate_FlagsSimilarDescriptions(t *testing.T) {
	a := contract("dup-1", 50_000, "health", "v1", "26000", time.January)
	b := contract("dup-2", 49_000, "health", "v1", "26000", time.February)
	a.Description = "Aquisição de equipamentos hospitalares para unidade básica de saúde"
	b.Description = "Aquisição de equipamentos hospitalares para unidade básica de saúde municipal"
	c := contract("other", 70_000, "health", "v2", "26000", time.March)
	c.Description = "Serviços de manutenção predial preventiva e corretiva"

	anomalies, err := NewNearDuplicateDetector().Detect([]models.Record{a, b, c}, nil)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyNearDuplicate, anomalies[0].Type)
	assert.ElementsMatch(t, []string{"dup-1", "dup-2"}, anomalies[0].RecordIDs)
	assert.Equal(t, models.SeverityHigh, anomalies[0].Severity, "same vendor raises severity")
	assert.GreaterOrEqual(t, anomalies[0].Confidence, 0.85)
}

func TestEnsemble_FlagsExtremeOutlier(t *testing.T) {
	records := healthBaseline(30)
	outlier := contract("extreme", 50_000_000, "health", "lone-vendor", "26000", time.June)
	records = append(records, outlier)
	g := graph.NewBuilder().Build(records)

	anomalies, err := NewEnsembleDetector().Detect(records, g)
	require.NoError(t, err)

	var flagged bool
	for _, a := range anomalies {
		assert.Equal(t, models.AnomalyMLOutlier, a.Type)
		for _, id := range a.RecordIDs {
			if id == "extreme" {
				flagged = true
			}
		}
	}
	assert.True(t, flagged, "at least one ensemble method must flag the extreme record")
}

func TestEnsemble_TooFewRecordsSkipped(t *testing.T) {
	anomalies, err := NewEnsembleDetector().Detect(healthBaseline(5), nil)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

type panickyDetector struct{}

func (panickyDetector) Name() string { return "panicky" }
func (panickyDetector) Detect([]models.Record, *models.EntityGraph) ([]models.Anomaly, error) {
	panic("boom")
}

func TestEngine_DetectorPanicIsIsolated(t *testing.T) {
	records := healthBaseline(10)
	records = append(records, contract("overpriced", 5_000_000, "health", "v9", "26000", time.March))

	engine := NewEngine(panickyDetector{}, NewPriceDeviationDetector())
	anomalies, status := engine.Detect(context.Background(), records, nil)

	assert.NotEmpty(t, anomalies, "healthy detectors still run")
	assert.Contains(t, status["panicky"], "panic")
	assert.Contains(t, status["price_deviation"], "ok")
}

// Removing one detector from the battery only shrinks the anomaly list and
// never alters flags attributed to other detectors.
func TestEngine_DetectorIndependence(t *testing.T) {
	records := healthBaseline(12)
	records = append(records,
		contract("overpriced", 5_000_000, "health", "dominant", "26000", time.March),
		contract("d1", 800_000, "education", "dominant", "36000", time.April),
		contract("d2", 50_000, "education", "minor-a", "36000", time.May),
		contract("d3", 50_000, "education", "minor-b", "36000", time.June),
	)
	g := graph.NewBuilder().Build(records)

	full := []Detector{NewPriceDeviationDetector(), NewVendorConcentrationDetector(), NewNearDuplicateDetector()}
	reduced := []Detector{NewPriceDeviationDetector(), NewNearDuplicateDetector()}

	fullAnomalies, _ := NewEngine(full...).Detect(context.Background(), records, g)
	reducedAnomalies, _ := NewEngine(reduced...).Detect(context.Background(), records, g)

	assert.LessOrEqual(t, len(reducedAnomalies), len(fullAnomalies))

	// Flags from the remaining detectors are byte-for-byte identical aside
	// from generated ids.
	key := func(a models.Anomaly) string {
		return fmt.Sprintf("%s|%s|%v|%s", a.Detector, a.Type, a.RecordIDs, a.Evidence)
	}
	fullSet := map[string]bool{}
	for _, a := range fullAnomalies {
		if a.Detector != "vendor_concentration" {
			fullSet[key(a)] = true
		}
	}
	for _, a := range reducedAnomalies {
		assert.True(t, fullSet[key(a)], "reduced battery must not invent flags: %s", key(a))
		delete(fullSet, key(a))
	}
	assert.Empty(t, fullSet, "reduced battery must keep every remaining detector's flags")
}

func TestEngine_SortsBySeverityThenConfidence(t *testing.T) {
	records := healthBaseline(12)
	records = append(records,
		contract("overpriced", 5_000_000, "health", "dominant", "26000", time.March),
		contract("d1", 800_000, "education", "dominant", "36000", time.April),
		contract("d2", 50_000, "education", "minor-a", "36000", time.May),
		contract("d3", 50_000, "education", "minor-b", "36000", time.June),
	)

	anomalies, _ := NewEngine(DefaultDetectors()...).Detect(context.Background(), records, graph.NewBuilder().Build(records))
	for i := 1; i < len(anomalies); i++ {
		prev, cur := anomalies[i-1], anomalies[i]
		if models.SeverityRank(prev.Severity) == models.SeverityRank(cur.Severity) {
			assert.GreaterOrEqual(t, prev.Confidence, cur.Confidence)
		} else {
			assert.Greater(t, models.SeverityRank(prev.Severity), models.SeverityRank(cur.Severity))
		}
	}
}
