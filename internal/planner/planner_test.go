package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinela-br/sentinela/internal/adapters"
	"github.com/sentinela-br/sentinela/internal/models"
)

func investigative() models.Classification {
	return models.Classification{
		Intent:     models.IntentAnomalyInvestigation,
		Confidence: 0.95,
		Target:     models.TargetPipeline,
	}
}

func TestPlan_InvestigativeTemplate(t *testing.T) {
	p := New()
	plan, err := p.Plan(investigative(), nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(plan.Stages), 2)

	assert.Equal(t, StageContractCollection, plan.Stages[0].Name)
	assert.Equal(t, StageEconomicContext, plan.Stages[1].Name)
	for _, stage := range plan.Stages {
		for _, adapter := range stage.Adapters {
			assert.Contains(t, stage.Params, adapter, "every adapter needs a parameter builder")
		}
	}
}

func TestPlan_ContractFiltersFromEntities(t *testing.T) {
	p := New()
	entities := []models.Entity{
		{Kind: models.EntityRegion, Normalized: "MG"},
		{Kind: models.EntityCategory, Normalized: "health"},
		{Kind: models.EntityYear, Normalized: "2024", NumericValue: 2024},
		{Kind: models.EntityMonetary, NumericValue: 1_000_000},
	}

	plan, err := p.Plan(investigative(), entities)
	require.NoError(t, err)

	build := plan.Stages[0].Params[adapters.SourcePortalTransparencia]
	filters := build(entities, nil)
	assert.Equal(t, "MG", filters["uf"])
	assert.Equal(t, "health", filters["categoria"])
	assert.Equal(t, 2024, filters["ano"])
	assert.Equal(t, 1_000_000.0, filters["valorMinimo"])
}

func TestPlan_TwoMonetaryEntitiesFormRange(t *testing.T) {
	entities := []models.Entity{
		{Kind: models.EntityMonetary, NumericValue: 2_000_000},
		{Kind: models.EntityMonetary, NumericValue: 100_000},
	}
	filters := contractFilters(entities, nil)
	assert.Equal(t, 100_000.0, filters["valorMinimo"])
	assert.Equal(t, 2_000_000.0, filters["valorMaximo"])
}

// Missing entity kinds are "unconstrained": no filter key is emitted
func TestPlan_AbsentEntitiesProduceNoFilters(t *testing.T) {
	filters := contractFilters(nil, nil)
	assert.Empty(t, filters)
}

func TestPlan_LaterStageConsumesPriorResults(t *testing.T) {
	prior := []models.StageResult{
		{
			Records: []models.Record{
				{VendorID: "11222333000144", AgencyID: "26000"},
				{VendorID: "11222333000144", AgencyID: "36000"},
				{VendorID: "55666777000188", AgencyID: "26000"},
			},
		},
	}

	filters := vendorFilters(nil, prior)
	assert.ElementsMatch(t, []string{"11222333000144", "55666777000188"}, filters["cnpjs"])

	agency := agencyFilters(nil, prior)
	assert.ElementsMatch(t, []string{"26000", "36000"}, agency["orgaos"])
}

func TestPlan_UnknownIntentProducesNoFederationPlan(t *testing.T) {
	p := New()
	plan, err := p.Plan(models.Classification{Intent: models.IntentUnknown}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, StageDirectAnswer, plan.Stages[0].Name)
	assert.Empty(t, plan.Stages[0].Adapters)
}

func TestPlan_MissingIntentFails(t *testing.T) {
	p := New()
	_, err := p.Plan(models.Classification{}, nil)
	assert.Error(t, err)
}
