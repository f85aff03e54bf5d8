// Package planner turns an intent plus entity set into an execution plan.
// It is a pure data-to-plan transformation: the planner never calls
// adapters and every parameter builder it emits is side-effect-free.
package planner

import (
	"log/slog"

	"github.com/sentinela-br/sentinela/internal/adapters"
	apperrors "github.com/sentinela-br/sentinela/internal/errors"
	"github.com/sentinela-br/sentinela/internal/logging"
	"github.com/sentinela-br/sentinela/internal/models"
)

// Stage names
const (
	StageContractCollection = "contract_collection"
	StageEconomicContext    = "economic_context"
	StageSupplierHistory    = "supplier_history"
	StageDirectAnswer       = "direct_answer"
)

// Planner maps intents to fixed stage templates
type Planner struct {
	logger *slog.Logger
}

// New creates a Planner
func New() *Planner {
	return &Planner{logger: logging.Component("planner")}
}

// Plan builds the execution plan for the classified intent. Unknown or
// conversational intents produce a minimal one-stage no-federation plan;
// a plan with zero stages is a planning failure and fails the
// investigation.
func (p *Planner) Plan(classification models.Classification, entities []models.Entity) (*models.ExecutionPlan, error) {
	if classification.Intent == "" {
		return nil, apperrors.PlanningError("cannot plan without an intent")
	}

	var plan *models.ExecutionPlan
	switch classification.Intent {
	case models.IntentAnomalyInvestigation:
		plan = p.investigationPlan(classification.Intent)
	default:
		plan = p.directAnswerPlan(classification.Intent)
	}

	if len(plan.Stages) == 0 {
		return nil, apperrors.PlanningErrorf("no stages produced for intent %s", classification.Intent)
	}

	p.logger.Debug("plan built", "intent", classification.Intent, "stages", len(plan.Stages))
	return plan, nil
}

// investigationPlan is the template for contract anomaly detection:
// collect contracts, enrich with economic context, then pull supplier
// history for the vendors the collection surfaced.
func (p *Planner) investigationPlan(intent models.IntentType) *models.ExecutionPlan {
	return &models.ExecutionPlan{
		Intent: intent,
		Stages: []models.StageDef{
			{
				Name: StageContractCollection,
				Adapters: []string{
					adapters.SourcePortalTransparencia,
					adapters.SourceComprasGov,
				},
				Params: map[string]models.ParamBuilder{
					adapters.SourcePortalTransparencia: contractFilters,
					adapters.SourceComprasGov:          contractFilters,
				},
			},
			{
				Name: StageEconomicContext,
				Adapters: []string{
					adapters.SourceIBGE,
					adapters.SourceTCU,
				},
				Params: map[string]models.ParamBuilder{
					adapters.SourceIBGE: regionContextFilters,
					adapters.SourceTCU:  agencyFilters,
				},
			},
			{
				Name:     StageSupplierHistory,
				Adapters: []string{adapters.SourceCNPJRegistry},
				Params: map[string]models.ParamBuilder{
					adapters.SourceCNPJRegistry: vendorFilters,
				},
			},
		},
	}
}

// directAnswerPlan keeps the state machine on its normal path for
// non-investigative intents: one stage, zero adapters, no federation.
func (p *Planner) directAnswerPlan(intent models.IntentType) *models.ExecutionPlan {
	return &models.ExecutionPlan{
		Intent: intent,
		Stages: []models.StageDef{
			{Name: StageDirectAnswer, Adapters: nil, Params: nil},
		},
	}
}

// contractFilters derives portal-style contract filters from the entity
// set. Missing entity kinds mean "unconstrained" and produce no filter.
func contractFilters(entities []models.Entity, _ []models.StageResult) map[string]any {
	filters := make(map[string]any)
	var monetary []float64
	for _, e := range entities {
		switch e.Kind {
		case models.EntityRegion:
			filters["uf"] = e.Normalized
		case models.EntityYear:
			filters["ano"] = int(e.NumericValue)
		case models.EntityCategory:
			filters["categoria"] = e.Normalized
		case models.EntityMonetary:
			monetary = append(monetary, e.NumericValue)
		}
	}
	// One monetary entity is a lower bound; two form a range
	switch len(monetary) {
	case 1:
		filters["valorMinimo"] = monetary[0]
	default:
		if len(monetary) >= 2 {
			lo, hi := monetary[0], monetary[1]
			if lo > hi {
				lo, hi = hi, lo
			}
			filters["valorMinimo"] = lo
			filters["valorMaximo"] = hi
		}
	}
	return filters
}

// regionContextFilters requests statistical context for the query's region
// and year
func regionContextFilters(entities []models.Entity, _ []models.StageResult) map[string]any {
	filters := make(map[string]any)
	for _, e := range entities {
		switch e.Kind {
		case models.EntityRegion:
			filters["uf"] = e.Normalized
		case models.EntityYear:
			filters["ano"] = int(e.NumericValue)
		}
	}
	return filters
}

// agencyFilters targets the audit court at the agencies the contract
// collection stage actually surfaced
func agencyFilters(entities []models.Entity, prior []models.StageResult) map[string]any {
	filters := regionContextFilters(entities, prior)
	if codes := distinctFromPrior(prior, func(r models.Record) string { return r.AgencyID }); len(codes) > 0 {
		filters["orgaos"] = codes
	}
	return filters
}

// vendorFilters targets the registry lookup at the vendors surfaced by
// earlier stages
func vendorFilters(_ []models.Entity, prior []models.StageResult) map[string]any {
	filters := make(map[string]any)
	if ids := distinctFromPrior(prior, func(r models.Record) string { return r.VendorID }); len(ids) > 0 {
		filters["cnpjs"] = ids
	}
	return filters
}

// distinctFromPrior collects distinct non-empty keys from prior stage
// records, capped to keep filter payloads bounded.
func distinctFromPrior(prior []models.StageResult, key func(models.Record) string) []string {
	const maxKeys = 50
	seen := make(map[string]bool)
	var out []string
	for _, sr := range prior {
		for _, rec := range sr.Records {
			k := key(rec)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
			if len(out) >= maxKeys {
				return out
			}
		}
	}
	return out
}
