package models

import (
	"time"

	"github.com/google/uuid"
)

// InvestigationStatus tracks the lifecycle of one investigation
type InvestigationStatus string

const (
	StatusPending    InvestigationStatus = "pending"
	StatusProcessing InvestigationStatus = "processing"
	StatusCompleted  InvestigationStatus = "completed"
	StatusFailed     InvestigationStatus = "failed"
	StatusCancelled  InvestigationStatus = "cancelled"
)

// Phase names the processing sub-state of an investigation
type Phase string

const (
	PhaseIntentClassification Phase = "intent_classification"
	PhaseEntityExtraction     Phase = "entity_extraction"
	PhaseQueryPlanning        Phase = "query_planning"
	PhaseDataFederation       Phase = "data_federation"
	PhaseEntityGraph          Phase = "entity_graph"
	PhaseAnomalyDetection     Phase = "anomaly_detection"
)

// EntityKind identifies the type of a fact extracted from free text
type EntityKind string

const (
	EntityRegion   EntityKind = "region"
	EntityYear     EntityKind = "year"
	EntityMonetary EntityKind = "monetary_value"
	EntityCategory EntityKind = "category"
	EntityOrg      EntityKind = "organization"
)

// Entity is one structured fact extracted from the query.
// Immutable once extracted; a query yields an ordered set and duplicate
// kinds are allowed (e.g. two monetary bounds).
type Entity struct {
	Kind       EntityKind `json:"kind"`
	RawText    string     `json:"raw_text"`
	Normalized string     `json:"normalized_value"`
	// NumericValue carries the parsed number for monetary/year entities;
	// zero for kinds that have no numeric form.
	NumericValue float64 `json:"numeric_value,omitempty"`
}

// IntentType is the coarse purpose inferred for a user query
type IntentType string

const (
	IntentAnomalyInvestigation IntentType = "contract_anomaly_detection"
	IntentStatusLookup         IntentType = "status_lookup"
	IntentGeneralQuestion      IntentType = "general_question"
	IntentUnknown              IntentType = "unknown"
)

// Classification is the intent classifier's verdict
type Classification struct {
	Intent     IntentType `json:"intent"`
	Confidence float64    `json:"confidence"`
	// Target names the component that should handle the query
	// (pipeline, conversational responder, status endpoint).
	Target string `json:"target_component"`
	// Path records whether the deterministic ruleset or the LLM
	// fallback produced the verdict.
	Path string `json:"path"`
}

const (
	TargetPipeline       = "investigation_pipeline"
	TargetConversational = "conversational_responder"
	TargetStatus         = "status_endpoint"
)

// InvestigationContext is the immutable per-run identity. Owned by the
// aggregator; every other component gets a read-only reference.
type InvestigationContext struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Query     string         `json:"query"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

// NewInvestigationContext creates a run identity with a fresh UUID and an
// always-present (possibly empty) metadata map.
func NewInvestigationContext(query, userID, sessionID string) *InvestigationContext {
	return &InvestigationContext{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Query:     query,
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// Record is the normalized representation of one fetched item
// (contract, expense, transfer). Created by adapters, consumed by detectors.
type Record struct {
	SourceID    string         `json:"source_id" db:"source_id"`
	Source      string         `json:"source" db:"source"`
	VendorID    string         `json:"vendor_id" db:"vendor_id"`
	VendorName  string         `json:"vendor_name" db:"vendor_name"`
	AgencyID    string         `json:"agency_id" db:"agency_id"`
	AgencyName  string         `json:"agency_name" db:"agency_name"`
	Category    string         `json:"category" db:"category"`
	Value       float64        `json:"value" db:"value"`
	Date        time.Time      `json:"date" db:"date"`
	Description string         `json:"description" db:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// StageStatus is the outcome of one adapter invocation
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StagePartial StageStatus = "partial"
	StageFailed  StageStatus = "failed"
)

// StageResult is the outcome of invoking one adapter within one stage
type StageResult struct {
	Stage       string      `json:"stage"`
	Adapter     string      `json:"adapter"`
	Status      StageStatus `json:"status"`
	RecordCount int         `json:"record_count"`
	Records     []Record    `json:"records"`
	// Error holds a human-readable failure detail; reason codes used by
	// the federation layer: transient_exhausted, validation_rejected,
	// circuit_open, cache_fallback, stage_timeout.
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// ParamBuilder derives adapter-specific filters from the extracted entities
// and the outputs of prior stages. Builders are pure; they never perform I/O.
type ParamBuilder func(entities []Entity, prior []StageResult) map[string]any

// StageDef is one step of an execution plan
type StageDef struct {
	Name     string   `json:"name"`
	Adapters []string `json:"adapters"`
	// Params holds one builder per adapter named above.
	Params map[string]ParamBuilder `json:"-"`
}

// ExecutionPlan is built once per investigation and never mutated after
// creation. Stages execute in declared order.
type ExecutionPlan struct {
	Intent IntentType `json:"intent"`
	Stages []StageDef `json:"stages"`
}

// AnomalyType identifies which detector family produced a flag
type AnomalyType string

const (
	AnomalyPriceDeviation      AnomalyType = "price_deviation"
	AnomalyVendorConcentration AnomalyType = "vendor_concentration"
	AnomalyTemporalPattern     AnomalyType = "temporal_pattern"
	AnomalyNearDuplicate       AnomalyType = "near_duplicate"
	AnomalyMLOutlier           AnomalyType = "ml_outlier"
)

// Severity ranks how serious an anomaly is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityRank orders severities for presentation sorting
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Anomaly is one flagged finding. Produced by exactly one detector and
// never mutated afterwards; different detectors may flag the same record
// with different types and that is not deduplicated.
type Anomaly struct {
	ID         string      `json:"id"`
	Type       AnomalyType `json:"type"`
	Detector   string      `json:"detector"`
	Severity   Severity    `json:"severity"`
	Confidence float64     `json:"confidence"`
	RecordIDs  []string    `json:"record_ids"`
	Evidence   string      `json:"evidence"`
}

// NewAnomaly fills in the identity fields every anomaly must carry
func NewAnomaly(t AnomalyType, detector string, sev Severity, confidence float64, recordIDs []string, evidence string) Anomaly {
	return Anomaly{
		ID:         uuid.New().String(),
		Type:       t,
		Detector:   detector,
		Severity:   sev,
		Confidence: confidence,
		RecordIDs:  recordIDs,
		Evidence:   evidence,
	}
}

// GraphNodeKind classifies entity-graph nodes
type GraphNodeKind string

const (
	NodeVendor   GraphNodeKind = "vendor"
	NodeAgency   GraphNodeKind = "agency"
	NodeContract GraphNodeKind = "contract"
)

// GraphNode is one node of the derived relationship graph
type GraphNode struct {
	ID    string        `json:"id"`
	Kind  GraphNodeKind `json:"kind"`
	Label string        `json:"label"`
}

// GraphEdge is one relationship between two graph nodes
type GraphEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"` // awarded, contracted_by, supplies
}

// VendorStats holds the per-vendor aggregates detectors use as context
type VendorStats struct {
	VendorID      string  `json:"vendor_id"`
	VendorName    string  `json:"vendor_name"`
	ContractCount int     `json:"contract_count"`
	TotalValue    float64 `json:"total_value"`
	AgencyCount   int     `json:"agency_count"`
}

// EntityGraph is the lightweight relationship graph derived from merged
// records, used as detection context. Built once, then read-only.
type EntityGraph struct {
	Nodes       []GraphNode            `json:"nodes"`
	Edges       []GraphEdge            `json:"edges"`
	VendorStats map[string]VendorStats `json:"vendor_stats"`
}

// InvestigationResult is the single result shape for the whole pipeline.
// Anomalies live in the dedicated Anomalies field and auxiliary summaries in
// Metadata; both are always present (empty, never absent).
type InvestigationResult struct {
	InvestigationID string              `json:"investigation_id"`
	UserID          string              `json:"user_id"`
	SessionID       string              `json:"session_id"`
	Query           string              `json:"query"`
	Status          InvestigationStatus `json:"status"`
	Phase           Phase               `json:"current_phase,omitempty"`
	Progress        float64             `json:"progress"`
	Intent          Classification      `json:"intent"`
	Entities        []Entity            `json:"entities"`
	Plan            *ExecutionPlan      `json:"plan,omitempty"`
	StageResults    []StageResult       `json:"stage_results"`
	Graph           *EntityGraph        `json:"graph,omitempty"`
	Anomalies       []Anomaly           `json:"anomalies"`
	Metadata        map[string]any      `json:"metadata"`
	KnownIssues     []string            `json:"known_issues"`
	Error           string              `json:"error,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
	Duration        time.Duration       `json:"processing_duration"`
}

// MergedRecords concatenates the records of every stage result,
// preserving stage order.
func (r *InvestigationResult) MergedRecords() []Record {
	var out []Record
	for _, sr := range r.StageResults {
		out = append(out, sr.Records...)
	}
	return out
}
