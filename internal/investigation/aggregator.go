// Package investigation owns the investigation lifecycle: the state
// machine from pending through the processing phases to a terminal status,
// and the assembly of every component's output into one result object. It
// is the only package that talks to storage.
package investigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sentinela-br/sentinela/internal/detect"
	apperrors "github.com/sentinela-br/sentinela/internal/errors"
	"github.com/sentinela-br/sentinela/internal/extractor"
	"github.com/sentinela-br/sentinela/internal/federation"
	"github.com/sentinela-br/sentinela/internal/graph"
	"github.com/sentinela-br/sentinela/internal/intent"
	"github.com/sentinela-br/sentinela/internal/models"
	"github.com/sentinela-br/sentinela/internal/planner"
)

// Persister is the slice of the storage layer the aggregator needs.
// Persistence failure is reported separately from investigation status: an
// investigation can be analytically completed yet fail to persist.
type Persister interface {
	SaveInvestigation(ctx context.Context, result *models.InvestigationResult) error
}

// GraphExporter pushes the entity graph to an external graph store.
// Export is best-effort and never fails an investigation.
type GraphExporter interface {
	Export(ctx context.Context, investigationID string, g *models.EntityGraph) error
}

// Config tunes the aggregator
type Config struct {
	// OverallTimeout force-cancels remaining federation stages; the
	// investigation finalizes with whatever stage results exist, marked in
	// known issues.
	OverallTimeout time.Duration
}

// DefaultConfig returns the documented aggregator defaults
func DefaultConfig() Config {
	return Config{OverallTimeout: 2 * time.Minute}
}

// Aggregator drives one investigation at a time through the pipeline.
// Everything except the injected collaborators is constructed fresh per
// investigation; the aggregator itself is safe for concurrent Run calls.
type Aggregator struct {
	extractor   *extractor.Extractor
	classifier  *intent.Classifier
	planner     *planner.Planner
	executor    *federation.Executor
	builder     *graph.Builder
	engine      *detect.Engine
	store       Persister        // optional
	checkpoints *CheckpointStore // optional
	exporter    GraphExporter    // optional
	cfg         Config
	logger      *logrus.Logger
}

// New wires the pipeline components together. store, checkpoints and
// exporter may each be nil; the corresponding concern is skipped.
func New(classifier *intent.Classifier, executor *federation.Executor, engine *detect.Engine, store Persister, checkpoints *CheckpointStore, exporter GraphExporter, cfg Config, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = DefaultConfig().OverallTimeout
	}
	return &Aggregator{
		extractor:   extractor.New(),
		classifier:  classifier,
		planner:     planner.New(),
		executor:    executor,
		builder:     graph.NewBuilder(),
		engine:      engine,
		store:       store,
		checkpoints: checkpoints,
		exporter:    exporter,
		cfg:         cfg,
		logger:      logger,
	}
}

// progressByPhase maps each phase to the progress fraction reported once
// that phase begins.
var progressByPhase = map[models.Phase]float64{
	models.PhaseIntentClassification: 0.10,
	models.PhaseEntityExtraction:     0.25,
	models.PhaseQueryPlanning:        0.35,
	models.PhaseDataFederation:       0.50,
	models.PhaseEntityGraph:          0.80,
	models.PhaseAnomalyDetection:     0.90,
}

// Run executes one investigation end to end and always returns a
// structured result: completed, failed or cancelled, never an opaque
// error. Source failures degrade coverage and land in KnownIssues; only
// unrecoverable errors (no valid plan) produce status failed.
func (a *Aggregator) Run(ctx context.Context, query, userID, sessionID string) *models.InvestigationResult {
	invCtx := models.NewInvestigationContext(query, userID, sessionID)
	result := &models.InvestigationResult{
		InvestigationID: invCtx.ID,
		UserID:          userID,
		SessionID:       sessionID,
		Query:           query,
		Status:          models.StatusPending,
		Entities:        []models.Entity{},
		StageResults:    []models.StageResult{},
		Anomalies:       []models.Anomaly{},
		Metadata:        map[string]any{},
		KnownIssues:     []string{},
		CreatedAt:       invCtx.CreatedAt,
	}
	a.checkpoint(result)

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.OverallTimeout)
	defer cancel()

	started := time.Now().UTC()
	result.StartedAt = &started
	result.Status = models.StatusProcessing

	log := a.logger.WithFields(logrus.Fields{
		"investigation_id": invCtx.ID,
		"user_id":          userID,
	})
	log.Info("investigation started")

	// Intent classification. Entities are extracted here because the
	// deterministic ruleset consumes them; they are surfaced in the result
	// during the extraction phase below.
	a.enterPhase(result, models.PhaseIntentClassification)
	entities := a.extractor.Extract(query)
	classification, err := a.classifier.Classify(runCtx, query, entities)
	if err != nil {
		return a.finalizeError(result, err, log)
	}
	result.Intent = classification

	if cancelled := a.cancelledCheckpoint(ctx, result, log); cancelled {
		return result
	}

	a.enterPhase(result, models.PhaseEntityExtraction)
	result.Entities = entities

	a.enterPhase(result, models.PhaseQueryPlanning)
	plan, err := a.planner.Plan(classification, entities)
	if err != nil {
		return a.finalizeError(result, err, log)
	}
	result.Plan = plan

	if cancelled := a.cancelledCheckpoint(ctx, result, log); cancelled {
		return result
	}

	a.enterPhase(result, models.PhaseDataFederation)
	stageResults, execErr := a.executor.Execute(runCtx, plan, entities)
	if stageResults == nil {
		stageResults = []models.StageResult{}
	}
	result.StageResults = stageResults
	collectKnownIssues(result)

	detectCtx := runCtx
	switch {
	case execErr == nil:
	case errors.Is(execErr, context.DeadlineExceeded):
		// Overall timeout: finalize with whatever stage results exist.
		// Graph building and detection are CPU-bound and still run.
		result.KnownIssues = append(result.KnownIssues, "investigation timeout: remaining federation stages skipped")
		log.Warn("overall timeout reached, finalizing with partial coverage")
		detectCtx = context.WithoutCancel(runCtx)
	case errors.Is(execErr, context.Canceled):
		return a.finalizeCancelled(result, log)
	default:
		return a.finalizeError(result, execErr, log)
	}

	a.enterPhase(result, models.PhaseEntityGraph)
	records := result.MergedRecords()
	entityGraph := a.builder.Build(records)
	result.Graph = entityGraph
	a.exportGraph(detectCtx, invCtx.ID, entityGraph, log)

	a.enterPhase(result, models.PhaseAnomalyDetection)
	anomalies, detectorStatus := a.engine.Detect(detectCtx, records, entityGraph)
	result.Anomalies = anomalies
	result.Metadata["detector_status"] = detectorStatus
	result.Metadata["record_count"] = len(records)

	result.Status = models.StatusCompleted
	result.Phase = ""
	result.Progress = 1.0
	now := time.Now().UTC()
	result.CompletedAt = &now
	result.Duration = now.Sub(started)
	a.checkpoint(result)

	a.persist(ctx, result, log)

	log.WithFields(logrus.Fields{
		"records":   len(records),
		"anomalies": len(anomalies),
		"duration":  result.Duration,
	}).Info("investigation completed")
	return result
}

// Status returns the latest checkpointed snapshot for an investigation id.
// Unknown ids return nil without error.
func (a *Aggregator) Status(id string) (*models.InvestigationResult, error) {
	if a.checkpoints == nil {
		return nil, apperrors.InternalError("checkpoint store not configured")
	}
	return a.checkpoints.Load(id)
}

func (a *Aggregator) enterPhase(result *models.InvestigationResult, phase models.Phase) {
	result.Phase = phase
	result.Progress = progressByPhase[phase]
	a.checkpoint(result)
}

// cancelledCheckpoint is the cooperative cancellation checkpoint between
// phases. In-flight work of the current phase always finishes first.
func (a *Aggregator) cancelledCheckpoint(ctx context.Context, result *models.InvestigationResult, log *logrus.Entry) bool {
	if ctx.Err() == nil {
		return false
	}
	a.finalizeCancelled(result, log)
	return true
}

func (a *Aggregator) finalizeCancelled(result *models.InvestigationResult, log *logrus.Entry) *models.InvestigationResult {
	result.Status = models.StatusCancelled
	now := time.Now().UTC()
	result.CompletedAt = &now
	if result.StartedAt != nil {
		result.Duration = now.Sub(*result.StartedAt)
	}
	a.checkpoint(result)
	log.WithField("phase", result.Phase).Info("investigation cancelled")
	return result
}

func (a *Aggregator) finalizeError(result *models.InvestigationResult, err error, log *logrus.Entry) *models.InvestigationResult {
	result.Status = models.StatusFailed
	result.Error = err.Error()
	now := time.Now().UTC()
	result.CompletedAt = &now
	if result.StartedAt != nil {
		result.Duration = now.Sub(*result.StartedAt)
	}
	a.checkpoint(result)
	log.WithFields(logrus.Fields{
		"phase": result.Phase,
		"error": err.Error(),
	}).Error("investigation failed")
	return result
}

func (a *Aggregator) checkpoint(result *models.InvestigationResult) {
	if a.checkpoints == nil {
		return
	}
	if err := a.checkpoints.Save(result); err != nil {
		a.logger.WithError(err).Warn("checkpoint write failed")
	}
}

func (a *Aggregator) exportGraph(ctx context.Context, id string, g *models.EntityGraph, log *logrus.Entry) {
	if a.exporter == nil {
		return
	}
	if err := a.exporter.Export(ctx, id, g); err != nil {
		log.WithError(err).Warn("graph export failed")
	}
}

func (a *Aggregator) persist(ctx context.Context, result *models.InvestigationResult, log *logrus.Entry) {
	if a.store == nil {
		return
	}
	// Persistence runs on the caller's context, not the (possibly expired)
	// investigation context.
	if err := a.store.SaveInvestigation(context.WithoutCancel(ctx), result); err != nil {
		log.WithError(err).Error("persistence failed; result returned in memory only")
		result.Metadata["persistence_error"] = err.Error()
		result.KnownIssues = append(result.KnownIssues, "persistence failed: "+err.Error())
	}
}

// collectKnownIssues records degraded sources for transparency
func collectKnownIssues(result *models.InvestigationResult) {
	for _, sr := range result.StageResults {
		if sr.Status == models.StageSuccess {
			continue
		}
		result.KnownIssues = append(result.KnownIssues,
			fmt.Sprintf("source %s degraded in stage %s: %s", sr.Adapter, sr.Stage, sr.Error))
	}
}
