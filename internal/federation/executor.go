// Package federation executes an investigation's plan against the source
// adapter registry. It is partial-failure tolerant by design: a failing
// source degrades coverage, it never aborts the plan.
package federation

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sentinela-br/sentinela/internal/adapters"
	"github.com/sentinela-br/sentinela/internal/cache"
	apperrors "github.com/sentinela-br/sentinela/internal/errors"
	"github.com/sentinela-br/sentinela/internal/models"
)

// Stage-result reason codes recorded in StageResult.Error
const (
	ReasonCircuitOpen        = "circuit_open"
	ReasonCacheFallback      = "cache_fallback"
	ReasonTransientExhausted = "transient_exhausted"
	ReasonValidationRejected = "validation_rejected"
	ReasonUnknownAdapter     = "unknown_adapter"
	ReasonCancelled          = "cancelled"
)

// ResponseCache is the slice of the cache client the executor needs;
// narrow so tests can fake it and nil disables caching.
type ResponseCache interface {
	Get(ctx context.Context, key string, target interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// Config tunes the executor's timeouts and retry policy. The adapter
// timeout must stay below the stage timeout so a slow source cannot eat
// the whole stage budget.
type Config struct {
	AdapterTimeout time.Duration
	StageTimeout   time.Duration
	Retry          RetryConfig
}

// DefaultConfig returns the documented federation defaults
func DefaultConfig() Config {
	return Config{
		AdapterTimeout: 8 * time.Second,
		StageTimeout:   30 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// Executor runs execution plans. Everything except the injected breaker
// store is per-investigation state.
type Executor struct {
	registry *adapters.Registry
	breakers *BreakerStore
	cache    ResponseCache
	cfg      Config
	logger   *logrus.Logger
}

// NewExecutor creates an executor. cache may be nil.
func NewExecutor(registry *adapters.Registry, breakers *BreakerStore, responseCache ResponseCache, cfg Config, logger *logrus.Logger) *Executor {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultConfig().AdapterTimeout
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultConfig().StageTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Executor{
		registry: registry,
		breakers: breakers,
		cache:    responseCache,
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute runs every stage of the plan in declared order. The only
// cancellation checkpoint is between stages: in-flight adapter calls of
// the current stage finish (or time out) first, their results are
// discarded, and the results of the stages completed before cancellation
// are returned alongside ctx.Err().
func (e *Executor) Execute(ctx context.Context, plan *models.ExecutionPlan, entities []models.Entity) ([]models.StageResult, error) {
	var results []models.StageResult
	for _, stage := range plan.Stages {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		stageResults := e.ExecuteStage(ctx, stage, entities, results)
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, stageResults...)

		e.logger.WithFields(logrus.Fields{
			"stage":    stage.Name,
			"adapters": len(stage.Adapters),
			"records":  countRecords(stageResults),
		}).Info("stage complete")
	}
	return results, nil
}

// ExecuteStage fans out to the stage's adapters concurrently and joins on
// all of them; there is no first-success short-circuit. Callers must not
// rely on result order within the stage.
func (e *Executor) ExecuteStage(ctx context.Context, stage models.StageDef, entities []models.Entity, prior []models.StageResult) []models.StageResult {
	if len(stage.Adapters) == 0 {
		return nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	defer cancel()

	results := make([]models.StageResult, len(stage.Adapters))
	var g errgroup.Group
	for i, name := range stage.Adapters {
		g.Go(func() error {
			results[i] = e.callAdapter(stageCtx, stage, name, entities, prior)
			return nil
		})
	}
	g.Wait()
	return results
}

func (e *Executor) callAdapter(ctx context.Context, stage models.StageDef, name string, entities []models.Entity, prior []models.StageResult) models.StageResult {
	start := time.Now()
	result := models.StageResult{
		Stage:   stage.Name,
		Adapter: name,
		Records: []models.Record{},
	}
	finish := func(r models.StageResult) models.StageResult {
		r.RecordCount = len(r.Records)
		r.Duration = time.Since(start)
		return r
	}

	adapter, ok := e.registry.Get(name)
	if !ok {
		result.Status = models.StageFailed
		result.Error = ReasonUnknownAdapter
		return finish(result)
	}

	filters := make(map[string]any)
	if build, ok := stage.Params[name]; ok && build != nil {
		filters = build(entities, prior)
	}
	injectDefaults(adapter, filters)

	cacheKey := cache.ResponseKey(name, filters)

	if !e.breakers.Allow(name) {
		// Open circuit: no network call. Cached data still counts as
		// (degraded) coverage.
		if cached, ok := e.fromCache(ctx, cacheKey); ok {
			result.Status = models.StagePartial
			result.Records = cached
			result.Error = ReasonCacheFallback
			return finish(result)
		}
		result.Status = models.StageFailed
		result.Error = ReasonCircuitOpen
		return finish(result)
	}

	records, attempts, err := callWithRetry(ctx, e.cfg.Retry, func(ctx context.Context) ([]models.Record, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
		defer cancel()
		return adapter.Search(callCtx, filters)
	})
	result.Attempts = attempts

	switch {
	case err == nil:
		e.breakers.RecordSuccess(name)
		result.Status = models.StageSuccess
		result.Records = records
		e.toCache(ctx, cacheKey, records)
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		// The caller cancelled, the source did not fail; cancellation is
		// not a breaker signal. The breaker state is shared across
		// investigations.
		result.Status = models.StageFailed
		result.Error = ReasonCancelled + ": " + errString(err)
	case apperrors.IsValidation(err):
		// The source is healthy, it rejected this request; that is not
		// a breaker signal.
		e.logger.WithFields(logrus.Fields{
			"adapter": name,
			"stage":   stage.Name,
			"error":   err.Error(),
		}).Warn("adapter rejected request after default injection")
		result.Status = models.StageFailed
		result.Error = ReasonValidationRejected + ": " + err.Error()
	default:
		e.breakers.RecordFailure(name)
		e.logger.WithFields(logrus.Fields{
			"adapter":  name,
			"stage":    stage.Name,
			"attempts": attempts,
			"error":    errString(err),
		}).Warn("adapter failed after retries")
		if cached, ok := e.fromCache(ctx, cacheKey); ok {
			result.Status = models.StagePartial
			result.Records = cached
			result.Error = ReasonCacheFallback
		} else {
			result.Status = models.StageFailed
			result.Error = ReasonTransientExhausted + ": " + errString(err)
		}
	}
	return finish(result)
}

// injectDefaults substitutes documented, query-independent defaults for
// mandatory filter fields the parameter builder left unset. Some sources
// reject any request missing e.g. an organization code; failing outright
// would lose the whole source.
func injectDefaults(adapter adapters.Adapter, filters map[string]any) {
	rf, ok := adapter.(adapters.RequiredFields)
	if !ok {
		return
	}
	for key, def := range rf.RequiredFilters() {
		if _, present := filters[key]; !present {
			filters[key] = def
		}
	}
}

func (e *Executor) fromCache(ctx context.Context, key string) ([]models.Record, bool) {
	if e.cache == nil {
		return nil, false
	}
	var records []models.Record
	hit, err := e.cache.Get(ctx, key, &records)
	if err != nil || !hit {
		return nil, false
	}
	return records, true
}

func (e *Executor) toCache(ctx context.Context, key string, records []models.Record) {
	if e.cache == nil || len(records) == 0 {
		return
	}
	if err := e.cache.Set(ctx, key, records); err != nil {
		e.logger.WithField("key", key).WithError(err).Debug("response cache write failed")
	}
}

func countRecords(results []models.StageResult) int {
	n := 0
	for _, r := range results {
		n += r.RecordCount
	}
	return n
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
