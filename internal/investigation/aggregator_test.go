package investigation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinela-br/sentinela/internal/adapters"
	"github.com/sentinela-br/sentinela/internal/detect"
	apperrors "github.com/sentinela-br/sentinela/internal/errors"
	"github.com/sentinela-br/sentinela/internal/federation"
	"github.com/sentinela-br/sentinela/internal/intent"
	"github.com/sentinela-br/sentinela/internal/models"
)

type stubAdapter struct {
	name     string
	required map[string]any

	mu      sync.Mutex
	calls   int
	filters []map[string]any
	records []models.Record
	err     error
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) RequiredFilters() map[string]any { return s.required }

func (s *stubAdapter) Search(_ context.Context, filters map[string]any) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.filters = append(s.filters, filters)
	return s.records, s.err
}

func (s *stubAdapter) lastFilters() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.filters) == 0 {
		return nil
	}
	return s.filters[len(s.filters)-1]
}

type capturingStore struct {
	mu    sync.Mutex
	saved []*models.InvestigationResult
	err   error
}

func (c *capturingStore) SaveInvestigation(_ context.Context, result *models.InvestigationResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.saved = append(c.saved, result)
	return nil
}

func contractRecord(id, vendorID string, value float64) models.Record {
	return models.Record{
		SourceID:    id,
		Source:      adapters.SourcePortalTransparencia,
		VendorID:    vendorID,
		VendorName:  "Fornecedor " + vendorID,
		AgencyID:    "26000",
		AgencyName:  "Ministério da Saúde",
		Category:    "health",
		Value:       value,
		Date:        time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Description: "aquisicao de insumos hospitalares lote " + id,
	}
}

func pipelineAdapters() []*stubAdapter {
	return []*stubAdapter{
		{
			name: adapters.SourcePortalTransparencia,
			records: []models.Record{
				contractRecord("ct-1", "11222333000144", 1_200_000),
				contractRecord("ct-2", "55666777000188", 1_500_000),
			},
		},
		{
			name:     adapters.SourceComprasGov,
			required: map[string]any{"codigoOrgao": "26000"},
			records:  []models.Record{contractRecord("ct-3", "11222333000144", 1_100_000)},
		},
		{name: adapters.SourceIBGE},
		{name: adapters.SourceTCU},
		{name: adapters.SourceCNPJRegistry},
	}
}

func newTestAggregator(t *testing.T, store Persister, stubs ...*stubAdapter) (*Aggregator, *CheckpointStore) {
	t.Helper()
	registry := adapters.NewRegistry()
	for _, s := range stubs {
		require.NoError(t, registry.Register(s))
	}
	executor := federation.NewExecutor(
		registry,
		federation.NewBreakerStore(federation.DefaultBreakerConfig()),
		nil,
		federation.Config{
			AdapterTimeout: time.Second,
			StageTimeout:   5 * time.Second,
			Retry:          federation.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		},
		nil,
	)

	checkpoints, err := OpenCheckpointStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { checkpoints.Close() })

	agg := New(
		intent.New(nil, nil),
		executor,
		detect.NewEngine(detect.DefaultDetectors()...),
		store,
		checkpoints,
		nil,
		Config{OverallTimeout: 30 * time.Second},
		nil,
	)
	return agg, checkpoints
}

func TestRun_EndToEnd(t *testing.T) {
	stubs := pipelineAdapters()
	store := &capturingStore{}
	agg, checkpoints := newTestAggregator(t, store, stubs...)

	result := agg.Run(context.Background(), "Contratos de saúde em MG acima de 1 milhão em 2024", "user-1", "session-1")

	require.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, 1.0, result.Progress)
	assert.Empty(t, result.Error)
	require.NotNil(t, result.CompletedAt)

	// Entities per the reference query
	kinds := map[models.EntityKind]models.Entity{}
	for _, e := range result.Entities {
		kinds[e.Kind] = e
	}
	assert.Equal(t, "MG", kinds[models.EntityRegion].Normalized)
	assert.Equal(t, "health", kinds[models.EntityCategory].Normalized)
	assert.Equal(t, float64(2024), kinds[models.EntityYear].NumericValue)
	assert.Equal(t, float64(1_000_000), kinds[models.EntityMonetary].NumericValue)

	assert.Equal(t, models.IntentAnomalyInvestigation, result.Intent.Intent)
	assert.GreaterOrEqual(t, result.Intent.Confidence, intent.FastPathThreshold)

	require.NotNil(t, result.Plan)
	assert.GreaterOrEqual(t, len(result.Plan.Stages), 2)

	// Mandatory field injected where the builder left it unset
	for _, s := range stubs {
		if s.name == adapters.SourceComprasGov {
			require.NotNil(t, s.lastFilters())
			assert.Equal(t, "26000", s.lastFilters()["codigoOrgao"])
			assert.Equal(t, "MG", s.lastFilters()["uf"])
		}
	}

	// Anomalies and metadata are always-present fields
	require.NotNil(t, result.Anomalies)
	require.NotNil(t, result.Metadata)
	assert.Contains(t, result.Metadata, "detector_status")
	assert.NotNil(t, result.Graph)

	// Persisted once, checkpoint reflects the terminal state
	require.Len(t, store.saved, 1)
	snapshot, err := checkpoints.Load(result.InvestigationID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, models.StatusCompleted, snapshot.Status)
}

// A source failing transiently 100% of the time degrades coverage but the
// investigation still completes.
func TestRun_AdapterFailureDoesNotFailInvestigation(t *testing.T) {
	stubs := pipelineAdapters()
	for _, s := range stubs {
		if s.name == adapters.SourceComprasGov {
			s.err = apperrors.TransientErrorf("gateway timeout")
		}
	}
	agg, _ := newTestAggregator(t, nil, stubs...)

	result := agg.Run(context.Background(), "Investigar contratos de saúde em MG acima de 1 milhão", "user-1", "session-1")

	assert.Equal(t, models.StatusCompleted, result.Status)
	require.NotEmpty(t, result.KnownIssues, "degraded sources must be recorded")

	var degraded bool
	for _, issue := range result.KnownIssues {
		if strings.Contains(issue, adapters.SourceComprasGov) {
			degraded = true
		}
	}
	assert.True(t, degraded)
}

func TestRun_NonInvestigativeQueryCompletesWithoutFederation(t *testing.T) {
	stubs := pipelineAdapters()
	agg, _ := newTestAggregator(t, nil, stubs...)

	result := agg.Run(context.Background(), "O que é o portal da transparência?", "user-1", "session-1")

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, models.IntentGeneralQuestion, result.Intent.Intent)
	assert.Empty(t, result.StageResults)
	for _, s := range stubs {
		assert.Zero(t, s.calls, "direct-answer plans must not touch adapters")
	}
	require.NotNil(t, result.Anomalies)
	assert.Empty(t, result.Anomalies)
}

func TestRun_CancelledBeforeFederation(t *testing.T) {
	agg, checkpoints := newTestAggregator(t, nil, pipelineAdapters()...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := agg.Run(ctx, "Investigar contratos de saúde em MG acima de 1 milhão", "user-1", "session-1")

	assert.Equal(t, models.StatusCancelled, result.Status)
	require.NotNil(t, result.CompletedAt)

	snapshot, err := checkpoints.Load(result.InvestigationID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, models.StatusCancelled, snapshot.Status)
}

// Persistence failure is reported separately: the investigation is still
// analytically completed and the result is returned in memory.
func TestRun_PersistenceFailureDoesNotFailInvestigation(t *testing.T) {
	store := &capturingStore{err: apperrors.StorageError(errors.New("connection refused"), "insert failed")}
	agg, _ := newTestAggregator(t, store, pipelineAdapters()...)

	result := agg.Run(context.Background(), "Investigar contratos de saúde em MG acima de 1 milhão", "user-1", "session-1")

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Contains(t, result.Metadata, "persistence_error")
}

func TestStatus_ReadsCheckpointSnapshot(t *testing.T) {
	agg, _ := newTestAggregator(t, nil, pipelineAdapters()...)

	result := agg.Run(context.Background(), "Investigar contratos de saúde em MG acima de 1 milhão", "user-1", "session-1")

	snapshot, err := agg.Status(result.InvestigationID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, models.StatusCompleted, snapshot.Status)
	assert.Equal(t, result.Query, snapshot.Query)

	missing, err := agg.Status("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	store, err := OpenCheckpointStore(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	defer store.Close()

	result := &models.InvestigationResult{
		InvestigationID: "inv-1",
		Status:          models.StatusProcessing,
		Phase:           models.PhaseDataFederation,
		Progress:        0.5,
		Anomalies:       []models.Anomaly{},
		Metadata:        map[string]any{},
	}
	require.NoError(t, store.Save(result))

	loaded, err := store.Load("inv-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, models.StatusProcessing, loaded.Status)
	assert.Equal(t, models.PhaseDataFederation, loaded.Phase)

	missing, err := store.Load("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
