package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinela-br/sentinela/internal/extractor"
	"github.com/sentinela-br/sentinela/internal/models"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) CompleteJSON(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeLLM) Close() error { return nil }

// Regression guard: an investigative verb plus a monetary or regional
// entity must resolve on the fast path above the threshold.
func TestClassify_FastPathInvestigative(t *testing.T) {
	c := New(nil, nil)
	ex := extractor.New()

	queries := []string{
		"Investigue contratos acima de R$ 1 milhão",
		"Mostre gastos em MG",
		"Liste contratos de saúde em São Paulo",
		"Analise despesas acima de 500 mil em 2024",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			verdict, err := c.Classify(context.Background(), q, ex.Extract(q))
			require.NoError(t, err)
			assert.Equal(t, models.IntentAnomalyInvestigation, verdict.Intent)
			assert.GreaterOrEqual(t, verdict.Confidence, FastPathThreshold)
			assert.Equal(t, models.TargetPipeline, verdict.Target)
			assert.Equal(t, "deterministic", verdict.Path)
		})
	}
}

func TestClassify_StatusLookup(t *testing.T) {
	c := New(nil, nil)
	verdict, err := c.Classify(context.Background(), "qual o status da investigação?", nil)
	require.NoError(t, err)
	assert.Equal(t, models.IntentStatusLookup, verdict.Intent)
	assert.Equal(t, models.TargetStatus, verdict.Target)
}

func TestClassify_GeneralQuestion(t *testing.T) {
	c := New(nil, nil)
	verdict, err := c.Classify(context.Background(), "o que é o portal da transparência?", nil)
	require.NoError(t, err)
	assert.Equal(t, models.IntentGeneralQuestion, verdict.Intent)
	assert.Equal(t, models.TargetConversational, verdict.Target)
}

// The fast path must not consult the LLM when it is confident
func TestClassify_LLMNotCalledOnFastPath(t *testing.T) {
	fake := &fakeLLM{response: `{"intent":"general_question","confidence":0.9}`}
	c := New(fake, nil)
	ex := extractor.New()

	q := "Investigue contratos acima de R$ 1 milhão em MG"
	verdict, err := c.Classify(context.Background(), q, ex.Extract(q))
	require.NoError(t, err)
	assert.Equal(t, models.IntentAnomalyInvestigation, verdict.Intent)
	assert.Zero(t, fake.calls, "fast path must not invoke the LLM")
}

func TestClassify_LLMFallbackOnAmbiguous(t *testing.T) {
	fake := &fakeLLM{response: `{"intent":"contract_anomaly_detection","confidence":0.82}`}
	c := New(fake, nil)

	verdict, err := c.Classify(context.Background(), "aquele negócio do ano passado", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, models.IntentAnomalyInvestigation, verdict.Intent)
	assert.Equal(t, "llm_fallback", verdict.Path)
	assert.InDelta(t, 0.82, verdict.Confidence, 0.001)
}

// A broken fallback degrades to the deterministic verdict, never to an error
func TestClassify_LLMFailureKeepsDeterministicVerdict(t *testing.T) {
	fake := &fakeLLM{err: errors.New("provider down")}
	c := New(fake, nil)

	verdict, err := c.Classify(context.Background(), "aquele negócio do ano passado", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, "deterministic", verdict.Path)
	assert.Less(t, verdict.Confidence, FastPathThreshold)
}

func TestClassify_UnknownIntentFromLLMIsNormalized(t *testing.T) {
	fake := &fakeLLM{response: `{"intent":"something_else","confidence":0.9}`}
	c := New(fake, nil)

	verdict, err := c.Classify(context.Background(), "xyzzy", nil)
	require.NoError(t, err)
	assert.Equal(t, models.IntentUnknown, verdict.Intent)
	assert.Equal(t, models.TargetConversational, verdict.Target)
}
