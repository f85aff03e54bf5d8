// Package intent assigns a coarse investigation intent to a user query.
// The deterministic ruleset is the default path; the LLM fallback only runs
// when the ruleset's confidence falls below the documented threshold, so the
// common case stays fast and reproducible.
package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/sentinela-br/sentinela/internal/extractor"
	"github.com/sentinela-br/sentinela/internal/llm"
	"github.com/sentinela-br/sentinela/internal/logging"
	"github.com/sentinela-br/sentinela/internal/models"
)

// FastPathThreshold is the confidence below which the classifier consults
// the LLM fallback. Deterministic verdicts at or above it are final.
const FastPathThreshold = 0.70

const (
	pathDeterministic = "deterministic"
	pathLLMFallback   = "llm_fallback"
)

var investigativeVerbs = []string{
	"investigar", "investigue", "analisar", "analise", "mostrar", "mostre",
	"listar", "liste", "buscar", "busque", "encontrar", "encontre",
	"verificar", "verifique", "detectar", "detecte", "auditar", "audite",
	"identificar", "identifique", "apurar", "apure",
}

var investigativeNouns = []string{
	"contrato", "contratos", "licitacao", "licitacoes", "gasto", "gastos",
	"despesa", "despesas", "convenio", "convenios", "superfaturamento",
	"irregularidade", "irregularidades", "fraude", "fraudes",
	"anomalia", "anomalias", "emenda", "emendas",
}

var statusKeywords = []string{
	"status", "andamento", "progresso", "situacao da investigacao",
}

var questionMarkers = []string{
	"o que", "como", "por que", "porque", "quem", "qual", "quais", "quando",
}

// Classifier implements the two-path design: curated ruleset first, LLM
// second. The LLM client may be nil; the classifier then always answers
// deterministically.
type Classifier struct {
	llm     llm.Client
	limiter *llm.RateLimiter
	logger  *slog.Logger
}

// New creates a classifier. Both llmClient and limiter may be nil.
func New(llmClient llm.Client, limiter *llm.RateLimiter) *Classifier {
	return &Classifier{
		llm:     llmClient,
		limiter: limiter,
		logger:  logging.Component("intent"),
	}
}

// Classify returns the intent verdict for the query. Misclassification is a
// quality concern, not an error: the error return is reserved for internal
// failures, and the fallback path degrades to the deterministic verdict
// rather than failing.
func (c *Classifier) Classify(ctx context.Context, query string, entities []models.Entity) (models.Classification, error) {
	verdict := c.classifyDeterministic(query, entities)
	if verdict.Confidence >= FastPathThreshold {
		return verdict, nil
	}

	if c.llm == nil {
		c.logger.Debug("low confidence and no llm configured, keeping deterministic verdict",
			"intent", verdict.Intent, "confidence", verdict.Confidence)
		return verdict, nil
	}

	llmVerdict, err := c.classifyLLM(ctx, query)
	if err != nil {
		c.logger.Warn("llm fallback failed, keeping deterministic verdict", "error", err)
		return verdict, nil
	}
	return llmVerdict, nil
}

func (c *Classifier) classifyDeterministic(query string, entities []models.Entity) models.Classification {
	folded := extractor.Fold(query)

	hasVerb := containsAny(folded, investigativeVerbs)
	hasNoun := containsAny(folded, investigativeNouns)
	hasStatus := containsAny(folded, statusKeywords)
	hasQuestion := containsAny(folded, questionMarkers) || strings.Contains(query, "?")

	var hasMonetary, hasRegion, hasCategory, hasYear bool
	for _, e := range entities {
		switch e.Kind {
		case models.EntityMonetary:
			hasMonetary = true
		case models.EntityRegion:
			hasRegion = true
		case models.EntityCategory:
			hasCategory = true
		case models.EntityYear:
			hasYear = true
		}
	}

	verdict := func(intent models.IntentType, confidence float64) models.Classification {
		return models.Classification{
			Intent:     intent,
			Confidence: confidence,
			Target:     targetFor(intent),
			Path:       pathDeterministic,
		}
	}

	switch {
	case hasStatus:
		return verdict(models.IntentStatusLookup, 0.90)
	case hasVerb && (hasMonetary || hasRegion):
		return verdict(models.IntentAnomalyInvestigation, 0.95)
	case hasVerb && (hasCategory || hasYear):
		return verdict(models.IntentAnomalyInvestigation, 0.85)
	case hasNoun && (hasMonetary || hasRegion || hasCategory || hasYear):
		return verdict(models.IntentAnomalyInvestigation, 0.85)
	case hasNoun && hasVerb:
		return verdict(models.IntentAnomalyInvestigation, 0.80)
	case hasQuestion && !hasNoun && !hasVerb:
		return verdict(models.IntentGeneralQuestion, 0.80)
	case hasNoun || hasVerb:
		return verdict(models.IntentAnomalyInvestigation, 0.60)
	default:
		return verdict(models.IntentUnknown, 0.30)
	}
}

const classifySystemPrompt = `Você classifica consultas sobre gastos públicos.
Responda com JSON: {"intent": "<contract_anomaly_detection|status_lookup|general_question|unknown>", "confidence": <0..1>}.
contract_anomaly_detection: o usuário quer investigar contratos, gastos ou irregularidades.
status_lookup: o usuário pergunta pelo andamento de uma investigação existente.
general_question: pergunta conversacional sem pedido de investigação.`

type llmVerdict struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (c *Classifier) classifyLLM(ctx context.Context, query string) (models.Classification, error) {
	if c.limiter != nil {
		// Estimated tokens: prompt plus a small JSON answer
		if err := c.limiter.CheckAndIncrement(ctx, 300); err != nil {
			return models.Classification{}, err
		}
	}

	raw, err := c.llm.CompleteJSON(ctx, classifySystemPrompt, query)
	if err != nil {
		return models.Classification{}, err
	}

	var v llmVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		return models.Classification{}, err
	}

	intent := models.IntentType(v.Intent)
	switch intent {
	case models.IntentAnomalyInvestigation, models.IntentStatusLookup, models.IntentGeneralQuestion:
	default:
		intent = models.IntentUnknown
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		v.Confidence = 0.5
	}

	c.logger.Info("llm fallback classified query", "intent", intent, "confidence", v.Confidence)
	return models.Classification{
		Intent:     intent,
		Confidence: v.Confidence,
		Target:     targetFor(intent),
		Path:       pathLLMFallback,
	}, nil
}

func targetFor(intent models.IntentType) string {
	switch intent {
	case models.IntentAnomalyInvestigation:
		return models.TargetPipeline
	case models.IntentStatusLookup:
		return models.TargetStatus
	default:
		return models.TargetConversational
	}
}

func containsAny(folded string, words []string) bool {
	for _, w := range words {
		if containsWord(folded, w) {
			return true
		}
	}
	return false
}

// containsWord matches w as a whole word inside folded text
func containsWord(s, w string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		leftOK := start == 0 || !isWordByte(s[start-1])
		rightOK := end == len(s) || !isWordByte(s[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
