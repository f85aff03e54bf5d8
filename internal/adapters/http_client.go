package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/sentinela-br/sentinela/internal/errors"
	"github.com/sentinela-br/sentinela/internal/logging"
	"github.com/sentinela-br/sentinela/internal/models"
)

// RecordMapper converts one raw source item into the normalized Record
type RecordMapper func(source string, raw map[string]any) (models.Record, error)

// HTTPAdapter is a rate-limited JSON-over-HTTP source client. Concrete
// sources differ only in base URL, auth header, mandatory filters and
// record mapping, so one implementation serves the whole registry.
type HTTPAdapter struct {
	name       string
	baseURL    string
	apiKeyName string
	apiKey     string
	required   map[string]any
	mapper     RecordMapper
	http       *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// HTTPAdapterConfig configures one source client
type HTTPAdapterConfig struct {
	Name       string
	BaseURL    string
	APIKeyName string // header name, e.g. "chave-api-dados"
	APIKey     string
	// Required lists mandatory filter keys with their documented,
	// query-independent defaults.
	Required map[string]any
	// RequestsPerSecond throttles calls to the source; government portals
	// ban aggressive clients.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// NewHTTPAdapter creates a source client from config
func NewHTTPAdapter(cfg HTTPAdapterConfig, mapper RecordMapper) *HTTPAdapter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPAdapter{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		apiKeyName: cfg.APIKeyName,
		apiKey:     cfg.APIKey,
		required:   cfg.Required,
		mapper:     mapper,
		http:       &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     logging.Component("adapter").With("source", cfg.Name),
	}
}

// Name returns the registered source name
func (a *HTTPAdapter) Name() string { return a.name }

// RequiredFilters returns the mandatory filter keys and their defaults
func (a *HTTPAdapter) RequiredFilters() map[string]any { return a.required }

// Search fetches records matching filters. Timeouts and 5xx map to
// transient errors, 4xx to validation errors.
func (a *HTTPAdapter) Search(ctx context.Context, filters map[string]any) ([]models.Record, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, apperrors.TransientError(err, "rate limiter wait interrupted")
	}

	q := url.Values{}
	for k, v := range filters {
		q.Set(k, fmt.Sprintf("%v", v))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, apperrors.ValidationErrorf("building request for %s: %v", a.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if a.apiKeyName != "" && a.apiKey != "" {
		req.Header.Set(a.apiKeyName, a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, apperrors.TransientError(err, fmt.Sprintf("request to %s failed", a.name))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.TransientErrorf("%s returned %d", a.name, resp.StatusCode)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.ValidationErrorf("%s rejected request (%d): %s", a.name, resp.StatusCode, string(body))
	}

	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, apperrors.TransientError(err, fmt.Sprintf("decoding %s response", a.name))
	}

	records := make([]models.Record, 0, len(items))
	for _, item := range items {
		rec, err := a.mapper(a.name, item)
		if err != nil {
			a.logger.Warn("skipping unmappable record", "error", err)
			continue
		}
		records = append(records, rec)
	}

	a.logger.Debug("search complete", "filters", len(filters), "records", len(records))
	return records, nil
}
