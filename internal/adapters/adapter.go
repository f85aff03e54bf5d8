// Package adapters defines the contract between the federation layer and
// the per-source data clients, plus the fixed registry of named sources.
// The HTTP semantics of each government source live behind this boundary;
// the pipeline only sees Search and the transient/validation error split.
package adapters

import (
	"context"

	"github.com/sentinela-br/sentinela/internal/models"
)

// Source names. The registry is a fixed set; stages reference adapters by
// these names.
const (
	SourcePortalTransparencia = "portal_transparencia"
	SourceComprasGov          = "compras_gov"
	SourceTCU                 = "tcu"
	SourceIBGE                = "ibge"
	SourceCNPJRegistry        = "cnpj_registry"
)

// Adapter is the uniform fetch contract every source client implements.
// Filters are source-specific; the federation layer treats them as an
// opaque mapping populated by the stage's parameter builder.
//
// Implementations must return errors built with errors.TransientError for
// retryable conditions (timeouts, 5xx) and errors.ValidationError for
// rejected requests (4xx). Conflating the two breaks the retry policy.
type Adapter interface {
	Name() string
	Search(ctx context.Context, filters map[string]any) ([]models.Record, error)
}

// RequiredFields lets an adapter declare mandatory filter keys so the
// federation layer can inject documented defaults before calling Search.
type RequiredFields interface {
	RequiredFilters() map[string]any
}
