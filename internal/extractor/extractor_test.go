package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinela-br/sentinela/internal/models"
)

func findKind(entities []models.Entity, kind models.EntityKind) []models.Entity {
	var out []models.Entity
	for _, e := range entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// All accepted spellings of a region must normalize to the same code
func TestExtract_RegionVariants(t *testing.T) {
	ex := New()

	tests := []struct {
		query string
		code  string
	}{
		{"contratos em Minas Gerais", "MG"},
		{"contratos em minas gerais", "MG"},
		{"contratos em MG", "MG"},
		{"gastos de São Paulo", "SP"},
		{"gastos de sao paulo", "SP"},
		{"gastos em SP", "SP"},
		{"obras no Pará", "PA"},
		{"obras no PA", "PA"},
		{"despesas no Rio Grande do Sul", "RS"},
		{"despesas no Espírito Santo", "ES"},
		{"despesas no espirito santo", "ES"},
		{"convenios no Distrito Federal", "DF"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			regions := findKind(ex.Extract(tt.query), models.EntityRegion)
			require.Len(t, regions, 1, "expected exactly one region")
			assert.Equal(t, tt.code, regions[0].Normalized)
		})
	}
}

// Lowercase two-letter words must not be mistaken for region abbreviations
func TestExtract_AbbreviationRequiresUppercase(t *testing.T) {
	ex := New()

	// "se", "da", "em" and friends appear in almost every Portuguese
	// sentence; none may produce a region.
	entities := ex.Extract("mostre se ha gastos em educacao para a populacao")
	assert.Empty(t, findKind(entities, models.EntityRegion))

	// The bare word "para" (no diacritic) is a preposition, not the state
	entities = ex.Extract("contratos para merenda escolar")
	assert.Empty(t, findKind(entities, models.EntityRegion))
}

func TestExtract_Monetary(t *testing.T) {
	ex := New()

	tests := []struct {
		query string
		value float64
	}{
		{"contratos acima de R$ 1 milhão", 1_000_000},
		{"contratos acima de 1 milhao", 1_000_000},
		{"acima de 500 mil", 500_000},
		{"mais de 2 bilhões", 2_000_000_000},
		{"acima de um milhão de reais", 1_000_000},
		{"valor de R$ 1.500.000,00", 1_500_000},
		{"valor de 2,5 milhões", 2_500_000},
		{"gastos de 300 reais", 300},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			money := findKind(ex.Extract(tt.query), models.EntityMonetary)
			require.Len(t, money, 1, "expected exactly one monetary entity")
			assert.InDelta(t, tt.value, money[0].NumericValue, 0.001)
		})
	}
}

func TestExtract_BareNumberIsNotMonetary(t *testing.T) {
	ex := New()
	entities := ex.Extract("processo numero 123456")
	assert.Empty(t, findKind(entities, models.EntityMonetary))
}

func TestExtract_Year(t *testing.T) {
	ex := New()
	years := findKind(ex.Extract("licitações de 2024"), models.EntityYear)
	require.Len(t, years, 1)
	assert.Equal(t, "2024", years[0].Normalized)
	assert.Equal(t, float64(2024), years[0].NumericValue)
}

func TestExtract_Categories(t *testing.T) {
	ex := New()

	tests := []struct {
		query string
		cat   string
	}{
		{"contratos de saúde", "health"},
		{"compra de medicamentos", "health"},
		{"reforma de escolas", "education"},
		{"pavimentação de estradas", "infrastructure"},
		{"compra de viaturas", "security"},
		{"licitação de software", "technology"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			cats := findKind(ex.Extract(tt.query), models.EntityCategory)
			require.Len(t, cats, 1)
			assert.Equal(t, tt.cat, cats[0].Normalized)
		})
	}
}

// Duplicate kinds are allowed: two monetary bounds stay two entities
func TestExtract_DuplicateKinds(t *testing.T) {
	ex := New()
	money := findKind(ex.Extract("entre R$ 100 mil e R$ 2 milhões"), models.EntityMonetary)
	require.Len(t, money, 2)
	assert.InDelta(t, 100_000, money[0].NumericValue, 0.001)
	assert.InDelta(t, 2_000_000, money[1].NumericValue, 0.001)
}

// End-to-end reference query from the product brief
func TestExtract_ReferenceQuery(t *testing.T) {
	ex := New()
	entities := ex.Extract("Contratos de saúde em MG acima de 1 milhão em 2024")

	regions := findKind(entities, models.EntityRegion)
	require.Len(t, regions, 1)
	assert.Equal(t, "MG", regions[0].Normalized)

	cats := findKind(entities, models.EntityCategory)
	require.Len(t, cats, 1)
	assert.Equal(t, "health", cats[0].Normalized)

	years := findKind(entities, models.EntityYear)
	require.Len(t, years, 1)
	assert.Equal(t, "2024", years[0].Normalized)

	money := findKind(entities, models.EntityMonetary)
	require.Len(t, money, 1)
	assert.InDelta(t, 1_000_000, money[0].NumericValue, 0.001)
}

// Output is ordered by position in the query
func TestExtract_Ordering(t *testing.T) {
	ex := New()
	entities := ex.Extract("saúde em MG em 2024")
	require.Len(t, entities, 3)
	assert.Equal(t, models.EntityCategory, entities[0].Kind)
	assert.Equal(t, models.EntityRegion, entities[1].Kind)
	assert.Equal(t, models.EntityYear, entities[2].Kind)
}

func TestExtract_UnrecognizedIsIgnored(t *testing.T) {
	ex := New()
	assert.Empty(t, ex.Extract("bom dia, tudo bem?"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "sao paulo", Fold("São Paulo"))
	assert.Equal(t, "saude educacao", Fold("Saúde Educação"))
}
