package adapters

import (
	"fmt"
	"time"

	"github.com/sentinela-br/sentinela/internal/models"
)

// ContractMapper normalizes the contract/expense shapes the government
// portals return. Field aliases cover the Portal da Transparência and
// Compras.gov payloads; anything unrecognized stays in Payload.
func ContractMapper(source string, raw map[string]any) (models.Record, error) {
	rec := models.Record{
		Source:  source,
		Payload: raw,
	}

	rec.SourceID = firstString(raw, "id", "numero", "numeroContrato", "codigo")
	if rec.SourceID == "" {
		return models.Record{}, fmt.Errorf("record from %s has no id field", source)
	}
	rec.VendorID = firstString(raw, "cnpj", "cnpjFornecedor", "fornecedor_id")
	rec.VendorName = firstString(raw, "fornecedor", "nomeFornecedor", "razaoSocial")
	rec.AgencyID = firstString(raw, "codigoOrgao", "orgao_id", "unidadeGestora")
	rec.AgencyName = firstString(raw, "orgao", "nomeOrgao")
	rec.Category = firstString(raw, "categoria", "funcao", "areaAtuacao")
	rec.Description = firstString(raw, "objeto", "descricao", "objetoContrato")
	rec.Value = firstNumber(raw, "valor", "valorContrato", "valorInicial", "valorTotal")

	if dateStr := firstString(raw, "dataAssinatura", "data", "dataPublicacao"); dateStr != "" {
		for _, layout := range []string{"2006-01-02", "02/01/2006", time.RFC3339} {
			if d, err := time.Parse(layout, dateStr); err == nil {
				rec.Date = d
				break
			}
		}
	}
	return rec, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func firstNumber(raw map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			switch n := v.(type) {
			case float64:
				return n
			case int:
				return float64(n)
			}
		}
	}
	return 0
}
