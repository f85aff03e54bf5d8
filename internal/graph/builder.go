// Package graph derives the vendor/agency/contract relationship graph used
// as detection context, and optionally exports it to Neo4j for later
// exploration.
package graph

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/sentinela-br/sentinela/internal/logging"
	"github.com/sentinela-br/sentinela/internal/models"
)

// Relation names
const (
	RelationAwarded      = "awarded"       // vendor -> contract
	RelationContractedBy = "contracted_by" // contract -> agency
	RelationSupplies     = "supplies"      // vendor -> agency
)

// Builder constructs entity graphs from merged records. Deterministic,
// no I/O.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a Builder
func NewBuilder() *Builder {
	return &Builder{logger: logging.Component("graph")}
}

// Build groups records by vendor and agency, derives the edges between
// them, and computes the per-vendor aggregates detectors consume. Records
// without a vendor or agency id still yield a contract node; only the
// edges that have both endpoints are created.
func (b *Builder) Build(records []models.Record) *models.EntityGraph {
	g := &models.EntityGraph{
		Nodes:       []models.GraphNode{},
		Edges:       []models.GraphEdge{},
		VendorStats: make(map[string]models.VendorStats),
	}

	vendors := make(map[string]string)         // id -> label
	agencies := make(map[string]string)        // id -> label
	vendorAgency := make(map[string]map[string]bool)

	for _, rec := range records {
		contractID := ContractNodeID(rec)
		g.Nodes = append(g.Nodes, models.GraphNode{
			ID:    contractID,
			Kind:  models.NodeContract,
			Label: rec.Description,
		})

		if rec.VendorID != "" {
			if _, seen := vendors[rec.VendorID]; !seen {
				vendors[rec.VendorID] = rec.VendorName
			}
			g.Edges = append(g.Edges, models.GraphEdge{
				From:     vendorNodeID(rec.VendorID),
				To:       contractID,
				Relation: RelationAwarded,
			})

			stats := g.VendorStats[rec.VendorID]
			stats.VendorID = rec.VendorID
			if stats.VendorName == "" {
				stats.VendorName = rec.VendorName
			}
			stats.ContractCount++
			stats.TotalValue += rec.Value
			g.VendorStats[rec.VendorID] = stats
		}

		if rec.AgencyID != "" {
			if _, seen := agencies[rec.AgencyID]; !seen {
				agencies[rec.AgencyID] = rec.AgencyName
			}
			g.Edges = append(g.Edges, models.GraphEdge{
				From:     contractID,
				To:       agencyNodeID(rec.AgencyID),
				Relation: RelationContractedBy,
			})
		}

		if rec.VendorID != "" && rec.AgencyID != "" {
			if vendorAgency[rec.VendorID] == nil {
				vendorAgency[rec.VendorID] = make(map[string]bool)
			}
			if !vendorAgency[rec.VendorID][rec.AgencyID] {
				vendorAgency[rec.VendorID][rec.AgencyID] = true
				g.Edges = append(g.Edges, models.GraphEdge{
					From:     vendorNodeID(rec.VendorID),
					To:       agencyNodeID(rec.AgencyID),
					Relation: RelationSupplies,
				})
			}
		}
	}

	for id, pairs := range vendorAgency {
		stats := g.VendorStats[id]
		stats.AgencyCount = len(pairs)
		g.VendorStats[id] = stats
	}

	// Vendor and agency nodes in deterministic order
	for _, id := range sortedKeys(vendors) {
		g.Nodes = append(g.Nodes, models.GraphNode{
			ID:    vendorNodeID(id),
			Kind:  models.NodeVendor,
			Label: vendors[id],
		})
	}
	for _, id := range sortedKeys(agencies) {
		g.Nodes = append(g.Nodes, models.GraphNode{
			ID:    agencyNodeID(id),
			Kind:  models.NodeAgency,
			Label: agencies[id],
		})
	}

	b.logger.Debug("entity graph built",
		"records", len(records),
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"vendors", len(vendors),
	)
	return g
}

// ContractNodeID builds the graph node id for a record
func ContractNodeID(rec models.Record) string {
	return fmt.Sprintf("contract:%s:%s", rec.Source, rec.SourceID)
}

func vendorNodeID(id string) string { return "vendor:" + id }

func agencyNodeID(id string) string { return "agency:" + id }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
