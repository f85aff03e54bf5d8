package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinela-br/sentinela/internal/models"
)

func rec(id, vendorID, agencyID string, value float64) models.Record {
	return models.Record{
		SourceID:   id,
		Source:     "portal_transparencia",
		VendorID:   vendorID,
		VendorName: "Vendor " + vendorID,
		AgencyID:   agencyID,
		AgencyName: "Agency " + agencyID,
		Value:      value,
		Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func edgeSet(g *models.EntityGraph) map[[3]string]bool {
	set := make(map[[3]string]bool)
	for _, e := range g.Edges {
		set[[3]string{e.From, e.Relation, e.To}] = true
	}
	return set
}

func TestBuild_NodesAndEdges(t *testing.T) {
	records := []models.Record{
		rec("c1", "11222333000144", "26000", 150_000),
		rec("c2", "11222333000144", "36000", 90_000),
		rec("c3", "55666777000188", "26000", 40_000),
	}

	g := NewBuilder().Build(records)

	// 3 contracts + 2 vendors + 2 agencies
	require.Len(t, g.Nodes, 7)

	kinds := map[models.GraphNodeKind]int{}
	for _, n := range g.Nodes {
		kinds[n.Kind]++
	}
	assert.Equal(t, 3, kinds[models.NodeContract])
	assert.Equal(t, 2, kinds[models.NodeVendor])
	assert.Equal(t, 2, kinds[models.NodeAgency])

	edges := edgeSet(g)
	assert.True(t, edges[[3]string{"vendor:11222333000144", RelationAwarded, "contract:portal_transparencia:c1"}])
	assert.True(t, edges[[3]string{"contract:portal_transparencia:c1", RelationContractedBy, "agency:26000"}])
	assert.True(t, edges[[3]string{"vendor:11222333000144", RelationSupplies, "agency:26000"}])
	assert.True(t, edges[[3]string{"vendor:11222333000144", RelationSupplies, "agency:36000"}])
	assert.True(t, edges[[3]string{"vendor:55666777000188", RelationSupplies, "agency:26000"}])
}

func TestBuild_SuppliesEdgeIsDeduplicated(t *testing.T) {
	records := []models.Record{
		rec("c1", "11222333000144", "26000", 100),
		rec("c2", "11222333000144", "26000", 200),
		rec("c3", "11222333000144", "26000", 300),
	}

	g := NewBuilder().Build(records)

	supplies := 0
	for _, e := range g.Edges {
		if e.Relation == RelationSupplies {
			supplies++
		}
	}
	assert.Equal(t, 1, supplies, "one supplies edge per vendor-agency pair")
}

func TestBuild_VendorStats(t *testing.T) {
	records := []models.Record{
		rec("c1", "11222333000144", "26000", 150_000),
		rec("c2", "11222333000144", "36000", 50_000),
		rec("c3", "55666777000188", "26000", 10_000),
	}

	g := NewBuilder().Build(records)

	stats, ok := g.VendorStats["11222333000144"]
	require.True(t, ok)
	assert.Equal(t, 2, stats.ContractCount)
	assert.InDelta(t, 200_000, stats.TotalValue, 0.01)
	assert.Equal(t, 2, stats.AgencyCount)
	assert.Equal(t, "Vendor 11222333000144", stats.VendorName)

	stats, ok = g.VendorStats["55666777000188"]
	require.True(t, ok)
	assert.Equal(t, 1, stats.ContractCount)
	assert.Equal(t, 1, stats.AgencyCount)
}

func TestBuild_RecordsWithoutIdentifiers(t *testing.T) {
	records := []models.Record{
		{SourceID: "c1", Source: "ibge", Value: 10, Description: "indicador regional"},
	}

	g := NewBuilder().Build(records)

	require.Len(t, g.Nodes, 1)
	assert.Equal(t, models.NodeContract, g.Nodes[0].Kind)
	assert.Empty(t, g.Edges, "edges need both endpoints")
	assert.Empty(t, g.VendorStats)
}

func TestBuild_EmptyInput(t *testing.T) {
	g := NewBuilder().Build(nil)
	require.NotNil(t, g)
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)
	assert.NotNil(t, g.VendorStats)
}
