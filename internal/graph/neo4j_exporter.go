package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/sentinela-br/sentinela/internal/logging"
	"github.com/sentinela-br/sentinela/internal/models"
)

// Exporter persists entity graphs to Neo4j so analysts can explore
// vendor relationships across investigations. Export is best-effort:
// callers log failures and move on, an unreachable graph store never
// fails an investigation.
type Exporter struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
}

// NewExporter connects to Neo4j and verifies connectivity up front so a
// misconfigured endpoint surfaces at startup, not mid-investigation.
func NewExporter(ctx context.Context, uri, user, password, database string) (*Exporter, error) {
	if uri == "" || user == "" || password == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%s, user=%s", uri, user)
	}
	if database == "" {
		database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(uri,
		neo4j.BasicAuth(user, password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 25
			config.ConnectionAcquisitionTimeout = 30 * time.Second
			config.MaxConnectionLifetime = time.Hour
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", uri, err)
	}

	logger := logging.Component("neo4j")
	logger.Info("neo4j exporter connected", "uri", uri, "database", database)

	return &Exporter{driver: driver, logger: logger, database: database}, nil
}

// Close closes the underlying driver
func (e *Exporter) Close(ctx context.Context) error {
	if err := e.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	return nil
}

// HealthCheck verifies Neo4j connectivity
func (e *Exporter) HealthCheck(ctx context.Context) error {
	if err := e.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j health check failed: %w", err)
	}
	return nil
}

// Export upserts the graph's nodes and edges, tagged with the
// investigation id. MERGE keeps re-runs of the same investigation
// idempotent.
func (e *Exporter) Export(ctx context.Context, investigationID string, g *models.EntityGraph) error {
	start := time.Now()

	nodes := make([]map[string]any, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, map[string]any{
			"id":    n.ID,
			"kind":  string(n.Kind),
			"label": n.Label,
		})
	}
	edges := make([]map[string]any, 0, len(g.Edges))
	for _, ed := range g.Edges {
		edges = append(edges, map[string]any{
			"from":     ed.From,
			"to":       ed.To,
			"relation": ed.Relation,
		})
	}

	nodeQuery := `
		UNWIND $nodes AS n
		MERGE (e:Entity {id: n.id})
		SET e.kind = n.kind,
		    e.label = n.label,
		    e.investigation_id = $investigation_id
	`
	if _, err := neo4j.ExecuteQuery(ctx, e.driver, nodeQuery,
		map[string]any{"nodes": nodes, "investigation_id": investigationID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(e.database)); err != nil {
		return fmt.Errorf("node export failed: %w", err)
	}

	edgeQuery := `
		UNWIND $edges AS r
		MATCH (a:Entity {id: r.from})
		MATCH (b:Entity {id: r.to})
		MERGE (a)-[rel:RELATES {relation: r.relation}]->(b)
		SET rel.investigation_id = $investigation_id
	`
	if _, err := neo4j.ExecuteQuery(ctx, e.driver, edgeQuery,
		map[string]any{"edges": edges, "investigation_id": investigationID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(e.database)); err != nil {
		return fmt.Errorf("edge export failed: %w", err)
	}

	e.logger.Info("entity graph exported",
		"investigation_id", investigationID,
		"nodes", len(nodes),
		"edges", len(edges),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
