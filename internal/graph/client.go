// Package graph talks to the Neo4j property graph: repository code structure
// written by the extractor, entity neighborhoods written by GraphRAG, and the
// read paths that serve validation and knowledge-graph queries.
package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragmill/ragmill/internal/config"
	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// Runner executes one Cypher statement and returns its rows. The production
// implementation is Neo4j; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Close(ctx context.Context) error
}

// Neo4jRunner is the driver-backed Runner. Safe for concurrent use; the
// underlying driver pools connections.
type Neo4jRunner struct {
	driver neo4j.DriverWithContext
}

// Connect opens a driver against the configured graph and verifies
// connectivity before returning.
func Connect(ctx context.Context, cfg config.GraphConfig) (*Neo4jRunner, error) {
	if !cfg.Configured() {
		return nil, ragerr.GraphUnavailable()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeGraphQuery, "open graph driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, ragerr.New(ragerr.ErrCodeGraphQuery, "verify graph connectivity", err)
	}
	return &Neo4jRunner{driver: driver}, nil
}

func (r *Neo4jRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	result, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params,
		neo4j.EagerResultTransformer)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeGraphQuery, "run cypher", err)
	}
	rows := make([]map[string]any, len(result.Records))
	for i, rec := range result.Records {
		rows[i] = rec.AsMap()
	}
	return rows, nil
}

func (r *Neo4jRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ Runner = (*Neo4jRunner)(nil)
