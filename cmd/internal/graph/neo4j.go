package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"linkup/cmd/identity"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const nodeLabel = "User"

// Neo4jMirror implements Mirror over a Neo4j driver.
// The driver is owned by the caller.
type Neo4jMirror struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jMirror binds a mirror to driver. An empty database uses the server default.
func NewNeo4jMirror(driver neo4j.DriverWithContext, database string) *Neo4jMirror {
	return &Neo4jMirror{driver: driver, database: strings.TrimSpace(database)}
}

// Dial opens a driver and verifies connectivity.
func Dial(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: verify connectivity: %w", err)
	}
	return driver, nil
}

// EnsureSchema creates the node id uniqueness constraint if missing.
func (m *Neo4jMirror) EnsureSchema(ctx context.Context) error {
	const op = "graph.EnsureSchema"

	_, err := m.exec(ctx,
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:`+nodeLabel+`) REQUIRE u.id IS UNIQUE`,
		nil,
	)
	if err != nil {
		return neoFail(op, err)
	}
	return nil
}

func (m *Neo4jMirror) CreateNode(ctx context.Context, accountID, emailHash string) error {
	const op = "graph.CreateNode"

	_, err := m.exec(ctx,
		`CREATE (u:`+nodeLabel+` {id: $id, emailHash: $emailHash})`,
		map[string]any{"id": accountID, "emailHash": emailHash},
	)
	if err != nil {
		return neoFail(op, err)
	}
	return nil
}

func (m *Neo4jMirror) DeleteNode(ctx context.Context, accountID string) error {
	const op = "graph.DeleteNode"

	res, err := m.exec(ctx,
		`MATCH (u:`+nodeLabel+` {id: $id}) DETACH DELETE u`,
		map[string]any{"id": accountID},
	)
	if err != nil {
		return neoFail(op, err)
	}
	if res.Summary.Counters().NodesDeleted() == 0 {
		return identity.Fail(op, identity.FaultNotFound, nil)
	}
	return nil
}

// Ping verifies the server is reachable.
func (m *Neo4jMirror) Ping(ctx context.Context) error {
	return m.driver.VerifyConnectivity(ctx)
}

func (m *Neo4jMirror) exec(ctx context.Context, cypher string, params map[string]any) (*neo4j.EagerResult, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithWritersRouting()}
	if m.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(m.database))
	}
	return neo4j.ExecuteQuery(ctx, m.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
}

func neoFail(op string, err error) error {
	se := &identity.StoreError{Op: op, Fault: neoFault(err), Err: err}
	if se.Fault == identity.FaultUniqueViolation {
		se.Field = "id"
	}
	return se
}

func neoFault(err error) identity.Fault {
	if errors.Is(err, context.DeadlineExceeded) || neo4j.IsConnectivityError(err) {
		return identity.FaultUnavailable
	}

	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		switch {
		case nerr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed":
			return identity.FaultUniqueViolation
		case strings.HasPrefix(nerr.Code, "Neo.TransientError."):
			return identity.FaultUnavailable
		}
		return identity.FaultOther
	}

	if neo4j.IsRetryable(err) {
		return identity.FaultUnavailable
	}
	return identity.FaultOther
}

var (
	_ Mirror = (*Neo4jMirror)(nil)
	_ Mirror = (*MemoryMirror)(nil)
)
