// Package graph mirrors accounts into the social graph store as one node per account.
//
// The mirror holds no personal data beyond the account id and the email
// lookup envelope. Nodes are only ever created and deleted.
package graph

import (
	"context"
	"sync"

	"linkup/cmd/identity"
)

// Mirror is the graph store boundary used by the session authority.
type Mirror interface {
	CreateNode(ctx context.Context, accountID, emailHash string) error
	// DeleteNode removes the node and all of its relationships.
	DeleteNode(ctx context.Context, accountID string) error
}

// MemoryMirror is an in-process Mirror for development and tests.
type MemoryMirror struct {
	mu    sync.Mutex
	nodes map[string]string
}

// NewMemoryMirror returns an empty MemoryMirror.
func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{nodes: make(map[string]string)}
}

func (m *MemoryMirror) CreateNode(ctx context.Context, accountID, emailHash string) error {
	const op = "graph.CreateNode"
	if err := ctx.Err(); err != nil {
		return identity.Fail(op, identity.FaultOf(err), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[accountID]; ok {
		return &identity.StoreError{Op: op, Fault: identity.FaultUniqueViolation, Field: "id"}
	}
	m.nodes[accountID] = emailHash
	return nil
}

func (m *MemoryMirror) DeleteNode(ctx context.Context, accountID string) error {
	const op = "graph.DeleteNode"
	if err := ctx.Err(); err != nil {
		return identity.Fail(op, identity.FaultOf(err), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[accountID]; !ok {
		return identity.Fail(op, identity.FaultNotFound, nil)
	}
	delete(m.nodes, accountID)
	return nil
}

// Has reports whether a node exists for accountID.
func (m *MemoryMirror) Has(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nodes[accountID]
	return ok
}

// Len returns the number of nodes.
func (m *MemoryMirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}
