package graph

import (
	"context"
	"sync"
)

// MemoryClient records queries and replays canned read results. It stands
// in for Neo4j in tests.
type MemoryClient struct {
	mu          sync.Mutex
	writes      []Query
	reads       []Query
	readResults []Result
	err         error
}

// Query is one executed statement.
type Query struct {
	Cypher string
	Params map[string]any
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

// FailWith makes every subsequent call return err.
func (m *MemoryClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// QueueRead appends a result for the next ExecuteRead.
func (m *MemoryClient) QueueRead(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readResults = append(m.readResults, res)
}

func (m *MemoryClient) ExecuteWrite(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	m.writes = append(m.writes, Query{Cypher: cypher, Params: params})
	return Result{}, nil
}

func (m *MemoryClient) ExecuteRead(_ context.Context, cypher string, params map[string]any) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Result{}, m.err
	}
	m.reads = append(m.reads, Query{Cypher: cypher, Params: params})
	if len(m.readResults) == 0 {
		return Result{}, nil
	}
	res := m.readResults[0]
	m.readResults = m.readResults[1:]
	return res, nil
}

func (m *MemoryClient) VerifyConnectivity(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *MemoryClient) Close(context.Context) error { return nil }

func (m *MemoryClient) Writes() []Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Query(nil), m.writes...)
}

func (m *MemoryClient) Reads() []Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Query(nil), m.reads...)
}
