package accesslog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// MemoryStore keeps access logs in process. Used when OpenSearch is
// disabled and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	logs []models.AccessLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Record(_ context.Context, l models.AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *MemoryStore) SearchSignificant(_ context.Context, terms []string, limit int) ([]models.AccessLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.AccessLog{}
	for _, l := range m.logs {
		if !isSignificant(l) || !mentions(l.Path, terms) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func mentions(path string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(path)
	for _, t := range terms {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func isSignificant(l models.AccessLog) bool {
	for _, m := range writeMethods {
		if strings.EqualFold(l.Method, m) {
			return true
		}
	}
	lower := strings.ToLower(l.Path)
	for _, p := range []string{"evidence", "escalate", "reports", "risk", "admin"} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
