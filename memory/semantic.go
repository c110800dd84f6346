package memory

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// FactQuery filters the semantic fact log. Empty fields match everything.
type FactQuery struct {
	Subject   string         `json:"subject,omitempty"`
	Predicate string         `json:"predicate,omitempty"`
	Kind      types.FactKind `json:"kind,omitempty"`
	Limit     int            `json:"limit,omitempty"`
}

// SemanticStore is the append-only per-owner fact log. It performs no
// deduplication: the same triple observed twice is two log entries, which
// preserves observation frequency for downstream consumers.
type SemanticStore struct {
	mu      sync.RWMutex
	byOwner map[string][]types.Fact
	logger  *zap.Logger
}

// NewSemanticStore creates an empty semantic fact log.
func NewSemanticStore(logger *zap.Logger) *SemanticStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemanticStore{
		byOwner: make(map[string][]types.Fact),
		logger:  logger.With(zap.String("component", "semantic_store")),
	}
}

// Append records a fact in the owner's log.
func (s *SemanticStore) Append(_ context.Context, f types.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOwner[f.OwnerID] = append(s.byOwner[f.OwnerID], f)
	return nil
}

// Facts returns the owner's facts matching q, in insertion order.
func (s *SemanticStore) Facts(_ context.Context, ownerID string, q FactQuery) ([]types.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Fact
	for _, f := range s.byOwner[ownerID] {
		if q.Subject != "" && !strings.EqualFold(f.Subject, q.Subject) {
			continue
		}
		if q.Predicate != "" && !strings.EqualFold(f.Predicate, q.Predicate) {
			continue
		}
		if q.Kind != "" && f.Kind != q.Kind {
			continue
		}
		out = append(out, f)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// Len reports the size of the owner's log.
func (s *SemanticStore) Len(ownerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byOwner[ownerID])
}

// Warm preloads facts, typically from the durable store at startup.
func (s *SemanticStore) Warm(facts []types.Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		s.byOwner[f.OwnerID] = append(s.byOwner[f.OwnerID], f)
	}
}

// Clear drops the owner's log.
func (s *SemanticStore) Clear(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byOwner, ownerID)
}
