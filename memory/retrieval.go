package memory

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// Scorer ranks a memory against a tokenized query. Scores <= 0 exclude the
// memory from results.
type Scorer func(queryTokens []string, m *types.Memory) float64

// LexicalOverlap is the default scorer: the fraction of query tokens present
// in the memory content, weighted by the memory's importance.
func LexicalOverlap(queryTokens []string, m *types.Memory) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := make(map[string]struct{})
	for _, tok := range strings.Fields(types.NormalizeContent(m.Content)) {
		contentTokens[tok] = struct{}{}
	}
	matched := 0
	for _, tok := range queryTokens {
		if _, ok := contentTokens[tok]; ok {
			matched++
		}
	}
	overlap := float64(matched) / float64(len(queryTokens))
	return overlap * m.Importance
}

// Retrieval ranks long-term memories for recall queries. Recall has side
// effects: every returned memory gets its access count incremented, its
// last-accessed timestamp refreshed, and its importance boosted.
type Retrieval struct {
	store  *TieredStore
	scorer Scorer
	logger *zap.Logger
}

// NewRetrieval creates a retrieval engine over the tiered store. A nil scorer
// falls back to LexicalOverlap.
func NewRetrieval(store *TieredStore, scorer Scorer, logger *zap.Logger) *Retrieval {
	if scorer == nil {
		scorer = LexicalOverlap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrieval{
		store:  store,
		scorer: scorer,
		logger: logger.With(zap.String("component", "retrieval")),
	}
}

// Recall returns the owner's memories ranked against the query text. Access
// control runs before scoring: the requester sees a non-global memory only
// when they own it or act as the system principal. The degraded flag reports
// that results came from the cache alone.
//
// Given an identical store state the ranking is deterministic: ties break by
// importance, then recency, then ID.
func (r *Retrieval) Recall(ctx context.Context, q types.MemoryQuery) ([]types.ScoredMemory, bool, error) {
	q.Normalize()
	tokens := strings.Fields(types.NormalizeContent(q.Text))

	all, degraded, err := r.store.GetAll(ctx, q.OwnerID)
	if err != nil {
		return nil, false, err
	}

	scored := make([]types.ScoredMemory, 0, len(all))
	for _, m := range all {
		if !types.CanAccess(q.Requester, m) {
			continue
		}
		if !scopeAllowed(q.Scopes, m.Scope) {
			continue
		}
		if !kindAllowed(q.Kinds, m.Category) {
			continue
		}
		if m.Importance < q.MinImportance {
			continue
		}
		score := r.scorer(tokens, m)
		if score <= 0 {
			continue
		}
		scored = append(scored, types.ScoredMemory{Memory: m, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.Importance != b.Memory.Importance {
			return a.Memory.Importance > b.Memory.Importance
		}
		if !a.Memory.CreatedAt.Equal(b.Memory.CreatedAt) {
			return a.Memory.CreatedAt.After(b.Memory.CreatedAt)
		}
		return a.Memory.ID < b.Memory.ID
	})

	if len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}

	// Recall side effects, applied after ranking so the boost does not feed
	// back into this query's scores. Touch goes to the memory's own owner:
	// a global hit may belong to someone other than the querying owner.
	for i := range scored {
		touched, terr := r.store.Touch(ctx, scored[i].Memory.OwnerID, scored[i].Memory.ID)
		if terr != nil {
			r.logger.Warn("recall touch failed",
				zap.String("memory_id", scored[i].Memory.ID),
				zap.Error(terr),
			)
			continue
		}
		scored[i].Memory = touched
	}
	return scored, degraded, nil
}

func scopeAllowed(scopes []types.MemoryScope, s types.MemoryScope) bool {
	if len(scopes) == 0 {
		return true
	}
	for _, allowed := range scopes {
		if allowed == s {
			return true
		}
	}
	return false
}

func kindAllowed(kinds []types.FactKind, k types.FactKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, allowed := range kinds {
		if allowed == k {
			return true
		}
	}
	return false
}
