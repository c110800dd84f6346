package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/memflow/types"
)

// fakeDurable is an in-memory DurableStore with the same contract as the
// database-backed one: unique (owner, hash) on insert, typed errors, and a
// switch to simulate an outage.
type fakeDurable struct {
	mu      sync.Mutex
	rows    map[string]map[string]*types.Memory // owner -> id -> row
	facts   map[string][]types.Fact
	down    bool
	inserts int
	updates int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		rows:  make(map[string]map[string]*types.Memory),
		facts: make(map[string][]types.Fact),
	}
}

func (f *fakeDurable) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeDurable) unavailable() error {
	return types.NewStorageError("durable store is down", nil)
}

func (f *fakeDurable) Insert(_ context.Context, m *types.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return f.unavailable()
	}
	owner, ok := f.rows[m.OwnerID]
	if !ok {
		owner = make(map[string]*types.Memory)
		f.rows[m.OwnerID] = owner
	}
	for _, existing := range owner {
		if existing.ContentHash == m.ContentHash {
			return types.NewDuplicateError("content hash already stored")
		}
	}
	owner[m.ID] = m.Clone()
	f.inserts++
	return nil
}

func (f *fakeDurable) Update(_ context.Context, m *types.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return f.unavailable()
	}
	owner, ok := f.rows[m.OwnerID]
	if !ok || owner[m.ID] == nil {
		return types.NewNotFoundError("memory not found")
	}
	owner[m.ID] = m.Clone()
	f.updates++
	return nil
}

func (f *fakeDurable) Delete(_ context.Context, ownerID, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return false, f.unavailable()
	}
	owner, ok := f.rows[ownerID]
	if !ok || owner[id] == nil {
		return false, nil
	}
	delete(owner, id)
	return true, nil
}

func (f *fakeDurable) Get(_ context.Context, ownerID, id string) (*types.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, f.unavailable()
	}
	if m := f.rows[ownerID][id]; m != nil {
		return m.Clone(), nil
	}
	return nil, types.NewNotFoundError("memory not found")
}

func (f *fakeDurable) GetByHash(_ context.Context, ownerID, hash string) (*types.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, f.unavailable()
	}
	for _, m := range f.rows[ownerID] {
		if m.ContentHash == hash {
			return m.Clone(), nil
		}
	}
	return nil, types.NewNotFoundError("memory not found")
}

func (f *fakeDurable) List(_ context.Context, ownerID string) ([]*types.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, f.unavailable()
	}
	var out []*types.Memory
	for owner, rows := range f.rows {
		for _, m := range rows {
			if owner == ownerID || m.Scope == types.ScopeGlobal {
				out = append(out, m.Clone())
			}
		}
	}
	return out, nil
}

func (f *fakeDurable) Owners(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, f.unavailable()
	}
	var out []string
	for owner := range f.rows {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeDurable) SaveFact(_ context.Context, fact types.Fact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return f.unavailable()
	}
	f.facts[fact.OwnerID] = append(f.facts[fact.OwnerID], fact)
	return nil
}

func (f *fakeDurable) ListFacts(_ context.Context, ownerID string) ([]types.Fact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, f.unavailable()
	}
	return append([]types.Fact(nil), f.facts[ownerID]...), nil
}

func (f *fakeDurable) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return f.unavailable()
	}
	return nil
}

func (f *fakeDurable) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}
