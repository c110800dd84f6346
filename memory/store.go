package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// DefaultImportanceBoost is applied to a memory on recall and on duplicate
// insert. Importance never exceeds 1.0.
const DefaultImportanceBoost = 0.05

// DurableStore is the persistence boundary of the long-term tier. Insert
// must enforce a unique (owner_id, content_hash) constraint and report
// violations as a DUPLICATE error; connectivity failures surface as
// STORAGE_UNAVAILABLE. List returns the owner's rows plus every owner's
// global-scope rows, since global memories are visible to all owners.
type DurableStore interface {
	Insert(ctx context.Context, m *types.Memory) error
	Update(ctx context.Context, m *types.Memory) error
	Delete(ctx context.Context, ownerID, id string) (bool, error)
	Get(ctx context.Context, ownerID, id string) (*types.Memory, error)
	GetByHash(ctx context.Context, ownerID, hash string) (*types.Memory, error)
	List(ctx context.Context, ownerID string) ([]*types.Memory, error)
	Owners(ctx context.Context) ([]string, error)

	SaveFact(ctx context.Context, f types.Fact) error
	ListFacts(ctx context.Context, ownerID string) ([]types.Fact, error)

	Ping(ctx context.Context) error
}

// AddResult reports the outcome of a long-term write. Inserted is false when
// the content hash already existed and the existing memory was boosted
// instead.
type AddResult struct {
	Memory   *types.Memory `json:"memory"`
	Inserted bool          `json:"inserted"`
}

// ownerShard is the per-owner slice of the in-process cache. Each owner has
// its own lock so unrelated owners never contend.
type ownerShard struct {
	mu     sync.RWMutex
	byID   map[string]*types.Memory
	byHash map[string]string
}

// TieredStoreConfig configures the long-term tier.
type TieredStoreConfig struct {
	ImportanceBoost float64
	Now             func() time.Time
}

// TieredStore is the long-term tier: a per-owner write-through cache in front
// of a DurableStore. Writes go durable-first; the cache is only updated after
// the durable store confirms, so a failed write leaves the cache untouched.
// Reads prefer the cache and degrade to cache-only when the durable store is
// unreachable.
type TieredStore struct {
	durable DurableStore
	boost   float64
	now     func() time.Time
	logger  *zap.Logger

	mu     sync.Mutex
	shards map[string]*ownerShard

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// NewTieredStore creates a tiered store over the given durable backend.
func NewTieredStore(durable DurableStore, cfg TieredStoreConfig, logger *zap.Logger) *TieredStore {
	if cfg.ImportanceBoost <= 0 {
		cfg.ImportanceBoost = DefaultImportanceBoost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredStore{
		durable: durable,
		boost:   cfg.ImportanceBoost,
		now:     cfg.Now,
		logger:  logger.With(zap.String("component", "tiered_store")),
		shards:  make(map[string]*ownerShard),
	}
}

func (s *TieredStore) shard(ownerID string) *ownerShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[ownerID]
	if !ok {
		sh = &ownerShard{
			byID:   make(map[string]*types.Memory),
			byHash: make(map[string]string),
		}
		s.shards[ownerID] = sh
	}
	return sh
}

// CacheHits reports cache hits since startup.
func (s *TieredStore) CacheHits() int64 { return s.cacheHits.Load() }

// CacheMisses reports cache misses since startup.
func (s *TieredStore) CacheMisses() int64 { return s.cacheMisses.Load() }

// Add stores a memory. A duplicate (owner, content hash) does not create a
// second record: the existing memory's importance is boosted and returned
// with Inserted=false. Exactly one of two concurrent identical adds inserts;
// the durable unique constraint is the ground truth for the race.
func (s *TieredStore) Add(ctx context.Context, m *types.Memory) (*AddResult, error) {
	if m.ContentHash == "" {
		m.ContentHash = ContentHash(m.Content)
	}
	if m.State == "" {
		m.State = types.StateActive
	}
	now := s.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	sh := s.shard(m.OwnerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	err := s.durable.Insert(ctx, m)
	switch {
	case err == nil:
		sh.byID[m.ID] = m.Clone()
		sh.byHash[m.ContentHash] = m.ID
		return &AddResult{Memory: m.Clone(), Inserted: true}, nil
	case types.IsDuplicate(err):
		existing, berr := s.boostExistingLocked(ctx, sh, m.OwnerID, m.ContentHash)
		if berr != nil {
			return nil, berr
		}
		return &AddResult{Memory: existing, Inserted: false}, nil
	default:
		return nil, err
	}
}

// boostExistingLocked resolves the existing memory for a duplicate hash,
// boosts it, and persists the boost best-effort. Caller holds the shard lock.
func (s *TieredStore) boostExistingLocked(ctx context.Context, sh *ownerShard, ownerID, hash string) (*types.Memory, error) {
	var existing *types.Memory
	if id, ok := sh.byHash[hash]; ok {
		existing = sh.byID[id]
		s.cacheHits.Add(1)
	} else {
		s.cacheMisses.Add(1)
		fetched, err := s.durable.GetByHash(ctx, ownerID, hash)
		if err != nil {
			return nil, err
		}
		existing = fetched
		sh.byID[existing.ID] = existing
		sh.byHash[hash] = existing.ID
	}

	existing.Boost(s.boost)
	existing.UpdatedAt = s.now()
	if err := s.durable.Update(ctx, existing); err != nil {
		s.logger.Warn("failed to persist duplicate boost",
			zap.String("owner_id", ownerID),
			zap.String("memory_id", existing.ID),
			zap.Error(err),
		)
	}
	return existing.Clone(), nil
}

// Get returns a single memory, preferring the cache. Expired and merged
// memories read as not found.
func (s *TieredStore) Get(ctx context.Context, ownerID, id string) (*types.Memory, error) {
	sh := s.shard(ownerID)

	sh.mu.RLock()
	cached, ok := sh.byID[id]
	if ok {
		cached = cached.Clone()
	}
	sh.mu.RUnlock()

	if ok {
		s.cacheHits.Add(1)
		if !cached.Active(s.now()) {
			return nil, types.NewNotFoundError("memory not found")
		}
		return cached, nil
	}

	s.cacheMisses.Add(1)
	m, err := s.durable.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !m.Active(s.now()) {
		return nil, types.NewNotFoundError("memory not found")
	}

	sh.mu.Lock()
	sh.byID[m.ID] = m.Clone()
	sh.byHash[m.ContentHash] = m.ID
	sh.mu.Unlock()
	return m, nil
}

// Update persists a modified memory, durable-first.
func (s *TieredStore) Update(ctx context.Context, m *types.Memory) error {
	sh := s.shard(m.OwnerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	m.UpdatedAt = s.now()
	if err := s.durable.Update(ctx, m); err != nil {
		return err
	}
	if old, ok := sh.byID[m.ID]; ok && old.ContentHash != m.ContentHash {
		delete(sh.byHash, old.ContentHash)
	}
	sh.byID[m.ID] = m.Clone()
	sh.byHash[m.ContentHash] = m.ID
	return nil
}

// Touch applies recall side effects: access count, last-accessed timestamp,
// and an importance boost. The durable write is best-effort; the cache update
// always happens so repeated recalls observe the boost.
func (s *TieredStore) Touch(ctx context.Context, ownerID, id string) (*types.Memory, error) {
	sh := s.shard(ownerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	m, ok := sh.byID[id]
	if !ok {
		fetched, err := s.durable.Get(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		m = fetched
		sh.byID[m.ID] = m
		sh.byHash[m.ContentHash] = m.ID
	}

	now := s.now()
	m.AccessCount++
	m.LastAccessedAt = &now
	m.Boost(s.boost)
	m.UpdatedAt = now

	if err := s.durable.Update(ctx, m); err != nil {
		s.logger.Warn("failed to persist recall side effects",
			zap.String("owner_id", ownerID),
			zap.String("memory_id", id),
			zap.Error(err),
		)
	}
	return m.Clone(), nil
}

// Delete removes a memory from durable storage and the cache. It is
// idempotent: deleting an absent memory returns false with no error.
func (s *TieredStore) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	sh := s.shard(ownerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	removed, err := s.durable.Delete(ctx, ownerID, id)
	if err != nil {
		return false, err
	}
	if m, ok := sh.byID[id]; ok {
		delete(sh.byHash, m.ContentHash)
		delete(sh.byID, id)
		removed = true
	}
	return removed, nil
}

// GetAll returns the memories visible to the owner, most recent first: the
// owner's own plus every owner's global-scope memories. The durable store is
// authoritative; when it is unreachable the result degrades to the cache
// contents and the degraded flag is set.
func (s *TieredStore) GetAll(ctx context.Context, ownerID string) ([]*types.Memory, bool, error) {
	sh := s.shard(ownerID)

	merged := make(map[string]*types.Memory)
	degraded := false

	rows, err := s.durable.List(ctx, ownerID)
	if err != nil {
		if !types.IsStorageUnavailable(err) {
			return nil, false, err
		}
		degraded = true
		s.logger.Warn("durable store unreachable, serving cache only",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
	}
	for _, m := range rows {
		merged[m.ID] = m
	}

	sh.mu.RLock()
	for id, m := range sh.byID {
		merged[id] = m.Clone()
	}
	sh.mu.RUnlock()

	// Other owners' shards may hold global memories fresher than (or, when
	// degraded, absent from) the durable rows.
	s.mu.Lock()
	others := make([]*ownerShard, 0, len(s.shards))
	for owner, osh := range s.shards {
		if owner != ownerID {
			others = append(others, osh)
		}
	}
	s.mu.Unlock()
	for _, osh := range others {
		osh.mu.RLock()
		for id, m := range osh.byID {
			if m.Scope == types.ScopeGlobal {
				merged[id] = m.Clone()
			}
		}
		osh.mu.RUnlock()
	}

	now := s.now()
	out := make([]*types.Memory, 0, len(merged))
	for _, m := range merged {
		if !m.Active(now) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, degraded, nil
}

// Owners returns the union of owners known to the durable store and the
// cache.
func (s *TieredStore) Owners(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{})

	owners, err := s.durable.Owners(ctx)
	if err != nil {
		if !types.IsStorageUnavailable(err) {
			return nil, err
		}
		s.logger.Warn("durable store unreachable, enumerating cached owners only", zap.Error(err))
	}
	for _, o := range owners {
		set[o] = struct{}{}
	}

	s.mu.Lock()
	for o := range s.shards {
		set[o] = struct{}{}
	}
	s.mu.Unlock()

	out := make([]string, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Strings(out)
	return out, nil
}

// ApplyMerge promotes rep to the consolidated representative and tombstones
// the merged originals, all under the owner lock so readers never observe a
// half-applied merge. Tombstoned rows stay in durable storage with
// State=merged.
func (s *TieredStore) ApplyMerge(ctx context.Context, ownerID string, rep *types.Memory, mergedIDs []string) error {
	sh := s.shard(ownerID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rep.UpdatedAt = s.now()
	if err := s.durable.Update(ctx, rep); err != nil {
		return err
	}

	for _, id := range mergedIDs {
		victim, ok := sh.byID[id]
		if !ok {
			fetched, err := s.durable.Get(ctx, ownerID, id)
			if err != nil {
				if types.IsNotFound(err) {
					continue
				}
				return err
			}
			victim = fetched
		}
		victim.State = types.StateMerged
		victim.UpdatedAt = s.now()
		if err := s.durable.Update(ctx, victim); err != nil {
			return err
		}
		delete(sh.byHash, victim.ContentHash)
		delete(sh.byID, id)
	}

	sh.byID[rep.ID] = rep.Clone()
	sh.byHash[rep.ContentHash] = rep.ID
	return nil
}

// Counts reports the owner's active and merged memory counts. Only memories
// the owner actually owns are counted; globals owned by others are visible
// but not theirs. Merged tombstones only exist durably, so a degraded read
// undercounts them.
func (s *TieredStore) Counts(ctx context.Context, ownerID string) (active, merged int, err error) {
	rows, degraded, err := s.GetAll(ctx, ownerID)
	if err != nil {
		return 0, 0, err
	}
	for _, m := range rows {
		if m.OwnerID == ownerID {
			active++
		}
	}

	if !degraded {
		all, lerr := s.durable.List(ctx, ownerID)
		if lerr == nil {
			for _, m := range all {
				if m.OwnerID == ownerID && m.State == types.StateMerged {
					merged++
				}
			}
		}
	}
	return active, merged, nil
}

// SaveFact appends a fact to the durable fact log.
func (s *TieredStore) SaveFact(ctx context.Context, f types.Fact) error {
	return s.durable.SaveFact(ctx, f)
}

// ListFacts reads the owner's durable fact log.
func (s *TieredStore) ListFacts(ctx context.Context, ownerID string) ([]types.Fact, error) {
	return s.durable.ListFacts(ctx, ownerID)
}

// Ping checks durable-store connectivity.
func (s *TieredStore) Ping(ctx context.Context) error {
	return s.durable.Ping(ctx)
}
