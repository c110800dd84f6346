package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/memflow/types"
)

// ConsolidatorConfig configures redundancy consolidation.
type ConsolidatorConfig struct {
	// GroupThreshold is the per-category size beyond which a category is
	// considered crowded and its coarse-hash clusters get merged.
	GroupThreshold int           `json:"group_threshold" yaml:"group_threshold"`
	Interval       time.Duration `json:"interval" yaml:"interval"`
	RunTimeout     time.Duration `json:"run_timeout" yaml:"run_timeout"`
	// Parallelism bounds how many owners consolidate concurrently.
	Parallelism int `json:"parallelism" yaml:"parallelism"`
}

// DefaultConsolidatorConfig returns the standard consolidation parameters.
func DefaultConsolidatorConfig() ConsolidatorConfig {
	return ConsolidatorConfig{
		GroupThreshold: 10,
		Interval:       6 * time.Hour,
		RunTimeout:     5 * time.Minute,
		Parallelism:    4,
	}
}

// ConsolidateResult summarizes one consolidation run for an owner.
type ConsolidateResult struct {
	OwnerID string `json:"owner_id"`
	Merged  int    `json:"merged"`
}

// Consolidator merges near-duplicate memories. Within a crowded category,
// memories sharing a CoarseHash collapse into the cluster's most important
// member: that member absorbs the cluster's maximum importance and records
// the merged IDs, the rest become merged tombstones.
type Consolidator struct {
	store  *TieredStore
	config ConsolidatorConfig
	logger *zap.Logger
	now    func() time.Time

	// OnRun, when set, receives the merge count after every owner run.
	OnRun func(ConsolidateResult)

	// ownerLocks serializes Consolidate per owner, so two direct calls for
	// the same owner cannot interleave between read and merge.
	lockMu     sync.Mutex
	ownerLocks map[string]*sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewConsolidator creates a consolidator over the tiered store.
func NewConsolidator(store *TieredStore, config ConsolidatorConfig, logger *zap.Logger) *Consolidator {
	if config.GroupThreshold <= 0 {
		config.GroupThreshold = 10
	}
	if config.Interval <= 0 {
		config.Interval = 6 * time.Hour
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 5 * time.Minute
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{
		store:      store,
		config:     config,
		logger:     logger.With(zap.String("component", "consolidator")),
		now:        time.Now,
		ownerLocks: make(map[string]*sync.Mutex),
		stopCh:     make(chan struct{}),
	}
}

// ownerLock returns the mutex serializing consolidation for one owner.
func (c *Consolidator) ownerLock(ownerID string) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	mu, ok := c.ownerLocks[ownerID]
	if !ok {
		mu = &sync.Mutex{}
		c.ownerLocks[ownerID] = mu
	}
	return mu
}

// WithNow injects a clock for tests.
func (c *Consolidator) WithNow(now func() time.Time) *Consolidator {
	c.now = now
	return c
}

// Start launches the background consolidation loop. Starting twice is a
// no-op.
func (c *Consolidator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	go c.runLoop(ctx)
	return nil
}

// Stop halts the background loop.
func (c *Consolidator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

func (c *Consolidator) runLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, c.config.RunTimeout)
			if err := c.Run(runCtx); err != nil {
				c.logger.Warn("consolidation run failed", zap.Error(err))
			}
			cancel()
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Run consolidates every owner, a bounded number in parallel.
func (c *Consolidator) Run(ctx context.Context) error {
	owners, err := c.store.Owners(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Parallelism)
	for _, owner := range owners {
		g.Go(func() error {
			if _, err := c.Consolidate(gctx, owner); err != nil {
				c.logger.Warn("owner consolidation failed",
					zap.String("owner_id", owner),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// Consolidate merges redundant memories for one owner and reports how many
// were folded away. Runs for the same owner are serialized: the read-merge
// cycle must not interleave with another run's.
func (c *Consolidator) Consolidate(ctx context.Context, ownerID string) (ConsolidateResult, error) {
	mu := c.ownerLock(ownerID)
	mu.Lock()
	defer mu.Unlock()

	result := ConsolidateResult{OwnerID: ownerID}

	memories, degraded, err := c.store.GetAll(ctx, ownerID)
	if err != nil {
		return result, err
	}
	if degraded {
		// Consolidation rewrites durable rows; without the durable store the
		// run would diverge from it.
		return result, types.NewStorageError("consolidation requires the durable store", nil)
	}

	byCategory := make(map[types.FactKind][]*types.Memory)
	for _, m := range memories {
		// GetAll includes globals visible from other owners; only the owning
		// run may merge a memory.
		if m.OwnerID != ownerID {
			continue
		}
		byCategory[m.Category] = append(byCategory[m.Category], m)
	}

	for _, group := range byCategory {
		if len(group) <= c.config.GroupThreshold {
			continue
		}
		merged, err := c.consolidateGroup(ctx, ownerID, group)
		if err != nil {
			return result, err
		}
		result.Merged += merged
	}

	if result.Merged > 0 {
		c.logger.Info("consolidated memories",
			zap.String("owner_id", ownerID),
			zap.Int("merged", result.Merged),
		)
	}
	if c.OnRun != nil {
		c.OnRun(result)
	}
	return result, nil
}

func (c *Consolidator) consolidateGroup(ctx context.Context, ownerID string, group []*types.Memory) (int, error) {
	clusters := make(map[string][]*types.Memory)
	for _, m := range group {
		key := CoarseHash(m.Content)
		clusters[key] = append(clusters[key], m)
	}

	merged := 0
	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}

		rep := cluster[0]
		for _, m := range cluster[1:] {
			if m.Importance > rep.Importance ||
				(m.Importance == rep.Importance && m.CreatedAt.After(rep.CreatedAt)) {
				rep = m
			}
		}

		var victims []string
		maxImportance := rep.Importance
		for _, m := range cluster {
			if m.ID == rep.ID {
				continue
			}
			victims = append(victims, m.ID)
			if m.Importance > maxImportance {
				maxImportance = m.Importance
			}
			rep.AccessCount += m.AccessCount
		}
		rep.Importance = maxImportance
		rep.MergedFrom = append(rep.MergedFrom, victims...)

		if err := c.store.ApplyMerge(ctx, ownerID, rep, victims); err != nil {
			return merged, err
		}
		merged += len(victims)
	}
	return merged, nil
}
