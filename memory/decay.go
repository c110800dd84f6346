package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// DecayConfig configures the time-based importance decay.
type DecayConfig struct {
	Factor   float64       `json:"factor" yaml:"factor"`     // multiplier per pass
	Floor    float64       `json:"floor" yaml:"floor"`       // importance never drops below this
	Grace    time.Duration `json:"grace" yaml:"grace"`       // untouched-for threshold before decay applies
	Interval time.Duration `json:"interval" yaml:"interval"` // background pass cadence
}

// DefaultDecayConfig returns the standard decay parameters.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		Factor:   0.95,
		Floor:    0.1,
		Grace:    24 * time.Hour,
		Interval: time.Hour,
	}
}

// DecayResult summarizes one decay pass.
type DecayResult struct {
	Timestamp time.Time `json:"timestamp"`
	Examined  int       `json:"examined"`
	Decayed   int       `json:"decayed"`
}

// DecayEngine multiplies the importance of stale long-term memories by the
// decay factor on a schedule. Session-scope memories never decay, memories
// touched within the grace window are left alone, and importance never drops
// below the floor. Decay is monotonic: a pass never raises importance.
type DecayEngine struct {
	store  *TieredStore
	config DecayConfig
	logger *zap.Logger
	now    func() time.Time

	// OnPass, when set, receives the decayed count after every pass.
	OnPass func(DecayResult)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewDecayEngine creates a decay engine over the tiered store.
func NewDecayEngine(store *TieredStore, config DecayConfig, logger *zap.Logger) *DecayEngine {
	if config.Factor <= 0 || config.Factor >= 1 {
		config.Factor = 0.95
	}
	if config.Floor <= 0 {
		config.Floor = 0.1
	}
	if config.Grace <= 0 {
		config.Grace = 24 * time.Hour
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecayEngine{
		store:  store,
		config: config,
		logger: logger.With(zap.String("component", "decay")),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// WithNow injects a clock for tests.
func (d *DecayEngine) WithNow(now func() time.Time) *DecayEngine {
	d.now = now
	return d
}

// Start launches the background decay loop. Starting twice is a no-op.
func (d *DecayEngine) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	go d.runLoop(ctx)
	return nil
}

// Stop halts the background loop.
func (d *DecayEngine) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		close(d.stopCh)
		d.running = false
	}
}

func (d *DecayEngine) runLoop(ctx context.Context) {
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.DecayPass(ctx); err != nil {
				d.logger.Warn("decay pass failed", zap.Error(err))
			}
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// DecayPass runs one decay sweep across every owner.
func (d *DecayEngine) DecayPass(ctx context.Context) (DecayResult, error) {
	now := d.now()
	result := DecayResult{Timestamp: now}

	owners, err := d.store.Owners(ctx)
	if err != nil {
		return result, err
	}

	for _, owner := range owners {
		memories, _, err := d.store.GetAll(ctx, owner)
		if err != nil {
			d.logger.Warn("skipping owner in decay pass",
				zap.String("owner_id", owner),
				zap.Error(err),
			)
			continue
		}
		for _, m := range memories {
			// GetAll includes globals visible from other owners; each memory
			// decays only in its own owner's sweep.
			if m.OwnerID != owner {
				continue
			}
			result.Examined++
			if !d.shouldDecay(m, now) {
				continue
			}
			next := m.Importance * d.config.Factor
			if next < d.config.Floor {
				next = d.config.Floor
			}
			if next >= m.Importance {
				continue
			}
			m.Importance = next
			if err := d.store.Update(ctx, m); err != nil {
				d.logger.Warn("failed to persist decay",
					zap.String("memory_id", m.ID),
					zap.Error(err),
				)
				continue
			}
			result.Decayed++
		}
	}

	d.logger.Debug("decay pass complete",
		zap.Int("examined", result.Examined),
		zap.Int("decayed", result.Decayed),
	)
	if d.OnPass != nil {
		d.OnPass(result)
	}
	return result, nil
}

// shouldDecay applies the scope and grace rules: session memories are exempt,
// and a memory only decays once it has gone untouched longer than the grace
// window.
func (d *DecayEngine) shouldDecay(m *types.Memory, now time.Time) bool {
	if m.Scope == types.ScopeSession {
		return false
	}
	touched := m.CreatedAt
	if m.LastAccessedAt != nil && m.LastAccessedAt.After(touched) {
		touched = *m.LastAccessedAt
	}
	return now.Sub(touched) > d.config.Grace
}
