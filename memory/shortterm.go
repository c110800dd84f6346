package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// DefaultShortTermCap is the bounded size of the per-owner recent-turn buffer.
const DefaultShortTermCap = 50

// ShortTermStore holds the bounded window of recent conversation turns per
// owner. Appending beyond capacity evicts the oldest entry. Clearing the
// buffer never touches long-term memories.
type ShortTermStore interface {
	Append(ctx context.Context, ownerID string, msg types.Message) error
	Recent(ctx context.Context, ownerID string, limit int) ([]types.Message, error)
	Clear(ctx context.Context, ownerID string) error
	Len(ctx context.Context, ownerID string) (int, error)
}

// ring is a fixed-capacity circular buffer with O(1) append.
type ring struct {
	items []types.Message
	head  int
	size  int
}

func (r *ring) push(msg types.Message) {
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = msg
		r.size++
		return
	}
	r.items[r.head] = msg
	r.head = (r.head + 1) % len(r.items)
}

// snapshot returns entries oldest first.
func (r *ring) snapshot() []types.Message {
	out := make([]types.Message, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(r.head+i)%len(r.items)])
	}
	return out
}

// InMemoryShortTerm is the default process-local ShortTermStore.
type InMemoryShortTerm struct {
	mu      sync.RWMutex
	cap     int
	buffers map[string]*ring
	logger  *zap.Logger
}

// NewInMemoryShortTerm creates a short-term store with the given capacity per
// owner; cap <= 0 falls back to DefaultShortTermCap.
func NewInMemoryShortTerm(capacity int, logger *zap.Logger) *InMemoryShortTerm {
	if capacity <= 0 {
		capacity = DefaultShortTermCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryShortTerm{
		cap:     capacity,
		buffers: make(map[string]*ring),
		logger:  logger.With(zap.String("component", "short_term")),
	}
}

// Append adds a turn to the owner's buffer, evicting the oldest when full.
func (s *InMemoryShortTerm) Append(_ context.Context, ownerID string, msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.buffers[ownerID]
	if !ok {
		buf = &ring{items: make([]types.Message, s.cap)}
		s.buffers[ownerID] = buf
	}
	buf.push(msg)
	return nil
}

// Recent returns the last limit turns in chronological order. limit <= 0
// returns the whole buffer.
func (s *InMemoryShortTerm) Recent(_ context.Context, ownerID string, limit int) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.buffers[ownerID]
	if !ok {
		return nil, nil
	}
	all := buf.snapshot()
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Clear drops the owner's buffer.
func (s *InMemoryShortTerm) Clear(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buffers, ownerID)
	return nil
}

// Len reports the number of buffered turns for the owner.
func (s *InMemoryShortTerm) Len(_ context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.buffers[ownerID]
	if !ok {
		return 0, nil
	}
	return buf.size, nil
}
