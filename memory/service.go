package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// DefaultImportance is assigned to new memories when the caller does not set
// one.
const DefaultImportance = 0.5

// ServiceConfig configures the memory service facade.
type ServiceConfig struct {
	DefaultScope      types.MemoryScope `json:"default_scope" yaml:"default_scope"`
	DefaultImportance float64           `json:"default_importance" yaml:"default_importance"`
}

// DefaultServiceConfig returns the standard facade parameters.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultScope:      types.ScopeUser,
		DefaultImportance: DefaultImportance,
	}
}

// Service is the facade over the whole memory subsystem. All external
// callers, including the HTTP layer, go through it.
type Service struct {
	config    ServiceConfig
	store     *TieredStore
	shortTerm ShortTermStore
	semantic  *SemanticStore
	extractor *Extractor
	retrieval *Retrieval
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	contexts map[string]*types.ConversationContext

	// warmed tracks owners whose durable fact log has been loaded into the
	// process-local semantic tier, so a restart does not read it empty.
	warmMu sync.Mutex
	warmed map[string]struct{}
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceClock injects a clock for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService wires the facade over its collaborators.
func NewService(
	config ServiceConfig,
	store *TieredStore,
	shortTerm ShortTermStore,
	semantic *SemanticStore,
	extractor *Extractor,
	retrieval *Retrieval,
	logger *zap.Logger,
	opts ...ServiceOption,
) *Service {
	if config.DefaultScope == "" {
		config.DefaultScope = types.ScopeUser
	}
	if config.DefaultImportance <= 0 || config.DefaultImportance > 1 {
		config.DefaultImportance = DefaultImportance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		config:    config,
		store:     store,
		shortTerm: shortTerm,
		semantic:  semantic,
		extractor: extractor,
		retrieval: retrieval,
		logger:    logger.With(zap.String("component", "memory_service")),
		now:       time.Now,
		contexts:  make(map[string]*types.ConversationContext),
		warmed:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRequest is one ingestion call: conversation turns for an owner.
type AddRequest struct {
	OwnerID    string            `json:"owner_id"`
	SessionID  string            `json:"session_id,omitempty"`
	Messages   []types.Message   `json:"messages"`
	Scope      types.MemoryScope `json:"scope,omitempty"`
	Importance float64           `json:"importance,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// AddResponse reports what one ingestion call produced.
type AddResponse struct {
	Results  []AddResult  `json:"results"`
	Facts    []types.Fact `json:"facts"`
	Degraded bool         `json:"degraded"`
}

func (r *AddRequest) validate() error {
	if strings.TrimSpace(r.OwnerID) == "" {
		return types.NewValidationError("owner_id must not be empty")
	}
	if len(r.Messages) == 0 {
		return types.NewValidationError("messages must not be empty")
	}
	if r.Scope != "" && !r.Scope.Valid() {
		return types.NewValidationError("unknown scope: " + string(r.Scope))
	}
	if r.Importance < 0 || r.Importance > 1 {
		return types.NewValidationError("importance must be within [0, 1]")
	}
	return nil
}

// Add ingests conversation turns: each turn lands in the short-term buffer,
// extracted facts land in the semantic log, and each fact becomes (or boosts)
// a long-term memory. A failing model strategy degrades extraction to the
// rule output; it never fails the call.
func (s *Service) Add(ctx context.Context, req AddRequest) (*AddResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	// Warm before appending so durable facts keep their place ahead of new
	// ones in the log.
	s.warmSemantic(ctx, req.OwnerID)

	scope := req.Scope
	if scope == "" {
		scope = s.config.DefaultScope
	}
	importance := req.Importance
	if importance == 0 {
		importance = s.config.DefaultImportance
	}

	resp := &AddResponse{}
	for _, msg := range req.Messages {
		if msg.Timestamp.IsZero() {
			msg.Timestamp = s.now()
		}
		if err := s.shortTerm.Append(ctx, req.OwnerID, msg); err != nil {
			return nil, err
		}
		if msg.Role != "" && msg.Role != "user" {
			continue
		}

		facts, degraded := s.extractor.Extract(ctx, req.OwnerID, msg.Content)
		resp.Degraded = resp.Degraded || degraded

		for _, f := range facts {
			if err := s.semantic.Append(ctx, f); err != nil {
				return nil, err
			}
			if err := s.store.SaveFact(ctx, f); err != nil {
				s.logger.Warn("failed to persist fact",
					zap.String("owner_id", req.OwnerID),
					zap.Error(err),
				)
			}
			resp.Facts = append(resp.Facts, f)

			m := &types.Memory{
				ID:         uuid.NewString(),
				OwnerID:    req.OwnerID,
				Scope:      scope,
				Content:    f.Natural(),
				Category:   f.Kind,
				Importance: importance,
				Confidence: f.Confidence,
				Metadata:   req.Metadata,
				CreatedAt:  s.now(),
			}
			result, err := s.store.Add(ctx, m)
			if err != nil {
				return nil, err
			}
			resp.Results = append(resp.Results, *result)
		}

		if req.SessionID != "" {
			s.Context(req.SessionID).PushIntent(truncateRunes(msg.Content, sourceTextLimit))
		}
	}
	return resp, nil
}

// Recall ranks the owner's memories against the query. Returned memories have
// already received their recall boost.
func (s *Service) Recall(ctx context.Context, q types.MemoryQuery) ([]types.ScoredMemory, bool, error) {
	if strings.TrimSpace(q.OwnerID) == "" {
		return nil, false, types.NewValidationError("owner_id must not be empty")
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, false, types.NewValidationError("query text must not be empty")
	}
	return s.retrieval.Recall(ctx, q)
}

// UpdateRequest modifies an existing memory. Nil fields are left unchanged.
type UpdateRequest struct {
	Requester  string             `json:"requester"`
	OwnerID    string             `json:"owner_id"`
	ID         string             `json:"id"`
	Content    *string            `json:"content,omitempty"`
	Importance *float64           `json:"importance,omitempty"`
	Scope      *types.MemoryScope `json:"scope,omitempty"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
}

// Update applies the request to the target memory. Only the owner or the
// system principal may update; a content change recomputes the content hash.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*types.Memory, error) {
	if strings.TrimSpace(req.OwnerID) == "" || strings.TrimSpace(req.ID) == "" {
		return nil, types.NewValidationError("owner_id and id must not be empty")
	}
	requester := req.Requester
	if requester == "" {
		requester = req.OwnerID
	}
	if requester != req.OwnerID && requester != types.SystemOwner {
		return nil, types.NewPermissionError("requester may not modify this owner's memories")
	}
	if req.Importance != nil && (*req.Importance < 0 || *req.Importance > 1) {
		return nil, types.NewValidationError("importance must be within [0, 1]")
	}
	if req.Scope != nil && !req.Scope.Valid() {
		return nil, types.NewValidationError("unknown scope: " + string(*req.Scope))
	}

	m, err := s.store.Get(ctx, req.OwnerID, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Content != nil {
		content := strings.TrimSpace(*req.Content)
		if content == "" {
			return nil, types.NewValidationError("content must not be empty")
		}
		m.Content = content
		m.ContentHash = ContentHash(content)
	}
	if req.Importance != nil {
		m.Importance = *req.Importance
	}
	if req.Scope != nil {
		m.Scope = *req.Scope
	}
	if req.Metadata != nil {
		m.Metadata = req.Metadata
	}

	if err := s.store.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Forget deletes a memory. It is idempotent and does not leak existence: the
// permission check runs before any lookup, and deleting an absent memory
// returns false without error.
func (s *Service) Forget(ctx context.Context, requester, ownerID, id string) (bool, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(id) == "" {
		return false, types.NewValidationError("owner_id and id must not be empty")
	}
	if requester == "" {
		requester = ownerID
	}
	if requester != ownerID && requester != types.SystemOwner {
		return false, types.NewPermissionError("requester may not delete this owner's memories")
	}
	return s.store.Delete(ctx, ownerID, id)
}

// GetAll lists the owner's active long-term memories, most recent first.
func (s *Service) GetAll(ctx context.Context, requester, ownerID string) ([]*types.Memory, bool, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, false, types.NewValidationError("owner_id must not be empty")
	}
	if requester == "" {
		requester = ownerID
	}
	if requester != ownerID && requester != types.SystemOwner {
		return nil, false, types.NewPermissionError("requester may not list this owner's memories")
	}
	return s.store.GetAll(ctx, ownerID)
}

// GetShortTerm returns the owner's recent conversation turns.
func (s *Service) GetShortTerm(ctx context.Context, requester, ownerID string, limit int) ([]types.Message, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, types.NewValidationError("owner_id must not be empty")
	}
	if requester == "" {
		requester = ownerID
	}
	if requester != ownerID && requester != types.SystemOwner {
		return nil, types.NewPermissionError("requester may not read this owner's short-term buffer")
	}
	return s.shortTerm.Recent(ctx, ownerID, limit)
}

// GetSemanticFacts queries the owner's semantic fact log.
func (s *Service) GetSemanticFacts(ctx context.Context, requester, ownerID string, q FactQuery) ([]types.Fact, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, types.NewValidationError("owner_id must not be empty")
	}
	if requester == "" {
		requester = ownerID
	}
	if requester != ownerID && requester != types.SystemOwner {
		return nil, types.NewPermissionError("requester may not read this owner's facts")
	}
	s.warmSemantic(ctx, ownerID)
	return s.semantic.Facts(ctx, ownerID, q)
}

// warmSemantic loads the owner's durable fact log into the semantic tier,
// once per owner per process. The semantic store is process-local; without
// this a restart would serve an empty fact log while rows sit in the
// database. A failed load is retried on the next call.
func (s *Service) warmSemantic(ctx context.Context, ownerID string) {
	s.warmMu.Lock()
	defer s.warmMu.Unlock()
	if _, ok := s.warmed[ownerID]; ok {
		return
	}
	facts, err := s.store.ListFacts(ctx, ownerID)
	if err != nil {
		s.logger.Warn("failed to warm semantic tier",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		return
	}
	s.semantic.Warm(facts)
	s.warmed[ownerID] = struct{}{}
}

// Context returns the conversation context for a session, creating it on
// first use.
func (s *Service) Context(sessionID string) *types.ConversationContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[sessionID]
	if !ok {
		c = types.NewConversationContext(sessionID)
		s.contexts[sessionID] = c
	}
	return c
}

// EndSession discards the session's conversation context. Long-term memories
// are untouched.
func (s *Service) EndSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, sessionID)
}

// Stats summarizes the owner's memory state.
func (s *Service) Stats(ctx context.Context, ownerID string) (*types.MemoryStats, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, types.NewValidationError("owner_id must not be empty")
	}
	stats := &types.MemoryStats{OwnerID: ownerID}

	n, err := s.shortTerm.Len(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	stats.ShortTermCount = n

	active, mergedCount, err := s.store.Counts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	stats.LongTermCount = active
	stats.MergedCount = mergedCount
	s.warmSemantic(ctx, ownerID)
	stats.FactCount = s.semantic.Len(ownerID)
	return stats, nil
}

// Ping reports durable-store connectivity, for readiness checks.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
