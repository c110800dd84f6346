package types

import (
	"fmt"
	"strings"
	"time"
)

// FactKind categorizes an extracted fact.
type FactKind string

const (
	FactPreference   FactKind = "preference"
	FactBiographical FactKind = "biographical"
	FactBehavioral   FactKind = "behavioral"
	FactContextual   FactKind = "contextual"
	FactRelational   FactKind = "relational"
	FactProcedural   FactKind = "procedural"
	FactDeclarative  FactKind = "declarative"
)

// Valid reports whether the kind is one of the known categories.
func (k FactKind) Valid() bool {
	switch k {
	case FactPreference, FactBiographical, FactBehavioral, FactContextual,
		FactRelational, FactProcedural, FactDeclarative:
		return true
	}
	return false
}

// MemoryScope controls visibility and lifecycle of a memory.
type MemoryScope string

const (
	// ScopeSession memories live with a single session and are exempt from decay.
	ScopeSession MemoryScope = "session"
	// ScopeUser memories belong to one owner and decay over time.
	ScopeUser MemoryScope = "user"
	// ScopeGlobal memories are readable by every requester.
	ScopeGlobal MemoryScope = "global"
	// ScopeConversation memories are bound to one conversation thread.
	ScopeConversation MemoryScope = "conversation"
)

// Valid reports whether the scope is one of the known scopes.
func (s MemoryScope) Valid() bool {
	switch s {
	case ScopeSession, ScopeUser, ScopeGlobal, ScopeConversation:
		return true
	}
	return false
}

// MemoryState tracks the lifecycle of a long-term memory. Merged records stay
// in durable storage as tombstones; deleted records are physically removed.
type MemoryState string

const (
	StateActive MemoryState = "active"
	StateMerged MemoryState = "merged"
)

// Fact is a subject-predicate-object triple extracted from conversation text.
type Fact struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Subject    string    `json:"subject"`
	Predicate  string    `json:"predicate"`
	Object     string    `json:"object"`
	Kind       FactKind  `json:"kind"`
	Confidence float64   `json:"confidence"`
	SourceText string    `json:"source_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Natural renders the triple as a plain sentence fragment.
func (f Fact) Natural() string {
	return fmt.Sprintf("%s %s %s", f.Subject, f.Predicate, f.Object)
}

// Memory is a single long-term memory entry.
type Memory struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Scope          MemoryScope    `json:"scope"`
	Content        string         `json:"content"`
	ContentHash    string         `json:"content_hash"`
	Category       FactKind       `json:"category"`
	Importance     float64        `json:"importance"`
	Confidence     float64        `json:"confidence"`
	AccessCount    int            `json:"access_count"`
	State          MemoryState    `json:"state"`
	MergedFrom     []string       `json:"merged_from,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastAccessedAt *time.Time     `json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
}

// Expired reports whether the memory has passed its expiry time.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Active reports whether the memory is live: not merged away and not expired.
func (m *Memory) Active(now time.Time) bool {
	return m.State != StateMerged && !m.Expired(now)
}

// Boost raises importance by delta, capped at 1.0.
func (m *Memory) Boost(delta float64) {
	m.Importance += delta
	if m.Importance > 1.0 {
		m.Importance = 1.0
	}
}

// Clone returns a deep copy so callers can hand memories across goroutines.
func (m *Memory) Clone() *Memory {
	cp := *m
	if m.LastAccessedAt != nil {
		t := *m.LastAccessedAt
		cp.LastAccessedAt = &t
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		cp.ExpiresAt = &t
	}
	if m.MergedFrom != nil {
		cp.MergedFrom = append([]string(nil), m.MergedFrom...)
	}
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// MemoryQuery describes a recall request.
type MemoryQuery struct {
	OwnerID       string        `json:"owner_id"`
	Requester     string        `json:"requester,omitempty"`
	Text          string        `json:"text"`
	Scopes        []MemoryScope `json:"scopes,omitempty"`
	Kinds         []FactKind    `json:"kinds,omitempty"`
	Limit         int           `json:"limit,omitempty"`
	MinImportance float64       `json:"min_importance,omitempty"`
}

// Normalize fills defaults: requester falls back to the owner, limit to 10.
func (q *MemoryQuery) Normalize() {
	if q.Requester == "" {
		q.Requester = q.OwnerID
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
}

// ScoredMemory pairs a memory with its relevance score for one query.
type ScoredMemory struct {
	Memory *Memory `json:"memory"`
	Score  float64 `json:"score"`
}

// Message is one turn of conversation handed to the memory service.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// MemoryStats summarizes the state of one owner's memory.
type MemoryStats struct {
	OwnerID        string `json:"owner_id"`
	ShortTermCount int    `json:"short_term_count"`
	LongTermCount  int    `json:"long_term_count"`
	FactCount      int    `json:"fact_count"`
	MergedCount    int    `json:"merged_count"`
}

// SystemOwner is the privileged principal allowed to read and delete any
// owner's memories.
const SystemOwner = "system"

// CanAccess reports whether requester may read a memory. Global memories are
// open to everyone; otherwise access requires ownership or the system
// principal.
func CanAccess(requester string, m *Memory) bool {
	if m.Scope == ScopeGlobal {
		return true
	}
	return requester == m.OwnerID || requester == SystemOwner
}

// NormalizeContent lower-cases and trims content the way the hash family does,
// so equality checks and hashing agree.
func NormalizeContent(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}
