package database

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 🗄️ 行模型
// =============================================================================

// memoryRow 长期记忆行模型。(owner_id, content_hash) 唯一索引
// 保证同一拥有者的内容幂等写入。
type memoryRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	OwnerID        string `gorm:"size:128;index;uniqueIndex:idx_owner_hash"`
	ContentHash    string `gorm:"size:32;uniqueIndex:idx_owner_hash"`
	Scope          string `gorm:"size:32;index"`
	Content        string `gorm:"type:text"`
	Category       string `gorm:"size:32"`
	Importance     float64
	Confidence     float64
	AccessCount    int
	State          string `gorm:"size:16;index"`
	MergedFrom     string `gorm:"type:text"`
	Metadata       string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt *time.Time
	ExpiresAt      *time.Time
}

func (memoryRow) TableName() string { return "memories" }

// factRow 语义事实行模型，追加式日志，不做去重。
type factRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	OwnerID    string `gorm:"size:128;index"`
	Subject    string `gorm:"size:256"`
	Predicate  string `gorm:"size:256;index"`
	Object     string `gorm:"type:text"`
	Kind       string `gorm:"size:32;index"`
	Confidence float64
	SourceText string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (factRow) TableName() string { return "facts" }

// AutoMigrate 建表与索引。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&memoryRow{}, &factRow{})
}

// =============================================================================
// 🔄 模型转换
// =============================================================================

func toMemoryRow(m *types.Memory) (*memoryRow, error) {
	row := &memoryRow{
		ID:             m.ID,
		OwnerID:        m.OwnerID,
		ContentHash:    m.ContentHash,
		Scope:          string(m.Scope),
		Content:        m.Content,
		Category:       string(m.Category),
		Importance:     m.Importance,
		Confidence:     m.Confidence,
		AccessCount:    m.AccessCount,
		State:          string(m.State),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		LastAccessedAt: m.LastAccessedAt,
		ExpiresAt:      m.ExpiresAt,
	}
	if len(m.MergedFrom) > 0 {
		raw, err := json.Marshal(m.MergedFrom)
		if err != nil {
			return nil, err
		}
		row.MergedFrom = string(raw)
	}
	if len(m.Metadata) > 0 {
		raw, err := json.Marshal(m.Metadata)
		if err != nil {
			return nil, err
		}
		row.Metadata = string(raw)
	}
	return row, nil
}

func (r *memoryRow) toMemory() *types.Memory {
	m := &types.Memory{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		ContentHash:    r.ContentHash,
		Scope:          types.MemoryScope(r.Scope),
		Content:        r.Content,
		Category:       types.FactKind(r.Category),
		Importance:     r.Importance,
		Confidence:     r.Confidence,
		AccessCount:    r.AccessCount,
		State:          types.MemoryState(r.State),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		LastAccessedAt: r.LastAccessedAt,
		ExpiresAt:      r.ExpiresAt,
	}
	if r.MergedFrom != "" {
		// 损坏的 JSON 按空处理，不让单行坏数据拖垮整页读取。
		_ = json.Unmarshal([]byte(r.MergedFrom), &m.MergedFrom)
	}
	if r.Metadata != "" {
		_ = json.Unmarshal([]byte(r.Metadata), &m.Metadata)
	}
	return m
}

func toFactRow(f types.Fact) *factRow {
	return &factRow{
		ID:         f.ID,
		OwnerID:    f.OwnerID,
		Subject:    f.Subject,
		Predicate:  f.Predicate,
		Object:     f.Object,
		Kind:       string(f.Kind),
		Confidence: f.Confidence,
		SourceText: f.SourceText,
		CreatedAt:  f.CreatedAt,
	}
}

func (r *factRow) toFact() types.Fact {
	return types.Fact{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Subject:    r.Subject,
		Predicate:  r.Predicate,
		Object:     r.Object,
		Kind:       types.FactKind(r.Kind),
		Confidence: r.Confidence,
		SourceText: r.SourceText,
		CreatedAt:  r.CreatedAt,
	}
}
