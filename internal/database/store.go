package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 🗄️ 持久化存储（memory.DurableStore 实现）
// =============================================================================

// Store 基于 GORM 的持久化存储，长期记忆与事实日志的落地层。
type Store struct {
	pool   *PoolManager
	logger *zap.Logger
}

var _ memory.DurableStore = (*Store)(nil)

// NewStore 创建持久化存储。
func NewStore(pool *PoolManager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger.With(zap.String("component", "durable_store")),
	}
}

// Insert 插入一条记忆。(owner_id, content_hash) 冲突时返回 DUPLICATE。
func (s *Store) Insert(ctx context.Context, m *types.Memory) error {
	row, err := toMemoryRow(m)
	if err != nil {
		return types.NewValidationError("memory is not serializable: " + err.Error())
	}
	if err := s.pool.DB().WithContext(ctx).Create(row).Error; err != nil {
		return translateError(err, "insert memory")
	}
	return nil
}

// Update 全量更新一条记忆，不存在时返回 NOT_FOUND。
func (s *Store) Update(ctx context.Context, m *types.Memory) error {
	row, err := toMemoryRow(m)
	if err != nil {
		return types.NewValidationError("memory is not serializable: " + err.Error())
	}
	result := s.pool.DB().WithContext(ctx).
		Model(&memoryRow{}).
		Where("id = ? AND owner_id = ?", m.ID, m.OwnerID).
		Select("*").
		Omit("id", "owner_id", "created_at").
		Updates(row)
	if result.Error != nil {
		return translateError(result.Error, "update memory")
	}
	if result.RowsAffected == 0 {
		return types.NewNotFoundError("memory not found")
	}
	return nil
}

// Delete 删除一条记忆，幂等：不存在返回 false 而非错误。
func (s *Store) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	result := s.pool.DB().WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&memoryRow{})
	if result.Error != nil {
		return false, translateError(result.Error, "delete memory")
	}
	return result.RowsAffected > 0, nil
}

// Get 按 ID 读取一条记忆。
func (s *Store) Get(ctx context.Context, ownerID, id string) (*types.Memory, error) {
	var row memoryRow
	err := s.pool.DB().WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&row).Error
	if err != nil {
		return nil, translateError(err, "get memory")
	}
	return row.toMemory(), nil
}

// GetByHash 按内容哈希读取一条记忆，去重加权路径使用。
func (s *Store) GetByHash(ctx context.Context, ownerID, hash string) (*types.Memory, error) {
	var row memoryRow
	err := s.pool.DB().WithContext(ctx).
		Where("owner_id = ? AND content_hash = ?", ownerID, hash).
		First(&row).Error
	if err != nil {
		return nil, translateError(err, "get memory by hash")
	}
	return row.toMemory(), nil
}

// List 返回拥有者的全部行，外加所有拥有者的 global 作用域行，
// 包含 merged 墓碑，由上层过滤。global 记忆对每个拥有者可见。
func (s *Store) List(ctx context.Context, ownerID string) ([]*types.Memory, error) {
	var rows []memoryRow
	err := s.pool.DB().WithContext(ctx).
		Where("owner_id = ? OR scope = ?", ownerID, string(types.ScopeGlobal)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "list memories")
	}
	out := make([]*types.Memory, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toMemory())
	}
	return out, nil
}

// Owners 枚举所有拥有者，衰减与合并的巡检入口。
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	var owners []string
	err := s.pool.DB().WithContext(ctx).
		Model(&memoryRow{}).
		Distinct("owner_id").
		Order("owner_id").
		Pluck("owner_id", &owners).Error
	if err != nil {
		return nil, translateError(err, "list owners")
	}
	return owners, nil
}

// SaveFact 追加一条语义事实。
func (s *Store) SaveFact(ctx context.Context, f types.Fact) error {
	if err := s.pool.DB().WithContext(ctx).Create(toFactRow(f)).Error; err != nil {
		return translateError(err, "save fact")
	}
	return nil
}

// ListFacts 按插入顺序返回拥有者的事实日志。
func (s *Store) ListFacts(ctx context.Context, ownerID string) ([]types.Fact, error) {
	var rows []factRow
	err := s.pool.DB().WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "list facts")
	}
	out := make([]types.Fact, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toFact())
	}
	return out, nil
}

// Ping 探活。
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return types.NewStorageError("durable store unreachable", err)
	}
	return nil
}
