package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 🧠 记忆 Handler
// =============================================================================

// MemoryHandler 记忆子系统 HTTP 处理器
type MemoryHandler struct {
	service   *memory.Service
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewMemoryHandler 创建记忆处理器。collector 可以为 nil（测试中）。
func NewMemoryHandler(service *memory.Service, collector *metrics.Collector, logger *zap.Logger) *MemoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryHandler{
		service:   service,
		collector: collector,
		logger:    logger.With(zap.String("component", "memory_handler")),
	}
}

// recordOp 记录一次记忆操作指标
func (h *MemoryHandler) recordOp(op string, start time.Time, err error) {
	if h.collector == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.collector.RecordMemoryOp(op, status, time.Since(start))
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleAdd 处理记忆写入请求
// @Summary 写入记忆
// @Description 摄取对话消息：写入短期缓冲、抽取事实并生成长期记忆
// @Tags 记忆
// @Accept json
// @Produce json
// @Success 201 {object} Response "写入结果"
// @Failure 400 {object} Response "请求无效"
// @Failure 503 {object} Response "存储不可用"
// @Router /api/v1/memories [post]
func (h *MemoryHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req memory.AddRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		h.recordOp("add", start, err)
		return
	}

	resp, err := h.service.Add(r.Context(), req)
	h.recordOp("add", start, err)
	if err != nil {
		WriteError(w, types.AsError(err), h.logger)
		return
	}

	if h.collector != nil {
		for _, f := range resp.Facts {
			h.collector.RecordExtractedFact(string(f.Kind))
		}
		if resp.Degraded {
			h.collector.RecordExtractionDegraded()
		}
	}

	WriteCreated(w, resp)
}

// recallResponse 召回响应负载
type recallResponse struct {
	Memories []types.ScoredMemory `json:"memories"`
	Degraded bool                 `json:"degraded"`
}

// HandleRecall 处理记忆召回请求
// @Summary 召回记忆
// @Description 按查询文本对拥有者的记忆排序返回，同时应用访问权限过滤
// @Tags 记忆
// @Accept json
// @Produce json
// @Success 200 {object} Response "召回结果"
// @Failure 400 {object} Response "请求无效"
// @Router /api/v1/memories/search [post]
func (h *MemoryHandler) HandleRecall(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var q types.MemoryQuery
	if err := DecodeJSONBody(w, r, &q, h.logger); err != nil {
		h.recordOp("recall", start, err)
		return
	}
	if q.Requester == "" {
		q.Requester = requesterID(r)
	}

	scored, degraded, err := h.service.Recall(r.Context(), q)
	h.recordOp("recall", start, err)
	if err != nil {
		WriteError(w, types.AsError(err), h.logger)
		return
	}

	if h.collector != nil {
		h.collector.RecordRecallResults(len(scored))
	}

	WriteSuccess(w, recallResponse{Memories: scored, Degraded: degraded})
}

// HandleUpdate 处理记忆更新请求
// @Summary 更新记忆
// @Description 修改已存在记忆的内容、重要性、作用域或元数据
// @Tags 记忆
// @Accept json
// @Produce json
// @Success 200 {object} Response "更新后的记忆"
// @Failure 403 {object} Response "无权限"
// @Failure 404 {object} Response "记忆不存在"
// @Router /api/v1/memories/update [post]
func (h *MemoryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req memory.UpdateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		h.recordOp("update", start, err)
		return
	}
	if req.Requester == "" {
		req.Requester = requesterID(r)
	}

	m, err := h.service.Update(r.Context(), req)
	h.recordOp("update", start, err)
	if err != nil {
		WriteError(w, types.AsError(err), h.logger)
		return
	}

	WriteSuccess(w, m)
}

// forgetResponse 遗忘响应负载
type forgetResponse struct {
	Removed bool `json:"removed"`
}

// HandleForget 处理记忆删除请求
// @Summary 遗忘记忆
// @Description 删除一条记忆。幂等：删除不存在的记忆返回 removed=false
// @Tags 记忆
// @Produce json
// @Success 200 {object} Response "删除结果"
// @Failure 403 {object} Response "无权限"
// @Router /api/v1/memories/{id} [delete]
func (h *MemoryHandler) HandleForget(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := r.PathValue("id")
	ownerID := r.URL.Query().Get("owner_id")
	requester := requesterID(r)

	removed, err := h.service.Forget(r.Context(), requester, ownerID, id)
	h.recordOp("forget", start, err)
	if err != nil {
		WriteError(w, types.AsError(err), h.logger)
		return
	}

	WriteSuccess(w, forgetResponse{Removed: removed})
}

// listResponse 列表响应负载
type listResponse struct {
	Memories []*types.Memory `json:"memories"`
	Degraded bool            `json:"degraded"`
}

// HandleList 处理记忆列表请求
// @Summary 列出记忆
// @Description 返回拥有者全部活跃长期记忆，按创建时间倒序
// @Tags 记忆
// @Produce json
// @Success 200 {object} Response "记忆列表"
// @Failure 403 {object} Response "无权限"
// @Router /api/v1/memories [get]
func (h *MemoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ownerID := r.URL.Query().Get("owner_id")
	requester := requesterID(r)

	memories, degraded, err := h.service.GetAll(r.Context(), requester, ownerID)
	h.recordOp("get_all", start, err)
	if err != nil {
		WriteError(w, types.AsError(err), h.logger)
		return
	}

	WriteSuccess(w, listResponse{Memories: memories, Degraded: degraded})
}

// HandleShortTerm 处理短期记忆查询请求
// @Summary 查询短期记忆
// @Description 返回拥有者最近的对话消息
// @Tags 记忆
// @Produce json
// @Success 200 {object} Response "消息列表"
// @Failure 403 {object} Response "无权限"
// @Router /api/v1/memories/short-term [get]
func (h *MemoryHandler) HandleShortTerm(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ownerID := r.URL.Query().Get("owner_id")
	requester := requesterID(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := h.service.GetShortTerm(r.Context(), requester, ownerID, limit)
	h.recordOp("short_term", start, err)
	if err != nil {
		WriteError(w, types.AsError(err), h.logger)
		return
	}

	WriteSuccess(w, map[string]any{"messages": msgs})
}

// HandleFacts 处理语义事实查询请求
// @Summary 查询语义事实
// @Description 按主语/谓语/类别过滤拥有者的事实日志
// @Tags 记忆
// @Produce json
// @Success 200 {object} Response "事实列表"
// @Failure 403 {object} Response "无权限"
// @Router /api/v1/memories/facts [get]
func (h *MemoryHandler) HandleFacts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ownerID := r.URL.Query().Get("owner_id")
	requester := requesterID(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	q := memory.FactQuery{
		Subject:   r.URL.Query().Get("subject"),
		Predicate: r.URL.Query().Get("predicate"),
		Kind:      types.FactKind(r.URL.Query().Get("kind")),
		Limit:     limit,
	}

	facts, err := h.service.GetSemanticFacts(r.Context(), requester, ownerID, q)
	h.recordOp("facts", start, err)
	if err != nil {
		WriteError(w, types.AsError(err), h.logger)
		return
	}

	WriteSuccess(w, map[string]any{"facts": facts})
}

// HandleStats 处理记忆统计请求
// @Summary 记忆统计
// @Description 返回拥有者的短期/长期/事实/已合并记忆计数
// @Tags 记忆
// @Produce json
// @Success 200 {object} Response "统计信息"
// @Router /api/v1/memories/stats [get]
func (h *MemoryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ownerID := r.URL.Query().Get("owner_id")

	stats, err := h.service.Stats(r.Context(), ownerID)
	h.recordOp("stats", start, err)
	if err != nil {
		WriteError(w, types.AsError(err), h.logger)
		return
	}

	WriteSuccess(w, stats)
}

// RegisterRoutes 注册记忆 API 路由
func (h *MemoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/memories", h.HandleAdd)
	mux.HandleFunc("GET /api/v1/memories", h.HandleList)
	mux.HandleFunc("POST /api/v1/memories/search", h.HandleRecall)
	mux.HandleFunc("POST /api/v1/memories/update", h.HandleUpdate)
	mux.HandleFunc("DELETE /api/v1/memories/{id}", h.HandleForget)
	mux.HandleFunc("GET /api/v1/memories/short-term", h.HandleShortTerm)
	mux.HandleFunc("GET /api/v1/memories/facts", h.HandleFacts)
	mux.HandleFunc("GET /api/v1/memories/stats", h.HandleStats)
}
