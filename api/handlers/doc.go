// Copyright (c) Memflow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Memflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 Memflow 所有 HTTP 端点的请求处理逻辑，
包括记忆写入、召回、更新、遗忘、统计以及健康检查，
并提供统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - MemoryHandler    — 记忆 API 处理器：写入、召回、更新、遗忘、
    短期缓冲与事实日志查询、统计
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（PingCheck 覆盖数据库与 Redis）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteCreated / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（严格模式，拒绝未知字段）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 请求方身份解析：X-Requester-ID 头或 requester 查询参数
  - 操作指标：每个端点记录操作计数与耗时
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
