// Copyright (c) Memflow Authors.
// Licensed under the MIT License.

/*
Package main 提供 Memflow 服务端程序入口。

# 概述

cmd/memflow 是记忆子系统的可执行入口，提供 HTTP API 服务、
健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 追踪。

# 核心类型

  - Server     — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、RateLimiter（基于 IP）、MetricsMiddleware、OTelTracing
  - 记忆子系统装配：分层长期存储、短期环形缓冲（Redis 或进程内）、
    事实抽取、检索与后台衰减/合并任务
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止后台任务 → 关闭 HTTP → 关闭 Metrics
    → 关闭存储连接 → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
