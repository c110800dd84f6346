// 版权所有 2026 Memflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、记忆操作、后台任务、缓存与数据库五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
工厂绑定调用方传入的 Registerer（测试中可注入独立 Registry 以避免
重复注册冲突）。所有指标按 namespace 隔离，支持多维度 label 分组，
便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数与请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 记忆操作指标：add/recall/update/forget 等操作的计数与耗时、
    每次召回返回条数、抽取事实计数与降级抽取计数。
  - 后台任务指标：衰减巡检次数、被衰减条数、合并掉的记忆条数。
  - 缓存指标：RegisterCacheCounters 以 CounterFunc 形式暴露
    存储层的原子命中/未命中计数。
  - 数据库指标：活跃/空闲连接数 Gauge，按 database 分组。
*/
package metrics
