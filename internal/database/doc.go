// 版权所有 2026 Memflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供记忆子系统的持久层：基于 GORM 的行模型、
错误翻译与连接池管理。

# 概述

本包实现 memory.DurableStore 接口。memoryRow 与 factRow 是
长期记忆与语义事实的行模型，(owner_id, content_hash) 上的
唯一索引保证同一拥有者的内容幂等写入。PoolManager 封装
GORM 与 database/sql 的连接池配置，后台健康检查定时探活。

# 错误翻译

GORM 错误统一翻译为 types.Error：唯一约束冲突 → DUPLICATE，
记录不存在 → NOT_FOUND，连接类错误 → STORAGE_UNAVAILABLE。
上层据此决定去重加权或降级读取。

# 主要能力

  - AutoMigrate：启动时建表与索引（postgres/mysql/sqlite）。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry
    支持指数退避重试（死锁、序列化失败等场景）。
  - 健康检查：后台定时 PingContext 探活。
*/
package database
